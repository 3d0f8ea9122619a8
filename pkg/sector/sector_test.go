package sector

import (
	"math/rand"
	"testing"

	"github.com/ubicomp-capstone/gazepatch/pkg/calib"
)

func TestFromPoint(t *testing.T) {
	tests := []struct {
		name string
		p    calib.Point
		want Sector
	}{
		{name: "top-left corner", p: calib.Point{X: 0, Y: 0}, want: Sector{0, 0}},
		{name: "bottom-right corner", p: calib.Point{X: 1, Y: 1}, want: Sector{2, 2}},
		{name: "center", p: calib.Point{X: 0.5, Y: 0.5}, want: Sector{1, 1}},
		{name: "just inside second column", p: calib.Point{X: 0.34, Y: 0.1}, want: Sector{0, 1}},
		{name: "top-right", p: calib.Point{X: 0.99, Y: 0.01}, want: Sector{0, 2}},
		{name: "cell boundary belongs to next cell", p: calib.Point{X: 1.0 / 3.0, Y: 2.0 / 3.0}, want: Sector{2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromPoint(tt.p); got != tt.want {
				t.Errorf("FromPoint(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestOpposite_Symmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for row := 0; row < GridSize; row++ {
		for col := 0; col < GridSize; col++ {
			s := Sector{Row: row, Col: col}
			if s.IsCenter() {
				continue
			}
			if got := Opposite(Opposite(s, rng), rng); got != s {
				t.Errorf("opposite(opposite(%v)) = %v, want %v", s, got, s)
			}
		}
	}
}

func TestOpposite_CenterPicksAllCorners(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	seen := map[Sector]int{}
	for i := 0; i < 1000; i++ {
		target := Opposite(Center, rng)
		if target.IsCenter() {
			t.Fatal("center fixation must never target center")
		}
		isCorner := false
		for _, c := range Corners {
			if target == c {
				isCorner = true
			}
		}
		if !isCorner {
			t.Fatalf("center fixation targeted non-corner %v", target)
		}
		seen[target]++
	}
	if len(seen) != 4 {
		t.Errorf("expected all 4 corners over 1000 draws, saw %d: %v", len(seen), seen)
	}
}

func TestSector_Name(t *testing.T) {
	tests := []struct {
		s    Sector
		want string
	}{
		{Sector{0, 0}, "TL"},
		{Sector{0, 1}, "TC"},
		{Sector{1, 1}, "MC"},
		{Sector{2, 0}, "BL"},
		{Sector{2, 2}, "BR"},
		{Sector{3, 0}, "??"},
	}
	for _, tt := range tests {
		if got := tt.s.Name(); got != tt.want {
			t.Errorf("%v.Name() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestSector_CenterPoint(t *testing.T) {
	p := Sector{Row: 0, Col: 0}.CenterPoint()
	if p.X < 0.16 || p.X > 0.17 || p.Y < 0.16 || p.Y > 0.17 {
		t.Errorf("TL center point = %v, want ~(1/6, 1/6)", p)
	}
	p = Sector{Row: 2, Col: 2}.CenterPoint()
	if p.X < 0.83 || p.X > 0.84 || p.Y < 0.83 || p.Y > 0.84 {
		t.Errorf("BR center point = %v, want ~(5/6, 5/6)", p)
	}
}
