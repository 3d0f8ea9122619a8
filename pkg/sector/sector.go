// Package sector maps calibrated gaze onto a fixed 3x3 screen grid and
// detects fixations: sustained dwell inside one cell long enough to commit
// to modifying the opposite cell.
package sector

import (
	"math/rand"

	"github.com/ubicomp-capstone/gazepatch/pkg/calib"
)

// GridSize is the fixed grid dimension. The generation service receives it
// with every request, so both sides always agree on cell geometry.
const GridSize = 3

// Sector is one cell of the grid, row-major with (0,0) top-left.
type Sector struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Center is the middle cell, the one sector with no mirror image.
var Center = Sector{Row: 1, Col: 1}

// Corners lists the four corner cells, the candidate targets for a
// center fixation.
var Corners = [4]Sector{
	{Row: 0, Col: 0},
	{Row: 0, Col: GridSize - 1},
	{Row: GridSize - 1, Col: 0},
	{Row: GridSize - 1, Col: GridSize - 1},
}

// FromPoint maps a normalized point into its grid cell. Coordinates at
// exactly 1.0 land in the last row/column.
func FromPoint(p calib.Point) Sector {
	return Sector{Row: cellIndex(p.Y), Col: cellIndex(p.X)}
}

func cellIndex(v float64) int {
	idx := int(v * GridSize)
	if idx < 0 {
		return 0
	}
	if idx >= GridSize {
		return GridSize - 1
	}
	return idx
}

// Valid reports whether s lies inside the grid.
func (s Sector) Valid() bool {
	return s.Row >= 0 && s.Row < GridSize && s.Col >= 0 && s.Col < GridSize
}

// IsCenter reports whether s is the middle cell.
func (s Sector) IsCenter() bool {
	return s == Center
}

// Name returns the short label used in logs and by the generation service:
// row T/M/B plus column L/C/R, e.g. "TL" for top-left.
func (s Sector) Name() string {
	rows := [GridSize]string{"T", "M", "B"}
	cols := [GridSize]string{"L", "C", "R"}
	if !s.Valid() {
		return "??"
	}
	return rows[s.Row] + cols[s.Col]
}

// CenterPoint returns the normalized center of the cell.
func (s Sector) CenterPoint() calib.Point {
	return calib.Point{
		X: (float64(s.Col) + 0.5) / GridSize,
		Y: (float64(s.Row) + 0.5) / GridSize,
	}
}

// Opposite returns the mirrored cell (2-row, 2-col). The center mirrors to
// itself, which would put the change under the viewer's gaze, so a corner
// is drawn from rng instead.
func Opposite(s Sector, rng *rand.Rand) Sector {
	if s.IsCenter() {
		return Corners[rng.Intn(len(Corners))]
	}
	return Sector{Row: GridSize - 1 - s.Row, Col: GridSize - 1 - s.Col}
}
