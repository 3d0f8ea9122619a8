package calib

import (
	"errors"
	"math"
	"testing"
)

const tol = 1e-9

func near(a, b float64) bool {
	return math.Abs(a-b) < tol
}

func transformsEqual(a, b Transform) bool {
	return near(a.A, b.A) && near(a.B, b.B) && near(a.C, b.C) &&
		near(a.D, b.D) && near(a.E, b.E) && near(a.F, b.F)
}

// samplesFrom generates capture pairs by running targets backwards through
// the inverse-free route: measured points are chosen freely and targets are
// produced by the known transform, so Solve must recover that transform.
func samplesFrom(t Transform, measured []Point) []Sample {
	samples := make([]Sample, len(measured))
	for i, m := range measured {
		x := t.A*m.X + t.B*m.Y + t.C
		y := t.D*m.X + t.E*m.Y + t.F
		samples[i] = Sample{Measured: m, Target: Point{X: x, Y: y}}
	}
	return samples
}

// fiveTargets is the recommended capture layout: four corners plus center.
var fiveTargets = []Point{
	{X: 0.1, Y: 0.1},
	{X: 0.9, Y: 0.1},
	{X: 0.1, Y: 0.9},
	{X: 0.9, Y: 0.9},
	{X: 0.5, Y: 0.5},
}

func TestSolve_RecoversKnownTransform(t *testing.T) {
	known := Transform{A: 1.05, B: 0.02, C: -0.03, D: -0.01, E: 0.97, F: 0.04}
	samples := samplesFrom(known, fiveTargets)

	got, err := Solve(samples)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !transformsEqual(got, known) {
		t.Errorf("recovered %+v, want %+v", got, known)
	}

	// Applying the fit to each measured point reproduces its target.
	for i, s := range samples {
		p := got.Apply(s.Measured)
		if !near(p.X, s.Target.X) || !near(p.Y, s.Target.Y) {
			t.Errorf("sample %d: apply gave (%.12f,%.12f), want (%.12f,%.12f)",
				i, p.X, p.Y, s.Target.X, s.Target.Y)
		}
	}
}

func TestSolve_Idempotent(t *testing.T) {
	known := Transform{A: 0.9, B: -0.05, C: 0.08, D: 0.03, E: 1.1, F: -0.06}
	samples := samplesFrom(known, fiveTargets)

	first, err := Solve(samples)
	if err != nil {
		t.Fatalf("first solve: %v", err)
	}
	second, err := Solve(samples)
	if err != nil {
		t.Fatalf("second solve: %v", err)
	}
	if first != second {
		t.Errorf("solve not deterministic: %+v vs %+v", first, second)
	}
}

func TestSolve_TooFewSamples(t *testing.T) {
	samples := samplesFrom(Identity(), fiveTargets[:2])
	_, err := Solve(samples)
	if !errors.Is(err, ErrTooFewSamples) {
		t.Errorf("expected ErrTooFewSamples, got %v", err)
	}
}

func TestSolve_DegenerateCollinear(t *testing.T) {
	// All measured points on one line: the normal matrix is singular.
	measured := []Point{
		{X: 0.1, Y: 0.1},
		{X: 0.5, Y: 0.5},
		{X: 0.9, Y: 0.9},
	}
	_, err := Solve(samplesFrom(Identity(), measured))
	if !errors.Is(err, ErrDegenerate) {
		t.Errorf("expected ErrDegenerate, got %v", err)
	}
}

func TestTransform_ApplyClamps(t *testing.T) {
	tests := []struct {
		name  string
		tr    Transform
		in    Point
		wantX float64
		wantY float64
	}{
		{name: "identity in range", tr: Identity(), in: Point{X: 0.3, Y: 0.7}, wantX: 0.3, wantY: 0.7},
		{name: "extrapolation past 1", tr: Transform{A: 2, E: 2}, in: Point{X: 0.8, Y: 0.8}, wantX: 1, wantY: 1},
		{name: "extrapolation below 0", tr: Transform{A: 1, C: -0.5, E: 1, F: -0.5}, in: Point{X: 0.2, Y: 0.1}, wantX: 0, wantY: 0},
		{name: "nan maps to center", tr: Transform{A: math.NaN(), E: 1}, in: Point{X: 0.5, Y: 0.5}, wantX: 0.5, wantY: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.tr.Apply(tt.in)
			if !near(got.X, tt.wantX) || !near(got.Y, tt.wantY) {
				t.Errorf("got (%.3f,%.3f), want (%.3f,%.3f)", got.X, got.Y, tt.wantX, tt.wantY)
			}
		})
	}
}

// memStore is an in-memory Store for testing.
type memStore struct {
	state   *PersistedState
	loadErr error
	saveErr error
	saves   int
}

func (m *memStore) LoadCalibration() (*PersistedState, error) {
	return m.state, m.loadErr
}

func (m *memStore) SaveCalibration(s PersistedState) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.state = &s
	m.saves++
	return nil
}

func TestCalibrator_DefaultsToIdentity(t *testing.T) {
	c := NewCalibrator(&memStore{})
	if !c.Transform().IsIdentity() {
		t.Errorf("expected identity, got %+v", c.Transform())
	}
	if c.SampleCount() != 0 {
		t.Errorf("expected zero sample count, got %d", c.SampleCount())
	}
}

func TestCalibrator_LoadFailureFallsBackToIdentity(t *testing.T) {
	c := NewCalibrator(&memStore{loadErr: errors.New("corrupt state")})
	if !c.Transform().IsIdentity() {
		t.Errorf("expected identity on load failure, got %+v", c.Transform())
	}
}

func TestCalibrator_RestoresPersistedState(t *testing.T) {
	known := Transform{A: 1.1, E: 0.9, C: 0.01, F: -0.02}
	store := &memStore{state: &PersistedState{Transform: known, SampleCount: 5}}
	c := NewCalibrator(store)
	if c.Transform() != known {
		t.Errorf("expected restored transform, got %+v", c.Transform())
	}
	if c.SampleCount() != 5 {
		t.Errorf("expected 5 samples, got %d", c.SampleCount())
	}
}

func TestCalibrator_SolveInstallsAndPersists(t *testing.T) {
	store := &memStore{}
	c := NewCalibrator(store)
	known := Transform{A: 1.02, B: 0.01, C: -0.02, D: 0.0, E: 0.98, F: 0.03}

	got, err := c.SolveSamples(samplesFrom(known, fiveTargets))
	if err != nil {
		t.Fatalf("SolveSamples: %v", err)
	}
	if !transformsEqual(got, known) {
		t.Errorf("installed %+v, want %+v", got, known)
	}
	if store.saves != 1 {
		t.Errorf("expected one persist, got %d", store.saves)
	}
	if store.state == nil || store.state.SampleCount != len(fiveTargets) {
		t.Errorf("persisted state wrong: %+v", store.state)
	}
}

func TestCalibrator_FailedSolveKeepsPreviousTransform(t *testing.T) {
	store := &memStore{}
	c := NewCalibrator(store)
	known := Transform{A: 1.02, E: 0.98}
	if _, err := c.SolveSamples(samplesFrom(known, fiveTargets)); err != nil {
		t.Fatalf("initial solve: %v", err)
	}

	collinear := samplesFrom(Identity(), []Point{
		{X: 0.2, Y: 0.2}, {X: 0.4, Y: 0.4}, {X: 0.6, Y: 0.6},
	})
	if _, err := c.SolveSamples(collinear); !errors.Is(err, ErrDegenerate) {
		t.Fatalf("expected ErrDegenerate, got %v", err)
	}
	if !transformsEqual(c.Transform(), known) {
		t.Errorf("previous transform lost after failed solve: %+v", c.Transform())
	}
	if store.saves != 1 {
		t.Errorf("failed solve must not persist; saves=%d", store.saves)
	}
}

func TestCalibrator_CaptureSession(t *testing.T) {
	c := NewCalibrator(nil)
	known := Transform{A: 0.95, E: 1.05, C: 0.02, F: -0.01}

	t.Run("solve without capture errors", func(t *testing.T) {
		if _, err := c.SolveCapture(); !errors.Is(err, ErrNoCapture) {
			t.Errorf("expected ErrNoCapture, got %v", err)
		}
	})

	t.Run("capture then solve", func(t *testing.T) {
		c.BeginCapture()
		for i, s := range samplesFrom(known, fiveTargets) {
			if n := c.AddSample(s); n != i+1 {
				t.Errorf("AddSample count = %d, want %d", n, i+1)
			}
		}
		got, err := c.SolveCapture()
		if err != nil {
			t.Fatalf("SolveCapture: %v", err)
		}
		if !transformsEqual(got, known) {
			t.Errorf("got %+v, want %+v", got, known)
		}
	})

	t.Run("begin capture discards previous samples", func(t *testing.T) {
		c.BeginCapture()
		c.AddSample(Sample{Measured: Point{X: 0.1, Y: 0.1}, Target: Point{X: 0.2, Y: 0.2}})
		c.BeginCapture()
		if _, err := c.SolveCapture(); !errors.Is(err, ErrTooFewSamples) {
			t.Errorf("expected ErrTooFewSamples on restarted capture, got %v", err)
		}
	})

	t.Run("sample outside capture ignored", func(t *testing.T) {
		if n := c.AddSample(Sample{}); n != 0 {
			t.Errorf("expected ignored sample, count %d", n)
		}
	})
}

func TestCalibrator_Reset(t *testing.T) {
	store := &memStore{}
	c := NewCalibrator(store)
	if _, err := c.SolveSamples(samplesFrom(Transform{A: 1.2, E: 0.8}, fiveTargets)); err != nil {
		t.Fatalf("solve: %v", err)
	}
	c.Reset()
	if !c.Transform().IsIdentity() {
		t.Errorf("expected identity after reset")
	}
	if store.state == nil || !store.state.Transform.IsIdentity() {
		t.Errorf("reset not persisted: %+v", store.state)
	}
}
