// Package calib fits and applies an affine gaze correction.
//
// Headsets report gaze in normalized screen coordinates, but per-viewer
// offsets (headset fit, eye geometry) skew them. An operator-driven capture
// collects (measured, target) pairs; the solver fits an affine transform by
// least squares and every subsequent gaze sample is corrected through it.
// The active transform is replaced atomically on a successful solve and
// persisted across sessions.
package calib

import "math"

// Point is a normalized screen coordinate with (0,0) top-left.
type Point struct {
	X float64 `json:"x_norm"`
	Y float64 `json:"y_norm"`
}

// Sample pairs a measured gaze point with the on-screen target the viewer
// was instructed to look at.
type Sample struct {
	Measured Point `json:"measured"`
	Target   Point `json:"target"`
}

// Transform is an affine map (x,y) -> (Ax+By+C, Dx+Ey+F).
type Transform struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	D float64 `json:"d"`
	E float64 `json:"e"`
	F float64 `json:"f"`
}

// Identity returns the no-op transform.
func Identity() Transform {
	return Transform{A: 1, E: 1}
}

// IsIdentity reports whether t is exactly the identity transform.
func (t Transform) IsIdentity() bool {
	return t == Identity()
}

// Apply maps p through the transform and clamps the result to [0,1] per
// axis. Calibrated points can legitimately extrapolate past the sampled
// hull; clamping keeps them on-screen instead of rejecting the sample.
func (t Transform) Apply(p Point) Point {
	return Point{
		X: clamp01(t.A*p.X + t.B*p.Y + t.C),
		Y: clamp01(t.D*p.X + t.E*p.Y + t.F),
	}
}

// clamp01 clamps to [0,1]. NaN maps to the screen center, which keeps a
// corrupt sample harmless for sector math.
func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
