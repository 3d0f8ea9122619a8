package calib

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Sample count requirements for a solve.
const (
	MinSamples         = 3
	RecommendedSamples = 5 // four corners plus center
)

// singularEps bounds how close to singular the normal-equations matrix may
// be before the calibration is rejected as degenerate.
const singularEps = 1e-9

// Sentinel errors returned by Solve.
var (
	// ErrTooFewSamples means fewer than MinSamples pairs were supplied.
	ErrTooFewSamples = errors.New("calib: need at least 3 calibration samples")

	// ErrDegenerate means the calibration points were near-collinear and
	// the normal equations could not be solved reliably.
	ErrDegenerate = errors.New("calib: degenerate calibration (points near-collinear)")
)

// Solve fits an affine transform to the samples by least squares.
//
// Both axes share one 3x3 normal-equations matrix built from the sums of
// x², xy, x, y², y and 1 over the measured points; only the right-hand
// sides differ. Solving twice with the same samples yields the same
// transform.
func Solve(samples []Sample) (Transform, error) {
	if len(samples) < MinSamples {
		return Transform{}, fmt.Errorf("%w: got %d", ErrTooFewSamples, len(samples))
	}

	var sxx, sxy, sx, syy, sy, n float64
	var bx [3]float64
	var by [3]float64
	for _, s := range samples {
		x, y := s.Measured.X, s.Measured.Y
		sxx += x * x
		sxy += x * y
		sx += x
		syy += y * y
		sy += y
		n++

		bx[0] += x * s.Target.X
		bx[1] += y * s.Target.X
		bx[2] += s.Target.X
		by[0] += x * s.Target.Y
		by[1] += y * s.Target.Y
		by[2] += s.Target.Y
	}

	m := mat.NewDense(3, 3, []float64{
		sxx, sxy, sx,
		sxy, syy, sy,
		sx, sy, n,
	})

	// A vanishing determinant means the measured points are (near-)
	// collinear; refuse rather than hand back a wild extrapolation.
	if det := mat.Det(m); math.Abs(det) < singularEps {
		return Transform{}, ErrDegenerate
	}

	solveAxis := func(rhs [3]float64) ([3]float64, error) {
		var sol mat.VecDense
		if err := sol.SolveVec(m, mat.NewVecDense(3, rhs[:])); err != nil {
			return [3]float64{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
		}
		return [3]float64{sol.AtVec(0), sol.AtVec(1), sol.AtVec(2)}, nil
	}

	cx, err := solveAxis(bx)
	if err != nil {
		return Transform{}, err
	}
	cy, err := solveAxis(by)
	if err != nil {
		return Transform{}, err
	}

	return Transform{
		A: cx[0], B: cx[1], C: cx[2],
		D: cy[0], E: cy[1], F: cy[2],
	}, nil
}
