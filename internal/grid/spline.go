package grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// minSplinePoints is the number of observed cells a row or column needs
// before its positions are smoothed.
const minSplinePoints = 10

// splineKnots are the interior knots on the normalized [0,1] index range.
var splineKnots = []float64{1.0 / 3, 2.0 / 3}

// regressionSpline is a least-squares cubic spline in truncated power form.
type regressionSpline struct {
	coef []float64
	lo   float64
	span float64
}

// fitSpline fits y against t over the index range [lo, hi].
func fitSpline(t, y []float64, lo, hi float64) (*regressionSpline, error) {
	n := len(t)
	p := 4 + len(splineKnots)
	if n != len(y) {
		return nil, fmt.Errorf("spline: %d indices for %d values", n, len(y))
	}
	if n < p {
		return nil, fmt.Errorf("spline: need at least %d points, got %d", p, n)
	}
	span := hi - lo
	if span <= 0 {
		return nil, fmt.Errorf("spline: empty index range [%g, %g]", lo, hi)
	}

	s := &regressionSpline{lo: lo, span: span}

	// Build overdetermined system
	A := mat.NewDense(n, p, nil)
	B := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		A.SetRow(i, s.basis(t[i]))
		B.SetVec(i, y[i])
	}

	// Solve using QR decomposition
	var qr mat.QR
	qr.Factorize(A)

	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, B); err != nil {
		return nil, fmt.Errorf("spline: %w", err)
	}

	s.coef = make([]float64, p)
	for i := range s.coef {
		s.coef[i] = coef.AtVec(i)
	}
	return s, nil
}

// basis evaluates [1, u, u^2, u^3, (u-k1)^3+, (u-k2)^3+] at normalized u.
func (s *regressionSpline) basis(t float64) []float64 {
	u := (t - s.lo) / s.span
	row := make([]float64, 0, 4+len(splineKnots))
	row = append(row, 1, u, u*u, u*u*u)
	for _, k := range splineKnots {
		d := math.Max(0, u-k)
		row = append(row, d*d*d)
	}
	return row
}

// At predicts the value at index t.
func (s *regressionSpline) At(t float64) float64 {
	var v float64
	for i, b := range s.basis(t) {
		v += s.coef[i] * b
	}
	return v
}
