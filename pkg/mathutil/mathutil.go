// Package mathutil provides small numeric helpers shared by the calibration stages.
package mathutil

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Median returns the median of values, averaging the two middle samples for
// even lengths. The input is not modified. Returns 0 for an empty slice.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// Diff returns the consecutive differences x[i+1]-x[i].
func Diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	d := make([]float64, len(x)-1)
	for i := range d {
		d[i] = x[i+1] - x[i]
	}
	return d
}

// MeanSpacing returns the mean of the consecutive differences of x, or 0 when
// x has fewer than two entries.
func MeanSpacing(x []float64) float64 {
	d := Diff(x)
	if len(d) == 0 {
		return 0
	}
	return stat.Mean(d, nil)
}

// MedianSpacing returns the median of the consecutive differences of x, or 0
// when x has fewer than two entries.
func MedianSpacing(x []float64) float64 {
	return Median(Diff(x))
}

// StrictlyIncreasing reports whether every element is greater than the previous one.
func StrictlyIncreasing(x []float64) bool {
	for i := 1; i < len(x); i++ {
		if !(x[i] > x[i-1]) {
			return false
		}
	}
	return true
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Span returns max(x) - min(x), or 0 for an empty slice.
func Span(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Max(x) - floats.Min(x)
}
