// Package grid turns segmented colony centroids into a regular row/column
// grid of selection boxes.
package grid

import (
	"errors"

	"plate-calibrator/internal/segment"
	"plate-calibrator/pkg/geometry"
	"plate-calibrator/pkg/mathutil"
)

var (
	// ErrGridRepairDivergence is returned when an axis cannot be repaired to
	// the expected number of break points.
	ErrGridRepairDivergence = errors.New("grid repair diverged")

	// ErrInsufficientObjects is shared with the segmenter.
	ErrInsufficientObjects = segment.ErrInsufficientObjects
)

// Axis is a strictly increasing list of break points along one image axis.
// An axis for n grid rows (or columns) holds n+1 points.
type Axis []float64

// Cells returns the number of grid rows or columns the axis delimits.
func (a Axis) Cells() int {
	if len(a) < 2 {
		return 0
	}
	return len(a) - 1
}

// Index returns the 1-based cell containing v (a[i-1] <= v < a[i]),
// or 0 when v lies outside the axis.
func (a Axis) Index(v float64) int {
	if len(a) < 2 || v < a[0] || v >= a[len(a)-1] {
		return 0
	}
	lo, hi := 0, len(a)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if a[mid] <= v {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo + 1
}

// Midpoint returns the center of 1-based cell i.
func (a Axis) Midpoint(i int) float64 {
	return (a[i-1] + a[i]) / 2
}

// MeanSpacing returns the mean distance between consecutive break points.
func (a Axis) MeanSpacing() float64 {
	return mathutil.MeanSpacing(a)
}

// Valid reports whether the axis delimits exactly n strictly increasing cells.
func (a Axis) Valid(n int) bool {
	return len(a) == n+1 && mathutil.StrictlyIncreasing(a)
}

// Cell is one expected colony position with its selection box.
// Coordinates are 1-based pixels; the box is inclusive on both ends.
type Cell struct {
	Row      int     `json:"row"`
	Col      int     `json:"col"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Left     int     `json:"left"`
	Right    int     `json:"right"`
	Top      int     `json:"top"`
	Bottom   int     `json:"bottom"`
	Observed bool    `json:"observed"`
}

// Center returns the cell position.
func (c Cell) Center() geometry.Point2D {
	return geometry.Point2D{X: c.X, Y: c.Y}
}

// Result is the inferred grid of one plate.
type Result struct {
	Rows     Axis    `json:"rows"`
	Cols     Axis    `json:"cols"`
	Cells    []Cell  `json:"cells"`
	Radius   float64 `json:"radius"`
	Observed int     `json:"observed"` // cells backed by a segmented object
}

// Cell returns the cell at 1-based (row, col).
func (r Result) Cell(row, col int) (Cell, bool) {
	ncols := r.Cols.Cells()
	if row < 1 || col < 1 || row > r.Rows.Cells() || col > ncols {
		return Cell{}, false
	}
	idx := (row-1)*ncols + col - 1
	if idx >= len(r.Cells) {
		return Cell{}, false
	}
	return r.Cells[idx], true
}
