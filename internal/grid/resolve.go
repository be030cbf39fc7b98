package grid

import (
	"fmt"
	"math"

	"plate-calibrator/internal/config"
	"plate-calibrator/internal/segment"
	"plate-calibrator/pkg/mathutil"
)

// cellObservation is the object kept for one grid cell.
type cellObservation struct {
	x, y  float64
	area  int
	found bool
}

// Resolve bins objects into the cells delimited by rows and cols and emits
// one selection box per cell, filling cells without an object.
//
// Elongated objects (eccentricity >= MaxEccentricity) are ignored and the
// largest object wins a cell. Rows with at least ten observed cells have
// their x positions smoothed by a cubic regression spline over the column
// index, and columns likewise for y. Any smoothed value further than
// MaxSmooth from the raw column (row) center is replaced by that center.
// width and height bound the boxes to [1, width] x [1, height].
func Resolve(rows, cols Axis, objects []segment.Object, width, height int, p config.Params) (Result, error) {
	nrows, ncols := rows.Cells(), cols.Cells()
	if nrows == 0 || ncols == 0 {
		return Result{}, fmt.Errorf("%w: empty axis (%d rows, %d cols)", ErrGridRepairDivergence, nrows, ncols)
	}

	maxEcc := p.MaxEccentricity
	if maxEcc <= 0 {
		maxEcc = 0.8
	}

	// Bin objects, keeping the largest per cell
	obs := make([][]cellObservation, nrows)
	for r := range obs {
		obs[r] = make([]cellObservation, ncols)
	}
	binned := 0
	for _, o := range objects {
		if o.Eccentricity >= maxEcc {
			continue
		}
		r, c := rows.Index(o.Y), cols.Index(o.X)
		if r == 0 || c == 0 {
			continue
		}
		cell := &obs[r-1][c-1]
		if !cell.found {
			binned++
		}
		if !cell.found || o.Area > cell.area {
			*cell = cellObservation{x: o.X, y: o.Y, area: o.Area, found: true}
		}
	}
	if binned == 0 {
		return Result{}, fmt.Errorf("%w: none of %d objects fell inside the %dx%d grid",
			ErrInsufficientObjects, len(objects), nrows, ncols)
	}

	// Raw centers: median observed coordinate, else the axis midpoint
	colCenter := make([]float64, ncols)
	for c := 0; c < ncols; c++ {
		var xs []float64
		for r := 0; r < nrows; r++ {
			if obs[r][c].found {
				xs = append(xs, obs[r][c].x)
			}
		}
		if len(xs) > 0 {
			colCenter[c] = mathutil.Median(xs)
		} else {
			colCenter[c] = cols.Midpoint(c + 1)
		}
	}
	rowCenter := make([]float64, nrows)
	for r := 0; r < nrows; r++ {
		var ys []float64
		for c := 0; c < ncols; c++ {
			if obs[r][c].found {
				ys = append(ys, obs[r][c].y)
			}
		}
		if len(ys) > 0 {
			rowCenter[r] = mathutil.Median(ys)
		} else {
			rowCenter[r] = rows.Midpoint(r + 1)
		}
	}

	// x along each row
	xs := make([][]float64, nrows)
	for r := 0; r < nrows; r++ {
		xs[r] = smoothLine(obs[r], colCenter, p.MaxSmooth, func(o cellObservation) float64 { return o.x })
	}

	// y along each column
	ys := make([][]float64, ncols)
	for c := 0; c < ncols; c++ {
		line := make([]cellObservation, nrows)
		for r := 0; r < nrows; r++ {
			line[r] = obs[r][c]
		}
		ys[c] = smoothLine(line, rowCenter, p.MaxSmooth, func(o cellObservation) float64 { return o.y })
	}

	radius := selectionRadius(p.ColonyRadius, rows, cols)

	res := Result{
		Rows:     rows,
		Cols:     cols,
		Cells:    make([]Cell, 0, nrows*ncols),
		Radius:   radius,
		Observed: binned,
	}
	for r := 0; r < nrows; r++ {
		for c := 0; c < ncols; c++ {
			x, y := xs[r][c], ys[c][r]
			left, right := boxSpan(x, radius, width)
			top, bottom := boxSpan(y, radius, height)
			res.Cells = append(res.Cells, Cell{
				Row:      r + 1,
				Col:      c + 1,
				X:        x,
				Y:        y,
				Left:     left,
				Right:    right,
				Top:      top,
				Bottom:   bottom,
				Observed: obs[r][c].found,
			})
		}
	}

	return res, nil
}

// smoothLine returns one coordinate for every cell of a row or column.
// raw holds the fallback center of every cell on the line.
func smoothLine(line []cellObservation, raw []float64, maxSmooth float64, coord func(cellObservation) float64) []float64 {
	n := len(line)
	out := make([]float64, n)

	var idx, vals []float64
	for i, o := range line {
		if o.found {
			idx = append(idx, float64(i+1))
			vals = append(vals, coord(o))
		}
	}

	var s *regressionSpline
	if len(idx) >= minSplinePoints {
		s, _ = fitSpline(idx, vals, 1, float64(n))
	}

	for i, o := range line {
		switch {
		case s != nil:
			pred := s.At(float64(i + 1))
			if math.IsNaN(pred) || math.Abs(pred-raw[i]) > maxSmooth {
				pred = raw[i]
			}
			out[i] = pred
		case o.found:
			out[i] = coord(o)
		default:
			out[i] = raw[i]
		}
	}
	return out
}

// selectionRadius converts colony_radius into pixels. Values up to 1 are a
// fraction of a quarter of the summed mean row and column spacing.
func selectionRadius(colonyRadius float64, rows, cols Axis) float64 {
	if colonyRadius > 1 {
		return colonyRadius
	}
	return colonyRadius * (rows.MeanSpacing() + cols.MeanSpacing()) / 4
}

// boxSpan returns a rounded, non-empty [lo, hi] around center clamped to [1, limit].
func boxSpan(center, radius float64, limit int) (int, int) {
	if limit < 2 {
		return 1, 1
	}
	lo := clamp(int(math.Round(center-radius)), 1, limit)
	hi := clamp(int(math.Round(center+radius)), 1, limit)
	if lo >= hi {
		if hi < limit {
			hi = lo + 1
		} else {
			lo = hi - 1
		}
	}
	return lo, hi
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
