package plate

import (
	"fmt"
	"sort"

	"plate-calibrator/internal/config"
	"plate-calibrator/internal/raster"
	"plate-calibrator/pkg/geometry"
)

// span is a half-open run [start, end) of rows or columns.
type span struct {
	start, end int
}

func (s span) length() int { return s.end - s.start }

// foregroundMask binarizes img with Otsu so that foreground pixels are 1.
// Foreground is bright when invert is set, dark otherwise.
func foregroundMask(img *raster.Gray, invert bool) (*raster.Gray, error) {
	oriented := img
	if !invert {
		oriented = img.Invert()
	}
	mask, _, err := raster.Otsu(oriented)
	if err != nil {
		return nil, fmt.Errorf("otsu: %w", err)
	}
	return mask, nil
}

// foregroundRuns returns the runs where frac exceeds thresh. Gaps of at most
// bridge entries are closed and runs shorter than minLen are dropped.
func foregroundRuns(frac []float64, thresh float64, bridge, minLen int) []span {
	var runs []span
	start := -1
	for i, f := range frac {
		if f > thresh {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			runs = append(runs, span{start, i})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, span{start, len(frac)})
	}

	// Bridge small gaps
	var merged []span
	for _, r := range runs {
		if n := len(merged); n > 0 && r.start-merged[n-1].end <= bridge {
			merged[n-1].end = r.end
			continue
		}
		merged = append(merged, r)
	}

	// Drop tiny runs
	out := merged[:0]
	for _, r := range merged {
		if r.length() >= minLen {
			out = append(out, r)
		}
	}
	return out
}

// keepLongest keeps the n longest runs, returned in positional order.
func keepLongest(runs []span, n int) []span {
	if len(runs) <= n {
		return runs
	}
	sorted := make([]span, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].length() > sorted[j].length()
	})
	sorted = sorted[:n]
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].start < sorted[j].start
	})
	return sorted
}

// axisRuns finds up to plates runs along one axis of length dim.
// Gaps narrower than one colony pitch are bridged; runs shorter than a
// quarter of a plate are noise.
func axisRuns(frac []float64, thresh float64, dim, plates, colonies int) []span {
	bridge := dim / (plates * colonies)
	if bridge < dim/100 {
		bridge = dim / 100
	}
	minLen := dim / (plates * 4)
	if minLen < 1 {
		minLen = 1
	}
	return keepLongest(foregroundRuns(frac, thresh, bridge, minLen), plates)
}

// LocateRough finds one rough rectangle per plate of the PlateRows x PlateCols
// layout. A row (column) belongs to a plate when its foreground fraction
// exceeds Thresh. Rectangles are padded by RoughPad and clamped to the image.
// When fewer plate rows or columns are found than the layout calls for, the
// rectangles found are returned with ErrInsufficientContrast.
func LocateRough(tmpl *raster.Gray, p config.Params) ([]Position, error) {
	if tmpl.Empty() {
		return nil, fmt.Errorf("%w: empty template", ErrInsufficientContrast)
	}

	mask, err := foregroundMask(tmpl, p.Invert)
	if err != nil {
		return nil, err
	}

	rowRuns := axisRuns(mask.RowMeans(), p.Thresh, tmpl.Height, p.PlateRows, p.GridRows)
	colRuns := axisRuns(mask.ColMeans(), p.Thresh, tmpl.Width, p.PlateCols, p.GridCols)

	positions := make([]Position, 0, len(rowRuns)*len(colRuns))
	for i, rr := range rowRuns {
		for j, cr := range colRuns {
			rect := geometry.RectFromEdges(cr.start, cr.end, rr.start, rr.end).
				Pad(p.RoughPad[config.PadLeft], p.RoughPad[config.PadRight],
					p.RoughPad[config.PadTop], p.RoughPad[config.PadBottom]).
				Clamp(tmpl.Width, tmpl.Height)
			positions = append(positions, NewPosition(SlotID(i+1, j+1, p.PlateCols), i+1, j+1, rect))
		}
	}

	if len(rowRuns) < p.PlateRows || len(colRuns) < p.PlateCols {
		return positions, fmt.Errorf("%w: found %d plate rows and %d plate columns, expected %dx%d",
			ErrInsufficientContrast, len(rowRuns), len(colRuns), p.PlateRows, p.PlateCols)
	}
	return positions, nil
}

// Match is the outcome of MatchPositions.
type Match struct {
	Positions  []Position        // resolved positions, in annotation order
	Fallback   []int             // IDs that use the default crop
	Unresolved []config.Position // annotations with neither a rectangle nor a default crop
}

// MatchPositions assigns annotated positions to the rectangles found by
// LocateRough. With a complete layout each annotation takes the rectangle in
// its (row, col) slot; otherwise rectangles are handed out in declared order.
// Annotations left over use p.DefaultCrop when set and are reported
// unresolved when not. No annotations means every slot of the layout.
func MatchPositions(found []Position, p config.Params) Match {
	annotations := p.Positions
	if len(annotations) == 0 {
		for r := 1; r <= p.PlateRows; r++ {
			for c := 1; c <= p.PlateCols; c++ {
				annotations = append(annotations, config.Position{ID: SlotID(r, c, p.PlateCols), Row: r, Col: c})
			}
		}
	}

	var m Match
	complete := len(found) == p.PlateCount()

	bySlot := make(map[[2]int]Position, len(found))
	for _, pos := range found {
		bySlot[[2]int{pos.PlateRow, pos.PlateCol}] = pos
	}

	for i, a := range annotations {
		var pos Position
		ok := false
		if complete {
			pos, ok = bySlot[[2]int{a.Row, a.Col}]
		} else if i < len(found) {
			pos, ok = found[i], true
		}

		switch {
		case ok:
			pos.ID, pos.PlateRow, pos.PlateCol = a.ID, a.Row, a.Col
			m.Positions = append(m.Positions, pos)
		case p.DefaultCrop != nil:
			m.Positions = append(m.Positions, NewPosition(a.ID, a.Row, a.Col, *p.DefaultCrop))
			m.Fallback = append(m.Fallback, a.ID)
		default:
			m.Unresolved = append(m.Unresolved, a)
		}
	}
	return m
}
