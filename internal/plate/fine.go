package plate

import (
	"plate-calibrator/internal/config"
	"plate-calibrator/internal/raster"
	"plate-calibrator/pkg/geometry"
)

// firstEdge scans frac from one end and returns the index of the first entry
// above thresh after any leading saturated band, or -1.
func firstEdge(frac []float64, thresh float64, fromEnd bool) int {
	n := len(frac)
	at := func(i int) int {
		if fromEnd {
			return n - 1 - i
		}
		return i
	}

	i := 0
	for i < n && frac[at(i)] > saturatedFraction {
		i++
	}
	for ; i < n; i++ {
		if frac[at(i)] > thresh {
			return at(i)
		}
	}
	return -1
}

// LocateFine refines the plate boundary on a rotated rough crop. Each side
// moves inward to the first row or column whose foreground fraction exceeds
// Thresh, skipping a saturated band at the edge, and is then padded outward
// by FinePad. A side with no such row or column keeps the image edge.
// The result always lies inside the image.
func LocateFine(img *raster.Gray, p config.Params) (geometry.RectInt, error) {
	full := img.Bounds()
	if img.Empty() {
		return full, nil
	}

	mask, err := foregroundMask(img, p.Invert)
	if err != nil {
		return full, err
	}
	rows, cols := mask.RowMeans(), mask.ColMeans()

	left, right := 0, img.Width
	top, bottom := 0, img.Height

	if i := firstEdge(cols, p.Thresh, false); i >= 0 {
		left = i - p.FinePad[config.PadLeft]
	}
	if i := firstEdge(cols, p.Thresh, true); i >= 0 {
		right = i + 1 + p.FinePad[config.PadRight]
	}
	if i := firstEdge(rows, p.Thresh, false); i >= 0 {
		top = i - p.FinePad[config.PadTop]
	}
	if i := firstEdge(rows, p.Thresh, true); i >= 0 {
		bottom = i + 1 + p.FinePad[config.PadBottom]
	}

	rect := geometry.RectFromEdges(left, right, top, bottom).Clamp(img.Width, img.Height)
	if rect.Empty() {
		return full, nil
	}
	return rect, nil
}
