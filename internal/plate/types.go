// Package plate locates plates on a template photograph and straightens them.
package plate

import (
	"errors"

	"plate-calibrator/pkg/geometry"
)

// ErrInsufficientContrast is returned when fewer plate boundaries are found
// than the layout calls for.
var ErrInsufficientContrast = errors.New("insufficient contrast")

// Saturated rows/columns (plate walls, background) are skipped at the image edge.
const saturatedFraction = 0.5

// Position is a plate slot and its rough rectangle in template pixels.
// Coordinates are 0-based; RoughRight and RoughBottom are exclusive.
type Position struct {
	ID          int     `json:"id"`
	PlateRow    int     `json:"plate_row"`
	PlateCol    int     `json:"plate_col"`
	CenterX     float64 `json:"center_x"`
	CenterY     float64 `json:"center_y"`
	RoughLeft   int     `json:"rough_left"`
	RoughRight  int     `json:"rough_right"`
	RoughTop    int     `json:"rough_top"`
	RoughBottom int     `json:"rough_bottom"`
}

// NewPosition builds a position for rect, deriving its center.
func NewPosition(id, row, col int, rect geometry.RectInt) Position {
	c := rect.Center()
	return Position{
		ID:          id,
		PlateRow:    row,
		PlateCol:    col,
		CenterX:     c.X,
		CenterY:     c.Y,
		RoughLeft:   rect.Left(),
		RoughRight:  rect.Right(),
		RoughTop:    rect.Top(),
		RoughBottom: rect.Bottom(),
	}
}

// Rect returns the rough rectangle.
func (p Position) Rect() geometry.RectInt {
	return geometry.RectFromEdges(p.RoughLeft, p.RoughRight, p.RoughTop, p.RoughBottom)
}

// FineCrop is the refined plate boundary in the frame of the rotated rough crop.
// FineRight and FineBottom are exclusive.
type FineCrop struct {
	ID            int     `json:"id"`
	RotationAngle float64 `json:"rotation_angle"`
	FineLeft      int     `json:"fine_left"`
	FineRight     int     `json:"fine_right"`
	FineTop       int     `json:"fine_top"`
	FineBottom    int     `json:"fine_bottom"`
}

// Rect returns the fine rectangle.
func (f FineCrop) Rect() geometry.RectInt {
	return geometry.RectFromEdges(f.FineLeft, f.FineRight, f.FineTop, f.FineBottom)
}

// SlotID returns the position number of a 1-based layout slot.
func SlotID(row, col, cols int) int {
	return (row-1)*cols + col
}
