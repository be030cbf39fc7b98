// Package geometry provides basic geometric types used throughout the application.
package geometry

import (
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// RectInt represents a rectangle with integer coordinates.
// X/Y is the top-left pixel; the rectangle covers [X, X+Width) x [Y, Y+Height).
type RectInt struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RectFromEdges builds a rectangle from its left, right, top and bottom edges.
// Right and bottom are exclusive.
func RectFromEdges(left, right, top, bottom int) RectInt {
	return RectInt{X: left, Y: top, Width: right - left, Height: bottom - top}
}

// Left returns the left edge.
func (r RectInt) Left() int { return r.X }

// Right returns the exclusive right edge.
func (r RectInt) Right() int { return r.X + r.Width }

// Top returns the top edge.
func (r RectInt) Top() int { return r.Y }

// Bottom returns the exclusive bottom edge.
func (r RectInt) Bottom() int { return r.Y + r.Height }

// Empty reports whether the rectangle covers no pixels.
func (r RectInt) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Center returns the center point of the rectangle.
func (r RectInt) Center() Point2D {
	return Point2D{X: float64(r.X) + float64(r.Width)/2, Y: float64(r.Y) + float64(r.Height)/2}
}

// Contains returns true if other lies entirely inside r.
func (r RectInt) Contains(other RectInt) bool {
	return other.Left() >= r.Left() && other.Right() <= r.Right() &&
		other.Top() >= r.Top() && other.Bottom() <= r.Bottom()
}

// Intersects returns true if this rectangle overlaps another.
func (r RectInt) Intersects(other RectInt) bool {
	return r.X < other.Right() && r.Right() > other.X &&
		r.Y < other.Bottom() && r.Bottom() > other.Y
}

// Pad grows the rectangle by the given margins (negative values shrink it).
func (r RectInt) Pad(left, right, top, bottom int) RectInt {
	return RectFromEdges(r.Left()-left, r.Right()+right, r.Top()-top, r.Bottom()+bottom)
}

// Clamp limits the rectangle to [0, width) x [0, height).
func (r RectInt) Clamp(width, height int) RectInt {
	left := clampInt(r.Left(), 0, width)
	right := clampInt(r.Right(), 0, width)
	top := clampInt(r.Top(), 0, height)
	bottom := clampInt(r.Bottom(), 0, height)
	return RectFromEdges(left, right, top, bottom)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
