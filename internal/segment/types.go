// Package segment finds colony-like foreground objects on a plate image.
package segment

import (
	"errors"

	"plate-calibrator/pkg/geometry"
)

// ErrInsufficientObjects is returned when too few objects are found to infer a grid.
var ErrInsufficientObjects = errors.New("insufficient objects")

// Object is one segmented foreground region.
// X and Y are 1-based pixel coordinates: pixel i covers [i-0.5, i+0.5).
type Object struct {
	Label        int              `json:"label"`
	X            float64          `json:"x"`
	Y            float64          `json:"y"`
	Area         int              `json:"area"`
	Eccentricity float64          `json:"eccentricity"`
	Bounds       geometry.RectInt `json:"bounds"` // 0-based, exclusive right/bottom
}

// Center returns the centroid as a point.
func (o Object) Center() geometry.Point2D {
	return geometry.Point2D{X: o.X, Y: o.Y}
}

// Xs returns the centroid x coordinates of objs.
func Xs(objs []Object) []float64 {
	out := make([]float64, len(objs))
	for i, o := range objs {
		out[i] = o.X
	}
	return out
}

// Ys returns the centroid y coordinates of objs.
func Ys(objs []Object) []float64 {
	out := make([]float64, len(objs))
	for i, o := range objs {
		out[i] = o.Y
	}
	return out
}
