// Package calibrate runs the plate calibration pipeline: rough crop,
// rotation, fine crop, segmentation and grid inference.
package calibrate

import (
	"context"
	"fmt"
	"math"

	"plate-calibrator/internal/config"
	"plate-calibrator/internal/grid"
	"plate-calibrator/internal/plate"
	"plate-calibrator/internal/raster"
	"plate-calibrator/internal/segment"
)

// Template is one photograph holding one or more plates.
type Template struct {
	Name  string
	Image *raster.Gray
}

// Record is the calibration of one plate position.
type Record struct {
	Template string
	Position plate.Position
	Crop     plate.FineCrop
	Rotation plate.Rotation
	Invert   bool

	// Objects segmented on the fine crop
	Objects int

	// Grid is empty when the plate could not be gridded; the crop is still valid.
	Grid grid.Result
}

// HasGrid reports whether the record carries grid cells.
func (r Record) HasGrid() bool {
	return len(r.Grid.Cells) > 0
}

// Plate calibrates one plate position of a template.
//
// The returned record carries the crop as soon as it is known, so a plate
// that fails segmentation or gridding still reports its crop alongside the
// error.
func Plate(ctx context.Context, tmpl Template, pos plate.Position, p config.Params) (Record, error) {
	rec := Record{
		Template: tmpl.Name,
		Position: pos,
		Invert:   p.Invert,
	}
	if err := ctx.Err(); err != nil {
		return rec, err
	}

	rough := tmpl.Image.Crop(pos.Rect())
	if rough.Empty() {
		return rec, fmt.Errorf("%w: rough crop %+v is empty", ErrInsufficientContrast, pos.Rect())
	}

	// Straighten
	rot, err := plate.CalibrateRotation(rough, p)
	if err != nil {
		return rec, fmt.Errorf("rotation: %w", err)
	}
	rec.Rotation = rot

	rotated, err := raster.Rotate(rough, rot.Angle)
	if err != nil {
		return rec, fmt.Errorf("rotate %.2f: %w", rot.Angle, err)
	}

	fine, err := plate.LocateFine(rotated, p)
	if err != nil {
		return rec, fmt.Errorf("fine crop: %w", err)
	}
	rec.Crop = plate.FineCrop{
		ID:            pos.ID,
		RotationAngle: rot.Angle,
		FineLeft:      fine.Left(),
		FineRight:     fine.Right(),
		FineTop:       fine.Top(),
		FineBottom:    fine.Bottom(),
	}

	img := rotated.Crop(fine)

	seg, err := segment.Segment(img, p)
	rec.Objects = len(seg.Objects)
	if err != nil {
		return rec, fmt.Errorf("segment: %w", err)
	}

	inf, err := grid.Infer(seg.Objects, img.Width, img.Height, p)
	if err != nil {
		return rec, fmt.Errorf("grid: %w", err)
	}

	if err := CheckSize(len(inf.Cells), p.ReferenceKeys); err != nil {
		return rec, err
	}
	rec.Grid = inf.Result
	return rec, nil
}

// CheckSize verifies that cells is keys times a perfect square, the layout
// of square replicate blocks per reference key. keys <= 0 disables the check.
func CheckSize(cells, keys int) error {
	if keys <= 0 {
		return nil
	}
	if cells%keys != 0 {
		return fmt.Errorf("%w: %d cells for %d keys", ErrSizeMismatch, cells, keys)
	}
	q := cells / keys
	s := int(math.Round(math.Sqrt(float64(q))))
	if s*s != q {
		return fmt.Errorf("%w: %d cells per key is not a square replicate block", ErrSizeMismatch, q)
	}
	return nil
}
