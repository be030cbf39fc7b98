package plate

import (
	"fmt"
	"math"

	"plate-calibrator/internal/config"
	"plate-calibrator/internal/raster"

	"gonum.org/v1/gonum/stat"
)

// Scores at or below this are treated as a blank plate.
const minAlignmentScore = 1e-9

// AlignmentScore measures how axis-aligned the bright structure of img is:
// the variance of the row projection plus the variance of the column
// projection. Aligned rows and columns of colonies give peaked projections.
func AlignmentScore(img *raster.Gray) float64 {
	if img.Empty() {
		return 0
	}
	return stat.Variance(img.RowMeans(), nil) + stat.Variance(img.ColMeans(), nil)
}

// Rotation is the outcome of CalibrateRotation.
type Rotation struct {
	Angle    float64 // degrees, counter-clockwise
	Score    float64
	Searched int  // candidates scored
	Fallback bool // no usable score; Angle is the rough angle
}

// CalibrateRotation searches [Rotate-Range, Rotate+Range] in AngleStep
// increments for the angle that best axis-aligns the plate. Candidates are
// visited outward from the rough angle so ties favour it. A blank plate or
// non-finite scores return the rough angle unchanged.
func CalibrateRotation(img *raster.Gray, p config.Params) (Rotation, error) {
	rot := Rotation{Angle: p.Rotate, Fallback: true}
	if img.Empty() {
		return rot, nil
	}

	step := p.AngleStep
	if step <= 0 {
		step = 0.1
	}
	n := int(math.Round(p.Range / step))

	// Score the foreground, which is bright after orientation
	oriented := img
	if !p.Invert {
		oriented = img.Invert()
	}

	best := math.Inf(-1)
	for i := 0; i <= 2*n; i++ {
		// 0, -1, +1, -2, +2, ...
		k := (i + 1) / 2
		if i%2 == 1 {
			k = -k
		}
		angle := p.Rotate + float64(k)*step

		rotated, err := raster.Rotate(oriented, angle)
		if err != nil {
			return rot, fmt.Errorf("rotate %.2f: %w", angle, err)
		}
		score := AlignmentScore(rotated)
		rot.Searched++

		if math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}
		if score > best {
			best = score
			rot.Angle = angle
			rot.Score = score
		}
	}

	if best <= minAlignmentScore {
		return Rotation{Angle: p.Rotate, Score: math.Max(best, 0), Searched: rot.Searched, Fallback: true}, nil
	}
	rot.Fallback = false
	return rot, nil
}
