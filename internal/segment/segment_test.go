package segment

import (
	"math"
	"testing"

	"plate-calibrator/internal/config"
	"plate-calibrator/internal/raster"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drawDisc paints a filled disc centered on pixel (cx, cy).
func drawDisc(g *raster.Gray, cx, cy, r int, v float32) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r {
				g.Set(x, y, v)
			}
		}
	}
}

func fill(g *raster.Gray, v float32) {
	for i := range g.Pix {
		g.Pix[i] = v
	}
}

// plateImage renders dark colonies on a light plate.
func plateImage(rows, cols, x0, dx, y0, dy, radius int) *raster.Gray {
	g := raster.New(x0*2+dx*(cols-1), y0*2+dy*(rows-1))
	fill(g, 0.9)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			drawDisc(g, x0+c*dx, y0+r*dy, radius, 0.2)
		}
	}
	return g
}

func TestSegmentRegularGrid(t *testing.T) {
	img := plateImage(8, 12, 20, 40, 25, 50, 12)
	p := config.DefaultParams().WithGrid(8, 12)

	res, err := Segment(img, p)
	require.NoError(t, err)
	require.Len(t, res.Objects, 96)
	assert.Equal(t, 96, res.Components)

	// Centroids are 1-based
	found := make(map[[2]int]bool)
	for _, o := range res.Objects {
		c := int(math.Round((o.X - 1 - 20) / 40))
		r := int(math.Round((o.Y - 1 - 25) / 50))
		assert.InDelta(t, float64(20+c*40+1), o.X, 1, "object %d", o.Label)
		assert.InDelta(t, float64(25+r*50+1), o.Y, 1, "object %d", o.Label)
		assert.Less(t, o.Eccentricity, 0.3)
		assert.Greater(t, o.Area, 300)
		found[[2]int{r, c}] = true
	}
	assert.Len(t, found, 96)
}

func TestSegmentInvertedPolarity(t *testing.T) {
	img := plateImage(2, 3, 30, 60, 30, 60, 14)
	img = img.Invert()

	p := config.DefaultParams().WithGrid(2, 3).WithInvert(true)
	res, err := Segment(img, p)
	require.NoError(t, err)
	assert.Len(t, res.Objects, 6)
}

func TestSegmentSplitsTouchingColonies(t *testing.T) {
	img := raster.New(120, 60)
	fill(img, 0.9)
	drawDisc(img, 45, 30, 16, 0.2)
	drawDisc(img, 75, 30, 16, 0.2)

	p := config.DefaultParams().WithGrid(1, 2)
	p.BlurSigma = 1

	res, err := Segment(img, p)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Components)
	require.Len(t, res.Objects, 2)

	xs := Xs(res.Objects)
	assert.InDelta(t, 46, min(xs[0], xs[1]), 3)
	assert.InDelta(t, 76, max(xs[0], xs[1]), 3)
}

func TestSegmentDropsSmallAndFlagsElongated(t *testing.T) {
	img := raster.New(200, 80)
	fill(img, 0.9)
	drawDisc(img, 30, 40, 12, 0.2)
	drawDisc(img, 90, 40, 2, 0.2)
	for y := 37; y < 43; y++ {
		for x := 120; x < 190; x++ {
			img.Set(x, y, 0.2)
		}
	}

	p := config.DefaultParams().WithGrid(1, 2)
	p.BlurSigma = 0.5
	p.MinObjectArea = 40

	res, err := Segment(img, p)
	require.NoError(t, err)
	require.Len(t, res.Objects, 2)

	var round, bar Object
	for _, o := range res.Objects {
		if o.X < 100 {
			round = o
		} else {
			bar = o
		}
	}
	assert.Less(t, round.Eccentricity, 0.3)
	assert.Greater(t, bar.Eccentricity, 0.8)
}

func TestSegmentBlankPlate(t *testing.T) {
	img := raster.New(100, 100)
	fill(img, 0.5)

	res, err := Segment(img, config.DefaultParams())
	assert.ErrorIs(t, err, ErrInsufficientObjects)
	assert.Empty(t, res.Objects)
}

func TestSegmentTooFewObjects(t *testing.T) {
	img := plateImage(1, 3, 30, 60, 30, 60, 12)

	res, err := Segment(img, config.DefaultParams().WithGrid(8, 12))
	assert.ErrorIs(t, err, ErrInsufficientObjects)
	assert.Len(t, res.Objects, 3, "partial result is still returned")
}

func TestEccentricity(t *testing.T) {
	assert.InDelta(t, 0, Eccentricity(4, 4, 0), 1e-12)
	assert.InDelta(t, 1, Eccentricity(1, 0, 0), 1e-12)
	assert.InDelta(t, 0.8660254, Eccentricity(4, 1, 0), 1e-6)
	assert.InDelta(t, 0.8660254, Eccentricity(1, 4, 0), 1e-6)
	assert.Equal(t, 0.0, Eccentricity(0, 0, 0))
}
