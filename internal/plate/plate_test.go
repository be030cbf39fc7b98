package plate

import (
	"testing"

	"plate-calibrator/internal/config"
	"plate-calibrator/internal/raster"
	"plate-calibrator/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drawDisc(g *raster.Gray, cx, cy, r int, v float32) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r {
				g.Set(x, y, v)
			}
		}
	}
}

func background(w, h int, v float32) *raster.Gray {
	g := raster.New(w, h)
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

// drawColonies paints a rows x cols grid of dark discs starting at (x0, y0).
func drawColonies(g *raster.Gray, x0, y0, rows, cols, pitch, radius int) {
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			drawDisc(g, x0+c*pitch, y0+r*pitch, radius, 0.1)
		}
	}
}

func templateParams() config.Params {
	p := config.DefaultParams().WithGrid(2, 3).WithLayout(2, 2)
	p.Thresh = 0.05
	return p
}

// twoByTwoTemplate has four plates of 2x3 colonies.
func twoByTwoTemplate() *raster.Gray {
	g := background(400, 300, 0.9)
	for _, oy := range []int{40, 190} {
		for _, ox := range []int{40, 240} {
			drawColonies(g, ox+15, oy+15, 2, 3, 30, 8)
		}
	}
	return g
}

func TestLocateRoughTwoByTwo(t *testing.T) {
	positions, err := LocateRough(twoByTwoTemplate(), templateParams())
	require.NoError(t, err)
	require.Len(t, positions, 4)

	for _, pos := range positions {
		assert.Equal(t, SlotID(pos.PlateRow, pos.PlateCol, 2), pos.ID)
		ox := 40 + 200*(pos.PlateCol-1)
		oy := 40 + 150*(pos.PlateRow-1)

		// Colony extents: x in [ox+7, ox+83], y in [oy+7, oy+53]
		assert.InDelta(t, ox+7, pos.RoughLeft, 4, "slot %d", pos.ID)
		assert.InDelta(t, ox+84, pos.RoughRight, 4, "slot %d", pos.ID)
		assert.InDelta(t, oy+7, pos.RoughTop, 4, "slot %d", pos.ID)
		assert.InDelta(t, oy+54, pos.RoughBottom, 4, "slot %d", pos.ID)
		assert.InDelta(t, float64(ox+45), pos.CenterX, 3)
		assert.InDelta(t, float64(oy+30), pos.CenterY, 3)
	}

	// Non-overlapping
	for i := range positions {
		for j := i + 1; j < len(positions); j++ {
			assert.False(t, positions[i].Rect().Intersects(positions[j].Rect()))
		}
	}
}

func TestLocateRoughPaddingClamps(t *testing.T) {
	p := templateParams()
	p.RoughPad = [4]int{100, 5, 100, 5}

	positions, err := LocateRough(twoByTwoTemplate(), p)
	require.NoError(t, err)
	require.Len(t, positions, 4)

	first := positions[0]
	assert.Equal(t, 0, first.RoughLeft)
	assert.Equal(t, 0, first.RoughTop)
	assert.InDelta(t, 40+84+5, first.RoughRight, 4)
}

func TestLocateRoughInsufficientContrast(t *testing.T) {
	// Only the top row of plates is present
	g := background(400, 300, 0.9)
	for _, ox := range []int{40, 240} {
		drawColonies(g, ox+15, 55, 2, 3, 30, 8)
	}

	positions, err := LocateRough(g, templateParams())
	assert.ErrorIs(t, err, ErrInsufficientContrast)
	assert.Len(t, positions, 2, "rectangles found are still returned")
}

func TestMatchPositionsComplete(t *testing.T) {
	found, err := LocateRough(twoByTwoTemplate(), templateParams())
	require.NoError(t, err)

	p := templateParams()
	p.Positions = []config.Position{
		{ID: 7, Row: 2, Col: 2},
		{ID: 3, Row: 1, Col: 1},
	}

	m := MatchPositions(found, p)
	require.Len(t, m.Positions, 2)
	assert.Empty(t, m.Unresolved)
	assert.Empty(t, m.Fallback)

	assert.Equal(t, 7, m.Positions[0].ID)
	assert.Greater(t, m.Positions[0].RoughLeft, 200)
	assert.Greater(t, m.Positions[0].RoughTop, 150)
	assert.Equal(t, 3, m.Positions[1].ID)
	assert.Less(t, m.Positions[1].RoughLeft, 200)
}

func TestMatchPositionsDeclaredOrderAndFallback(t *testing.T) {
	found := []Position{
		NewPosition(1, 1, 1, geometry.RectFromEdges(10, 50, 10, 50)),
		NewPosition(2, 1, 2, geometry.RectFromEdges(60, 100, 10, 50)),
	}

	p := templateParams()
	p.Positions = []config.Position{
		{ID: 11, Row: 1, Col: 1},
		{ID: 12, Row: 1, Col: 2},
		{ID: 13, Row: 2, Col: 1},
		{ID: 14, Row: 2, Col: 2},
	}

	m := MatchPositions(found, p)
	require.Len(t, m.Positions, 2)
	assert.Equal(t, 11, m.Positions[0].ID)
	assert.Equal(t, 10, m.Positions[0].RoughLeft)
	assert.Equal(t, 12, m.Positions[1].ID)
	assert.Len(t, m.Unresolved, 2)

	crop := geometry.RectInt{X: 0, Y: 0, Width: 120, Height: 90}
	p.DefaultCrop = &crop
	m = MatchPositions(found, p)
	require.Len(t, m.Positions, 4)
	assert.Equal(t, []int{13, 14}, m.Fallback)
	assert.Empty(t, m.Unresolved)
	assert.Equal(t, 120, m.Positions[3].RoughRight)
}

func TestMatchPositionsDefaultsToLayout(t *testing.T) {
	found, err := LocateRough(twoByTwoTemplate(), templateParams())
	require.NoError(t, err)

	m := MatchPositions(found, templateParams())
	require.Len(t, m.Positions, 4)
	for i, pos := range m.Positions {
		assert.Equal(t, i+1, pos.ID)
	}
}

func plateWithColonies() *raster.Gray {
	g := background(190, 130, 0.9)
	drawColonies(g, 20, 20, 4, 6, 30, 8)
	return g
}

func TestCalibrateRotationRecoversSkew(t *testing.T) {
	skewed, err := raster.Rotate(plateWithColonies(), 2)
	require.NoError(t, err)

	p := config.DefaultParams().WithRotation(0, 3)
	rot, err := CalibrateRotation(skewed, p)
	require.NoError(t, err)
	assert.False(t, rot.Fallback)
	assert.InDelta(t, -2, rot.Angle, 0.3)
	assert.Equal(t, 61, rot.Searched)
}

func TestCalibrateRotationPrefersRoughAngleWhenAligned(t *testing.T) {
	p := config.DefaultParams().WithRotation(0, 1)
	rot, err := CalibrateRotation(plateWithColonies(), p)
	require.NoError(t, err)
	assert.InDelta(t, 0, rot.Angle, 0.15)
}

func TestCalibrateRotationBlankFallsBack(t *testing.T) {
	p := config.DefaultParams().WithRotation(1.2, 2)
	rot, err := CalibrateRotation(background(100, 80, 0.5), p)
	require.NoError(t, err)
	assert.True(t, rot.Fallback)
	assert.Equal(t, 1.2, rot.Angle)
}

func TestLocateFineSkipsWallAndPads(t *testing.T) {
	g := background(200, 150, 0.9)
	for y := 0; y < 150; y++ {
		for x := 0; x < 5; x++ {
			g.Set(x, y, 0.1)
		}
	}
	drawColonies(g, 40, 40, 3, 4, 30, 8)

	p := config.DefaultParams()
	p.FinePad = [4]int{5, 5, 5, 5}

	rect, err := LocateFine(g, p)
	require.NoError(t, err)
	assert.InDelta(t, 29, rect.Left(), 1)
	assert.InDelta(t, 142, rect.Right(), 1)
	assert.InDelta(t, 29, rect.Top(), 1)
	assert.InDelta(t, 112, rect.Bottom(), 1)
	assert.True(t, g.Bounds().Contains(rect))
}

func TestLocateFineClampsPadding(t *testing.T) {
	g := background(120, 100, 0.9)
	drawColonies(g, 10, 10, 3, 4, 30, 8)

	p := config.DefaultParams()
	p.FinePad = [4]int{50, 50, 50, 50}

	rect, err := LocateFine(g, p)
	require.NoError(t, err)
	assert.Equal(t, g.Bounds(), rect)
}

func TestLocateFineBlankKeepsBounds(t *testing.T) {
	g := background(80, 60, 0.5)
	rect, err := LocateFine(g, config.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, g.Bounds(), rect)
}

func TestFirstEdge(t *testing.T) {
	frac := []float64{0.9, 0.8, 0.0, 0.1, 0.3, 0.4, 0.0, 0.6}
	assert.Equal(t, 4, firstEdge(frac, 0.2, false))
	// From the end: 0.6 is saturated, then 0.0, then 0.4
	assert.Equal(t, 5, firstEdge(frac, 0.2, true))
	assert.Equal(t, -1, firstEdge([]float64{0.1, 0.1}, 0.2, false))
}

func TestForegroundRunsBridgesAndDrops(t *testing.T) {
	frac := []float64{0, 1, 1, 0, 1, 1, 0, 0, 0, 0, 1, 0, 0, 1, 1, 1, 1}
	runs := foregroundRuns(frac, 0.5, 1, 3)
	assert.Equal(t, []span{{1, 6}, {13, 17}}, runs)

	assert.Equal(t, []span{{1, 6}}, keepLongest(runs, 1))
}
