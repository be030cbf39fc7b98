package calibrate

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"plate-calibrator/internal/config"
	"plate-calibrator/internal/grid"
	"plate-calibrator/internal/logger"
	"plate-calibrator/internal/plate"
	"plate-calibrator/internal/raster"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func background(w, h int, v float32) *raster.Gray {
	g := raster.New(w, h)
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func drawDisc(g *raster.Gray, cx, cy, r int) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r {
				g.Set(x, y, 0.1)
			}
		}
	}
}

// twoPlateTemplate holds two side-by-side plates of 4x6 dark colonies.
func twoPlateTemplate() Template {
	g := background(500, 200, 0.9)
	for _, ox := range []int{40, 290} {
		for r := 0; r < 4; r++ {
			for c := 0; c < 6; c++ {
				drawDisc(g, ox+15+30*c, 55+30*r, 8)
			}
		}
	}
	return Template{Name: "template-a", Image: g}
}

func testParams() config.Params {
	p := config.DefaultParams().WithGrid(4, 6).WithLayout(1, 2).WithRotation(0, 1)
	p.Thresh = 0.05
	p.RoughPad = [4]int{10, 10, 10, 10}
	p.Workers = 2
	return p
}

func locateFirst(t *testing.T, tmpl Template, p config.Params) plate.Position {
	t.Helper()
	found, err := plate.LocateRough(tmpl.Image, p)
	require.NoError(t, err)
	require.Len(t, found, 2)
	return found[0]
}

func TestPlateCalibratesSyntheticPlate(t *testing.T) {
	tmpl := twoPlateTemplate()
	p := testParams()
	pos := locateFirst(t, tmpl, p)

	rec, err := Plate(context.Background(), tmpl, pos, p)
	require.NoError(t, err)

	assert.Equal(t, "template-a", rec.Template)
	assert.Equal(t, pos.ID, rec.Crop.ID)
	assert.InDelta(t, 0, rec.Crop.RotationAngle, 0.2)
	assert.Equal(t, 24, rec.Objects)
	require.True(t, rec.HasGrid())
	require.Len(t, rec.Grid.Cells, 24)
	assert.Equal(t, 24, rec.Grid.Observed)
	assert.True(t, rec.Grid.Rows.Valid(4))
	assert.True(t, rec.Grid.Cols.Valid(6))

	// Row-major cells with a 30 px pitch
	for i, c := range rec.Grid.Cells {
		assert.Equal(t, i/6+1, c.Row)
		assert.Equal(t, i%6+1, c.Col)
	}
	first, _ := rec.Grid.Cell(1, 1)
	second, _ := rec.Grid.Cell(1, 2)
	below, _ := rec.Grid.Cell(2, 1)
	assert.InDelta(t, 30, second.X-first.X, 2)
	assert.InDelta(t, 30, below.Y-first.Y, 2)

	fine := rec.Crop.FineRight - rec.Crop.FineLeft
	for _, c := range rec.Grid.Cells {
		assert.GreaterOrEqual(t, c.Left, 1)
		assert.LessOrEqual(t, c.Right, fine)
		assert.Less(t, c.Left, c.Right)
		assert.Less(t, c.Top, c.Bottom)
	}
}

func TestPlateSizeMismatchKeepsCrop(t *testing.T) {
	tmpl := twoPlateTemplate()
	p := testParams()
	p.ReferenceKeys = 4
	pos := locateFirst(t, tmpl, p)

	rec, err := Plate(context.Background(), tmpl, pos, p)
	assert.ErrorIs(t, err, ErrSizeMismatch)
	assert.False(t, rec.HasGrid())
	assert.Equal(t, pos.ID, rec.Crop.ID)
	assert.Greater(t, rec.Crop.FineRight, rec.Crop.FineLeft)
}

func TestPlateBlankReportsInsufficientObjects(t *testing.T) {
	tmpl := Template{Name: "blank", Image: background(120, 100, 0.9)}
	pos := plate.NewPosition(1, 1, 1, tmpl.Image.Bounds())

	rec, err := Plate(context.Background(), tmpl, pos, testParams())
	assert.ErrorIs(t, err, ErrInsufficientObjects)
	assert.True(t, rec.Rotation.Fallback)
	assert.False(t, rec.HasGrid())
}

func TestPlateEmptyRoughCrop(t *testing.T) {
	tmpl := Template{Name: "tiny", Image: background(10, 10, 0.9)}
	pos := plate.NewPosition(1, 1, 1, tmpl.Image.Bounds().Pad(-20, 0, 0, 0))

	_, err := Plate(context.Background(), tmpl, pos, testParams())
	assert.ErrorIs(t, err, ErrInsufficientContrast)
}

func TestCheckSize(t *testing.T) {
	assert.NoError(t, CheckSize(96, 0))
	assert.NoError(t, CheckSize(96, 24))
	assert.NoError(t, CheckSize(96, 6))
	assert.NoError(t, CheckSize(96, 96))
	assert.ErrorIs(t, CheckSize(96, 32), ErrSizeMismatch)
	assert.ErrorIs(t, CheckSize(96, 5), ErrSizeMismatch)
}

func TestBatchPartialFailure(t *testing.T) {
	templates := []Template{
		twoPlateTemplate(),
		{Name: "blank", Image: background(500, 200, 0.9)},
	}

	rep, err := Batch(context.Background(), templates, testParams(), logger.Nop())
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)

	assert.Equal(t, 2, rep.Gridded())
	for _, rec := range rep.Records {
		if rec.HasGrid() {
			assert.Equal(t, "template-a", rec.Template)
		}
	}
	require.NotEmpty(t, rep.Warnings)
	for _, w := range rep.Warnings {
		assert.Equal(t, "blank", w.Template)
	}
}

func TestBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := Batch(ctx, []Template{twoPlateTemplate()}, testParams(), logger.Nop())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rep.Records)
}

func TestBatchRejectsInvalidParams(t *testing.T) {
	p := testParams()
	p.GridRows = 0

	_, err := Batch(context.Background(), []Template{twoPlateTemplate()}, p, logger.Nop())
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestWarningMessage(t *testing.T) {
	w := Warning{Template: "t1", PositionID: 3, Err: ErrSizeMismatch}
	assert.Equal(t, "t1 position 3: grid size does not match reference keys", w.Error())
	assert.ErrorIs(t, w, ErrSizeMismatch)

	w = Warning{Template: "t1", Err: ErrInsufficientContrast}
	assert.Equal(t, "t1: insufficient contrast", w.Error())
}

func sampleRecords() []Record {
	pos := plate.NewPosition(2, 1, 2, plate.Position{RoughLeft: 10, RoughRight: 110, RoughTop: 20, RoughBottom: 80}.Rect())
	return []Record{
		{
			Template: "t1",
			Position: pos,
			Crop:     plate.FineCrop{ID: 2, RotationAngle: -0.5, FineLeft: 3, FineRight: 97, FineTop: 4, FineBottom: 58},
			Grid: grid.Result{
				Cells: []grid.Cell{
					{Row: 1, Col: 1, X: 10.25, Y: 12, Left: 1, Right: 20, Top: 2, Bottom: 22, Observed: true},
					{Row: 1, Col: 2, X: 40, Y: 12, Left: 30, Right: 50, Top: 2, Bottom: 22},
				},
			},
		},
		{
			Template: "t1",
			Position: plate.NewPosition(1, 1, 1, plate.Position{RoughRight: 5, RoughBottom: 5}.Rect()),
			Invert:   true,
		},
	}
}

func TestTables(t *testing.T) {
	records := sampleRecords()

	crops := CropTable(records)
	require.Len(t, crops, 2)
	assert.Equal(t, 2, crops[0].PositionID)
	assert.Equal(t, 10, crops[0].RoughLeft)
	assert.Equal(t, 97, crops[0].FineRight)
	assert.Equal(t, -0.5, crops[0].RotationAngle)
	assert.True(t, crops[0].Gridded)
	assert.False(t, crops[1].Gridded)
	assert.True(t, crops[1].Invert)

	cells := GridTable(records)
	require.Len(t, cells, 2)
	assert.Equal(t, 2, cells[1].ColonyCol)
	assert.Equal(t, 2, cells[1].PositionID)
}

func TestWriteCSV(t *testing.T) {
	records := sampleRecords()

	var buf bytes.Buffer
	require.NoError(t, WriteGridCSV(&buf, GridTable(records)))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(GridHeader, ","), lines[0])
	assert.Equal(t, "t1,2,1,1,10.250,12.000,1,20,2,22,true", lines[1])

	buf.Reset()
	require.NoError(t, WriteCropCSV(&buf, CropTable(records)))
	lines = strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "t1,2,1,2,60.000,50.000,10,110,20,80,-0.500,3,97,4,58,false,true", lines[1])
}

func TestWriteGridCSVEmptyKeepsHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGridCSV(&buf, nil))
	assert.Equal(t, strings.Join(GridHeader, ",")+"\n", buf.String())
}
