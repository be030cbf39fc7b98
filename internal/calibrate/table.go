package calibrate

import (
	"encoding/csv"
	"io"
	"strconv"
)

// CropRow is one row of the crop table.
type CropRow struct {
	Template      string
	PositionID    int
	PlateRow      int
	PlateCol      int
	CenterX       float64
	CenterY       float64
	RoughLeft     int
	RoughRight    int
	RoughTop      int
	RoughBottom   int
	RotationAngle float64
	FineLeft      int
	FineRight     int
	FineTop       int
	FineBottom    int
	Invert        bool
	Gridded       bool
}

// GridRow is one row of the grid table.
type GridRow struct {
	Template   string
	PositionID int
	ColonyRow  int
	ColonyCol  int
	X          float64
	Y          float64
	Left       int
	Right      int
	Top        int
	Bottom     int
	Observed   bool
}

// Column names of the CSV tables.
var (
	CropHeader = []string{
		"template", "position_id", "plate_row", "plate_col", "center_x", "center_y",
		"rough_left", "rough_right", "rough_top", "rough_bottom",
		"rotation_angle", "fine_left", "fine_right", "fine_top", "fine_bottom",
		"invert", "gridded",
	}
	GridHeader = []string{
		"template", "position_id", "colony_row", "colony_col", "x", "y",
		"left", "right", "top", "bottom", "observed",
	}
)

// CropTable returns one crop row per record.
func CropTable(records []Record) []CropRow {
	rows := make([]CropRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, CropRow{
			Template:      r.Template,
			PositionID:    r.Position.ID,
			PlateRow:      r.Position.PlateRow,
			PlateCol:      r.Position.PlateCol,
			CenterX:       r.Position.CenterX,
			CenterY:       r.Position.CenterY,
			RoughLeft:     r.Position.RoughLeft,
			RoughRight:    r.Position.RoughRight,
			RoughTop:      r.Position.RoughTop,
			RoughBottom:   r.Position.RoughBottom,
			RotationAngle: r.Crop.RotationAngle,
			FineLeft:      r.Crop.FineLeft,
			FineRight:     r.Crop.FineRight,
			FineTop:       r.Crop.FineTop,
			FineBottom:    r.Crop.FineBottom,
			Invert:        r.Invert,
			Gridded:       r.HasGrid(),
		})
	}
	return rows
}

// GridTable returns one row per grid cell of every gridded record, in
// record order and row-major cell order.
func GridTable(records []Record) []GridRow {
	var rows []GridRow
	for _, r := range records {
		for _, c := range r.Grid.Cells {
			rows = append(rows, GridRow{
				Template:   r.Template,
				PositionID: r.Position.ID,
				ColonyRow:  c.Row,
				ColonyCol:  c.Col,
				X:          c.X,
				Y:          c.Y,
				Left:       c.Left,
				Right:      c.Right,
				Top:        c.Top,
				Bottom:     c.Bottom,
				Observed:   c.Observed,
			})
		}
	}
	return rows
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }

// WriteCropCSV writes the crop table with its header.
func WriteCropCSV(w io.Writer, rows []CropRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CropHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Template,
			strconv.Itoa(r.PositionID),
			strconv.Itoa(r.PlateRow),
			strconv.Itoa(r.PlateCol),
			ftoa(r.CenterX),
			ftoa(r.CenterY),
			strconv.Itoa(r.RoughLeft),
			strconv.Itoa(r.RoughRight),
			strconv.Itoa(r.RoughTop),
			strconv.Itoa(r.RoughBottom),
			ftoa(r.RotationAngle),
			strconv.Itoa(r.FineLeft),
			strconv.Itoa(r.FineRight),
			strconv.Itoa(r.FineTop),
			strconv.Itoa(r.FineBottom),
			strconv.FormatBool(r.Invert),
			strconv.FormatBool(r.Gridded),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGridCSV writes the grid table with its header. An empty table still
// carries the header.
func WriteGridCSV(w io.Writer, rows []GridRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(GridHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Template,
			strconv.Itoa(r.PositionID),
			strconv.Itoa(r.ColonyRow),
			strconv.Itoa(r.ColonyCol),
			ftoa(r.X),
			ftoa(r.Y),
			strconv.Itoa(r.Left),
			strconv.Itoa(r.Right),
			strconv.Itoa(r.Top),
			strconv.Itoa(r.Bottom),
			strconv.FormatBool(r.Observed),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
