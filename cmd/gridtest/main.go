// Command gridtest runs the calibration pipeline on one template and prints
// every stage for one plate position.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"

	"plate-calibrator/internal/config"
	"plate-calibrator/internal/grid"
	imgload "plate-calibrator/internal/image"
	"plate-calibrator/internal/plate"
	"plate-calibrator/internal/raster"
	"plate-calibrator/internal/segment"

	"github.com/disintegration/imaging"
)

func main() {
	configPath := flag.String("config", "", "Calibration config (JSON)")
	input := flag.String("i", "", "Template image")
	position := flag.Int("p", 1, "Plate position to calibrate")
	whole := flag.Bool("whole", false, "Treat the whole image as one plate")
	overlay := flag.String("overlay", "", "Write the fine crop with selection boxes to this PNG")
	flag.Parse()

	if *input == "" {
		fmt.Println("Usage: gridtest -i <image> [-config cal.json] [-p position] [-whole] [-overlay out.png]")
		os.Exit(1)
	}

	p := config.DefaultParams()
	if *configPath != "" {
		var err error
		if p, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	tmpl, err := imgload.Load(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("=== Template %s: %dx%d (DPI %.0f) ===\n", tmpl.Name, tmpl.Width(), tmpl.Height(), tmpl.DPI)

	// Step 1: Rough crop
	var pos plate.Position
	if *whole {
		pos = plate.NewPosition(1, 1, 1, tmpl.Gray.Bounds())
	} else {
		found, err := plate.LocateRough(tmpl.Gray, p)
		fmt.Printf("\n=== Rough crop: %d rectangles ===\n", len(found))
		for _, f := range found {
			fmt.Printf("  #%d (%d,%d): x [%d,%d) y [%d,%d)\n",
				f.ID, f.PlateRow, f.PlateCol, f.RoughLeft, f.RoughRight, f.RoughTop, f.RoughBottom)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Rough crop: %v\n", err)
		}
		m := plate.MatchPositions(found, p)
		ok := false
		for _, mp := range m.Positions {
			if mp.ID == *position {
				pos, ok = mp, true
			}
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "Position %d not found\n", *position)
			os.Exit(1)
		}
	}
	rough := tmpl.Gray.Crop(pos.Rect())

	// Step 2: Rotation
	rot, err := plate.CalibrateRotation(rough, p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rotation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\n=== Rotation ===\n")
	fmt.Printf("Angle: %.2f° (score %.6f, %d candidates, fallback %v)\n", rot.Angle, rot.Score, rot.Searched, rot.Fallback)

	rotated, err := raster.Rotate(rough, rot.Angle)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rotate failed: %v\n", err)
		os.Exit(1)
	}

	// Step 3: Fine crop
	fine, err := plate.LocateFine(rotated, p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fine crop failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\n=== Fine crop ===\n")
	fmt.Printf("x [%d,%d) y [%d,%d) of %dx%d\n", fine.Left(), fine.Right(), fine.Top(), fine.Bottom(), rotated.Width, rotated.Height)
	img := rotated.Crop(fine)

	// Step 4: Segmentation
	seg, segErr := segment.Segment(img, p)
	fmt.Printf("\n=== Segmentation ===\n")
	fmt.Printf("Threshold: %.3f  components: %d  markers: %d  objects: %d\n",
		seg.Threshold, seg.Components, seg.Markers, len(seg.Objects))
	if segErr != nil {
		fmt.Fprintf(os.Stderr, "Segmentation: %v\n", segErr)
		os.Exit(1)
	}

	// Step 5: Grid
	inf, gridErr := grid.Infer(seg.Objects, img.Width, img.Height, p)
	fmt.Printf("\n=== Grid ===\n")
	fmt.Printf("Column centers: %s\n", formatFloats(inf.ColClusters.Centers))
	fmt.Printf("Row centers:    %s\n", formatFloats(inf.RowClusters.Centers))
	fmt.Printf("Column axis:    %s\n", formatFloats(inf.Cols))
	fmt.Printf("Row axis:       %s\n", formatFloats(inf.Rows))
	if gridErr != nil {
		fmt.Fprintf(os.Stderr, "Grid: %v\n", gridErr)
		os.Exit(1)
	}
	fmt.Printf("Cells: %d (%d observed), radius %.1f px\n", len(inf.Cells), inf.Observed, inf.Radius)

	if *overlay != "" {
		if err := imaging.Save(drawCells(img, inf.Cells), *overlay); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save overlay: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nOverlay written to %s\n", *overlay)
	}
}

func formatFloats(v []float64) string {
	s := "["
	for i, x := range v {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%.1f", x)
	}
	return s + "]"
}

// drawCells outlines each selection box, green when observed and red when filled in.
func drawCells(img *raster.Gray, cells []grid.Cell) *image.NRGBA {
	out := imaging.Clone(img.ToImage())
	for _, c := range cells {
		col := color.NRGBA{R: 220, A: 255}
		if c.Observed {
			col = color.NRGBA{G: 200, A: 255}
		}
		// Boxes are 1-based and inclusive
		l, r, t, b := c.Left-1, c.Right-1, c.Top-1, c.Bottom-1
		for x := l; x <= r; x++ {
			out.Set(x, t, col)
			out.Set(x, b, col)
		}
		for y := t; y <= b; y++ {
			out.Set(l, y, col)
			out.Set(r, y, col)
		}
	}
	return out
}
