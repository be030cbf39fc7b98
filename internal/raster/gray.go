// Package raster holds the normalized grayscale image shared by every
// calibration stage, plus its conversions to and from gocv matrices.
package raster

import (
	"image"
	"image/color"
	"runtime"
	"sync"

	"plate-calibrator/pkg/geometry"
)

// Gray is a row-major image of float32 intensities in [0,1].
// Stages treat a Gray as immutable and derive new images from it.
type Gray struct {
	Width  int
	Height int
	Pix    []float32
}

// New allocates a zeroed image of the given size.
func New(width, height int) *Gray {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Gray{Width: width, Height: height, Pix: make([]float32, width*height)}
}

// FromValues builds an image from a slice of rows.
func FromValues(rows [][]float32) *Gray {
	if len(rows) == 0 {
		return New(0, 0)
	}
	g := New(len(rows[0]), len(rows))
	for y, row := range rows {
		copy(g.Pix[y*g.Width:(y+1)*g.Width], row)
	}
	return g
}

// At returns the intensity at (x, y). Out-of-range coordinates return 0.
func (g *Gray) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return 0
	}
	return g.Pix[y*g.Width+x]
}

// Set writes the intensity at (x, y); out-of-range writes are ignored.
func (g *Gray) Set(x, y int, v float32) {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return
	}
	g.Pix[y*g.Width+x] = v
}

// Bounds returns the full image rectangle.
func (g *Gray) Bounds() geometry.RectInt {
	return geometry.RectInt{Width: g.Width, Height: g.Height}
}

// Empty reports whether the image has no pixels.
func (g *Gray) Empty() bool {
	return g == nil || g.Width == 0 || g.Height == 0
}

// Clone returns a deep copy.
func (g *Gray) Clone() *Gray {
	out := New(g.Width, g.Height)
	copy(out.Pix, g.Pix)
	return out
}

// Crop copies the part of g inside r. The rectangle is clamped to the image first.
func (g *Gray) Crop(r geometry.RectInt) *Gray {
	r = r.Clamp(g.Width, g.Height)
	out := New(r.Width, r.Height)
	for y := 0; y < r.Height; y++ {
		src := (r.Y+y)*g.Width + r.X
		copy(out.Pix[y*r.Width:(y+1)*r.Width], g.Pix[src:src+r.Width])
	}
	return out
}

// Map returns a new image with f applied to every pixel.
func (g *Gray) Map(f func(float32) float32) *Gray {
	out := New(g.Width, g.Height)
	for i, v := range g.Pix {
		out.Pix[i] = f(v)
	}
	return out
}

// Invert returns 1 - v for every pixel.
func (g *Gray) Invert() *Gray {
	return g.Map(func(v float32) float32 { return 1 - v })
}

// Rescale maps [lo, hi] linearly onto [0, 1], clamping values outside the range.
func (g *Gray) Rescale(lo, hi float32) *Gray {
	span := hi - lo
	if span <= 0 {
		return g.Clone()
	}
	return g.Map(func(v float32) float32 {
		v = (v - lo) / span
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	})
}

// RowMeans returns the mean intensity of every row.
func (g *Gray) RowMeans() []float64 {
	out := make([]float64, g.Height)
	if g.Width == 0 {
		return out
	}
	for y := 0; y < g.Height; y++ {
		var sum float64
		for _, v := range g.Pix[y*g.Width : (y+1)*g.Width] {
			sum += float64(v)
		}
		out[y] = sum / float64(g.Width)
	}
	return out
}

// ColMeans returns the mean intensity of every column.
func (g *Gray) ColMeans() []float64 {
	out := make([]float64, g.Width)
	if g.Height == 0 {
		return out
	}
	for y := 0; y < g.Height; y++ {
		row := g.Pix[y*g.Width : (y+1)*g.Width]
		for x, v := range row {
			out[x] += float64(v)
		}
	}
	for x := range out {
		out[x] /= float64(g.Height)
	}
	return out
}

// FromImage converts any image to luminance in [0,1] (parallelized by stripes).
func FromImage(img image.Image) *Gray {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	g := New(width, height)

	numWorkers := runtime.NumCPU()
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := startY + rowsPerWorker
		if endY > height {
			endY = height
		}
		if startY >= height {
			break
		}

		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			for y := yStart; y < yEnd; y++ {
				for x := 0; x < width; x++ {
					c := color.Gray16Model.Convert(img.At(x+bounds.Min.X, y+bounds.Min.Y)).(color.Gray16)
					g.Pix[y*width+x] = float32(c.Y) / 65535
				}
			}
		}(startY, endY)
	}
	wg.Wait()

	return g
}

// ToImage renders the image as 8-bit grayscale.
func (g *Gray) ToImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			img.Pix[y*img.Stride+x] = to8(g.Pix[y*g.Width+x])
		}
	}
	return img
}

func to8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
