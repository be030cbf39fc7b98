package raster

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

// ToMat converts the image to a single-channel CV_32F matrix.
// The caller owns the returned Mat and must Close it.
func (g *Gray) ToMat() (gocv.Mat, error) {
	m := gocv.NewMatWithSize(g.Height, g.Width, gocv.MatTypeCV32F)
	if g.Width == 0 || g.Height == 0 {
		return m, nil
	}
	data, err := m.DataPtrFloat32()
	if err != nil {
		m.Close()
		return gocv.NewMat(), fmt.Errorf("float mat: %w", err)
	}
	copy(data, g.Pix)
	return m, nil
}

// ToMat8U converts the image to a single-channel CV_8U matrix scaled to [0,255].
func (g *Gray) ToMat8U() (gocv.Mat, error) {
	m := gocv.NewMatWithSize(g.Height, g.Width, gocv.MatTypeCV8U)
	if g.Width == 0 || g.Height == 0 {
		return m, nil
	}
	data, err := m.DataPtrUint8()
	if err != nil {
		m.Close()
		return gocv.NewMat(), fmt.Errorf("byte mat: %w", err)
	}
	for i, v := range g.Pix {
		data[i] = to8(v)
	}
	return m, nil
}

// FromMat converts a single-channel CV_32F or CV_8U matrix back to a Gray.
// 8-bit values are scaled to [0,1]; float values are copied as-is.
func FromMat(m gocv.Mat) (*Gray, error) {
	if m.Channels() != 1 {
		return nil, fmt.Errorf("expected single-channel mat, got %d channels", m.Channels())
	}
	g := New(m.Cols(), m.Rows())
	if g.Empty() {
		return g, nil
	}

	switch m.Type() {
	case gocv.MatTypeCV32F:
		if m.IsContinuous() {
			data, err := m.DataPtrFloat32()
			if err == nil {
				copy(g.Pix, data)
				return g, nil
			}
		}
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				g.Pix[y*g.Width+x] = m.GetFloatAt(y, x)
			}
		}
	case gocv.MatTypeCV8U:
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				g.Pix[y*g.Width+x] = float32(m.GetUCharAt(y, x)) / 255
			}
		}
	default:
		return nil, fmt.Errorf("unsupported mat type %v", m.Type())
	}
	return g, nil
}

// Rotate rotates the image counter-clockwise by angleDegrees about its center.
// The canvas is expanded so that nothing is clipped and uncovered pixels
// replicate the nearest border.
func Rotate(g *Gray, angleDegrees float64) (*Gray, error) {
	if angleDegrees == 0 || g.Empty() {
		return g.Clone(), nil
	}

	src, err := g.ToMat()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	rotated := rotateMat(src, angleDegrees)
	defer rotated.Close()

	return FromMat(rotated)
}

// rotateMat rotates a Mat by an arbitrary angle onto an expanded canvas.
func rotateMat(img gocv.Mat, angleDegrees float64) gocv.Mat {
	h := img.Rows()
	w := img.Cols()

	center := image.Point{X: w / 2, Y: h / 2}
	rotMat := gocv.GetRotationMatrix2D(center, angleDegrees, 1.0)
	defer rotMat.Close()

	newW, newH := RotatedSize(w, h, angleDegrees)

	// Shift so the original center lands on the new canvas center
	rotMat.SetDoubleAt(0, 2, rotMat.GetDoubleAt(0, 2)+float64(newW-w)/2)
	rotMat.SetDoubleAt(1, 2, rotMat.GetDoubleAt(1, 2)+float64(newH-h)/2)

	rotated := gocv.NewMat()
	gocv.WarpAffineWithParams(img, &rotated, rotMat, image.Point{X: newW, Y: newH},
		gocv.InterpolationLinear, gocv.BorderReplicate, color.RGBA{})
	return rotated
}

// RotatedSize returns the canvas size needed to hold a w x h image rotated by angleDegrees.
func RotatedSize(w, h int, angleDegrees float64) (int, int) {
	angleRad := angleDegrees * math.Pi / 180
	cos := math.Abs(math.Cos(angleRad))
	sin := math.Abs(math.Sin(angleRad))
	newW := int(math.Ceil(float64(h)*sin + float64(w)*cos - 1e-9))
	newH := int(math.Ceil(float64(h)*cos + float64(w)*sin - 1e-9))
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	return newW, newH
}

// Otsu binarizes the image with an automatic threshold. The result holds
// 1 for pixels above the threshold and 0 elsewhere. The threshold is
// returned on the [0,1] scale.
func Otsu(g *Gray) (*Gray, float64, error) {
	if g.Empty() {
		return New(g.Width, g.Height), 0, nil
	}
	src, err := g.ToMat8U()
	if err != nil {
		return nil, 0, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	t := gocv.Threshold(src, &dst, 0, 1, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	bin := New(g.Width, g.Height)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			bin.Pix[y*g.Width+x] = float32(dst.GetUCharAt(y, x))
		}
	}
	return bin, float64(t) / 255, nil
}

// GaussianBlur smooths the image with an isotropic Gaussian of the given sigma.
func GaussianBlur(g *Gray, sigma float64) (*Gray, error) {
	if sigma <= 0 || g.Empty() {
		return g.Clone(), nil
	}
	src, err := g.ToMat()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.GaussianBlur(src, &dst, image.Point{}, sigma, sigma, gocv.BorderReplicate)

	return FromMat(dst)
}
