// Package image loads template photographs from disk.
package image

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"plate-calibrator/internal/raster"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/tiff"
)

// Template is a loaded photograph.
type Template struct {
	Path  string
	Name  string      // file name without extension
	Image image.Image // decoded, orientation applied
	Gray  *raster.Gray
	DPI   float64 // from TIFF resolution tags, 0 when unknown
}

// Width returns the image width in pixels.
func (t *Template) Width() int { return t.Gray.Width }

// Height returns the image height in pixels.
func (t *Template) Height() int { return t.Gray.Height }

// Load decodes the image at path, applies its EXIF orientation and converts
// it to grayscale intensities in [0,1].
func Load(path string) (*Template, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}

	t := &Template{
		Path:  path,
		Name:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Image: img,
		Gray:  raster.FromImage(img),
	}
	if isTIFF(path) {
		if dpi, err := tiffDPI(path); err == nil {
			t.DPI = dpi
		}
	}
	return t, nil
}

// Discover returns the supported image files in dir, sorted by name.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsSupportedFormat(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// SupportedFormats returns the list of supported image extensions.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image extension.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

func isTIFF(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".tif" || ext == ".tiff"
}

// TIFF tags and field types used by tiffDPI
const (
	tagXResolution    = 282
	tagYResolution    = 283
	tagResolutionUnit = 296

	typeShort    = 3
	typeRational = 5

	unitCentimeter = 3
)

var errNoResolution = errors.New("no resolution tags")

// tiffDPI reads the resolution tags of the first IFD.
func tiffDPI(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return readDPI(f)
}

func readDPI(r io.ReaderAt) (float64, error) {
	header := make([]byte, 8)
	if _, err := r.ReadAt(header, 0); err != nil {
		return 0, err
	}

	var order binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0, fmt.Errorf("not a TIFF file")
	}

	ifd := int64(order.Uint32(header[4:8]))
	count := make([]byte, 2)
	if _, err := r.ReadAt(count, ifd); err != nil {
		return 0, err
	}

	var xRes, yRes float64
	unit := uint16(2) // inches
	entry := make([]byte, 12)
	for i := 0; i < int(order.Uint16(count)); i++ {
		if _, err := r.ReadAt(entry, ifd+2+int64(i)*12); err != nil {
			return 0, err
		}
		tag := order.Uint16(entry[0:2])
		kind := order.Uint16(entry[2:4])

		switch {
		case tag == tagXResolution && kind == typeRational:
			xRes = readRational(r, int64(order.Uint32(entry[8:12])), order)
		case tag == tagYResolution && kind == typeRational:
			yRes = readRational(r, int64(order.Uint32(entry[8:12])), order)
		case tag == tagResolutionUnit && kind == typeShort:
			unit = order.Uint16(entry[8:10])
		}
	}

	dpi := xRes
	if dpi == 0 {
		dpi = yRes
	}
	if dpi == 0 {
		return 0, errNoResolution
	}
	if unit == unitCentimeter {
		dpi *= 2.54
	}
	return dpi, nil
}

func readRational(r io.ReaderAt, offset int64, order binary.ByteOrder) float64 {
	buf := make([]byte, 8)
	if _, err := r.ReadAt(buf, offset); err != nil {
		return 0
	}
	num, denom := order.Uint32(buf[0:4]), order.Uint32(buf[4:8])
	if denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}
