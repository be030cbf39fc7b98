package segment

import (
	"fmt"
	"math"
	"sort"

	"plate-calibrator/internal/config"
	"plate-calibrator/internal/raster"
	"plate-calibrator/pkg/geometry"

	"gocv.io/x/gocv"
)

// Input intensities outside this range are clipped before segmentation.
const (
	normalizeLow  = 0.1
	normalizeHigh = 0.8

	// Minimum intensity spread for a plate to be worth segmenting
	minContrast = 0.05
)

// Result is the output of Segment.
type Result struct {
	Objects    []Object
	Threshold  float64 // Otsu threshold on the oriented, blurred image, in [0,1]
	Components int     // connected foreground components before splitting
	Markers    int     // watershed seeds
}

// Segment finds colony objects on a fine-cropped, rotation-corrected plate.
//
// The image is contrast-normalized, oriented so colonies are bright, blurred
// and binarized with Otsu. Touching blobs are split by a marker-controlled
// watershed on the distance transform of the mask, with one seed per region
// where the distance reaches MarkerFraction of its component's peak.
// Objects found are returned even when there are too few for the grid.
func Segment(img *raster.Gray, p config.Params) (Result, error) {
	var res Result
	if img.Empty() {
		return res, fmt.Errorf("%w: empty image", ErrInsufficientObjects)
	}

	norm := img.Rescale(normalizeLow, normalizeHigh)
	if !p.Invert {
		norm = norm.Invert()
	}

	blurred, err := raster.GaussianBlur(norm, p.BlurSigma)
	if err != nil {
		return res, fmt.Errorf("blur: %w", err)
	}

	if spread(blurred) < minContrast {
		return res, fmt.Errorf("%w: no contrast on %dx%d plate", ErrInsufficientObjects, img.Width, img.Height)
	}

	src, err := blurred.ToMat8U()
	if err != nil {
		return res, err
	}
	defer src.Close()

	// Otsu binarization
	mask := gocv.NewMat()
	defer mask.Close()
	t := gocv.Threshold(src, &mask, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	res.Threshold = float64(t) / 255

	dist := gocv.NewMat()
	defer dist.Close()
	distLabels := gocv.NewMat()
	defer distLabels.Close()
	gocv.DistanceTransform(mask, &dist, &distLabels, gocv.DistL2, gocv.DistanceMask5, gocv.DistanceLabelCComp)

	markers, nComponents, nMarkers, err := watershedMarkers(mask, dist, p.MarkerFraction)
	if err != nil {
		return res, err
	}
	defer markers.Close()
	res.Components = nComponents
	res.Markers = nMarkers

	if err := watershed(dist, &markers); err != nil {
		return res, err
	}

	res.Objects = collectObjects(markers, p.MinObjectArea)

	if len(res.Objects) < p.GridRows || len(res.Objects) < p.GridCols {
		return res, fmt.Errorf("%w: found %d objects for a %dx%d grid",
			ErrInsufficientObjects, len(res.Objects), p.GridRows, p.GridCols)
	}
	return res, nil
}

// spread returns max - min of the image.
func spread(g *raster.Gray) float64 {
	lo, hi := float32(math.Inf(1)), float32(math.Inf(-1))
	for _, v := range g.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return float64(hi - lo)
}

// watershedMarkers builds the CV_32S marker image for the watershed:
// 1 for background, 2.. for seeds, 0 for foreground still to be assigned.
func watershedMarkers(mask, dist gocv.Mat, fraction float64) (gocv.Mat, int, int, error) {
	h, w := mask.Rows(), mask.Cols()

	distances, err := raster.FromMat(dist)
	if err != nil {
		return gocv.NewMat(), 0, 0, fmt.Errorf("distance map: %w", err)
	}

	components := gocv.NewMat()
	defer components.Close()
	nComponents := gocv.ConnectedComponents(mask, &components)

	// Peak distance per component
	peak := make([]float32, nComponents)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			label := components.GetIntAt(y, x)
			if label > 0 && distances.Pix[y*w+x] > peak[label] {
				peak[label] = distances.Pix[y*w+x]
			}
		}
	}

	// Seed pixels: distance above a fraction of the component peak
	seeds := gocv.Zeros(h, w, gocv.MatTypeCV8U)
	defer seeds.Close()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			label := components.GetIntAt(y, x)
			if label > 0 && distances.Pix[y*w+x] >= float32(fraction)*peak[label] {
				seeds.SetUCharAt(y, x, 255)
			}
		}
	}

	seedLabels := gocv.NewMat()
	defer seedLabels.Close()
	nSeeds := gocv.ConnectedComponents(seeds, &seedLabels)

	markers := gocv.NewMatWithSize(h, w, gocv.MatTypeCV32S)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			switch {
			case mask.GetUCharAt(y, x) == 0:
				markers.SetIntAt(y, x, 1)
			case seedLabels.GetIntAt(y, x) > 0:
				markers.SetIntAt(y, x, seedLabels.GetIntAt(y, x)+1)
			default:
				markers.SetIntAt(y, x, 0)
			}
		}
	}

	return markers, nComponents - 1, nSeeds - 1, nil
}

// watershed floods the inverted distance map from the markers.
func watershed(dist gocv.Mat, markers *gocv.Mat) error {
	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Normalize(dist, &scaled, 0, 255, gocv.NormMinMax)

	dist8 := gocv.NewMat()
	defer dist8.Close()
	scaled.ConvertTo(&dist8, gocv.MatTypeCV8U)

	// Basins at the blob centers
	inverted := gocv.NewMat()
	defer inverted.Close()
	gocv.BitwiseNot(dist8, &inverted)

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(inverted, &bgr, gocv.ColorGrayToBGR)

	if bgr.Empty() || markers.Empty() {
		return fmt.Errorf("watershed: empty input")
	}
	gocv.Watershed(bgr, markers)
	return nil
}

// moments accumulates the raw moments of one region.
type moments struct {
	n             int
	sx, sy        float64
	sxx, syy, sxy float64
	minX, minY    int
	maxX, maxY    int
}

func (m *moments) add(x, y int) {
	if m.n == 0 {
		m.minX, m.maxX, m.minY, m.maxY = x, x, y, y
	}
	m.n++
	fx, fy := float64(x), float64(y)
	m.sx += fx
	m.sy += fy
	m.sxx += fx * fx
	m.syy += fy * fy
	m.sxy += fx * fy
	if x < m.minX {
		m.minX = x
	}
	if x > m.maxX {
		m.maxX = x
	}
	if y < m.minY {
		m.minY = y
	}
	if y > m.maxY {
		m.maxY = y
	}
}

// eccentricity returns sqrt(1 - l2/l1) from the second central moments.
func (m *moments) eccentricity() float64 {
	n := float64(m.n)
	mx, my := m.sx/n, m.sy/n
	mu20 := m.sxx/n - mx*mx
	mu02 := m.syy/n - my*my
	mu11 := m.sxy/n - mx*my
	return Eccentricity(mu20, mu02, mu11)
}

// Eccentricity converts second central moments into the eccentricity of the
// equivalent ellipse: 0 for a disc, approaching 1 for a line.
func Eccentricity(mu20, mu02, mu11 float64) float64 {
	common := (mu20 + mu02) / 2
	diff := math.Sqrt(((mu20-mu02)/2)*((mu20-mu02)/2) + mu11*mu11)
	l1, l2 := common+diff, common-diff
	if l1 <= 0 {
		return 0
	}
	if l2 < 0 {
		l2 = 0
	}
	return math.Sqrt(1 - l2/l1)
}

// collectObjects turns watershed regions (labels >= 2) into objects.
func collectObjects(markers gocv.Mat, minArea int) []Object {
	h, w := markers.Rows(), markers.Cols()
	regions := make(map[int32]*moments)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			label := markers.GetIntAt(y, x)
			if label < 2 {
				continue
			}
			m, ok := regions[label]
			if !ok {
				m = &moments{}
				regions[label] = m
			}
			m.add(x, y)
		}
	}

	labels := make([]int, 0, len(regions))
	for label := range regions {
		labels = append(labels, int(label))
	}
	sort.Ints(labels)

	objs := make([]Object, 0, len(labels))
	for _, label := range labels {
		m := regions[int32(label)]
		if m.n < minArea {
			continue
		}
		n := float64(m.n)
		objs = append(objs, Object{
			Label:        len(objs) + 1,
			X:            m.sx/n + 1,
			Y:            m.sy/n + 1,
			Area:         m.n,
			Eccentricity: m.eccentricity(),
			Bounds:       geometry.RectFromEdges(m.minX, m.maxX+1, m.minY, m.maxY+1),
		})
	}
	return objs
}
