package grid

import (
	"fmt"
	"math"
	"sort"

	"plate-calibrator/pkg/mathutil"
)

const (
	// Allowed deviation of a spacing from a whole multiple of the pitch,
	// as a fraction of the pitch.
	stepTolerance = 0.2

	// Gaps wider than this many pitches are split by AddMissingSteps.
	missingStepRatio = 1.25
)

// RemoveOutOfStep drops points whose spacing to a neighbour is not close to a
// whole multiple of the pitch (the median spacing).
//
// Each round removes one point: for the worst out-of-step spacing, the
// endpoint that lines up with fewer of the remaining points is dropped. The
// loop ends when every spacing is in step or fewer than three points remain,
// so applying it twice gives the same result as applying it once.
func RemoveOutOfStep(x []float64) []float64 {
	out := sortedCopy(x)

	for round := 0; round < len(x) && len(out) >= 3; round++ {
		pitch := mathutil.MedianSpacing(out)
		if pitch <= 0 {
			out = dropDuplicates(out)
			continue
		}

		// Find the worst offender
		worst := -1
		worstDev := stepTolerance
		for i := 0; i+1 < len(out); i++ {
			dev := stepDeviation(out[i+1]-out[i], pitch)
			if dev > worstDev {
				worst, worstDev = i, dev
			}
		}
		if worst < 0 {
			break
		}

		drop := chooseDrop(out, worst, pitch)
		out = append(out[:drop], out[drop+1:]...)
	}

	return out
}

// stepDeviation returns how far spacing d is from the nearest whole multiple
// (at least one) of pitch, as a fraction of pitch.
func stepDeviation(d, pitch float64) float64 {
	k := math.Round(d / pitch)
	if k < 1 {
		k = 1
	}
	return math.Abs(d-k*pitch) / pitch
}

// chooseDrop picks which endpoint of spacing (i, i+1) to remove.
func chooseDrop(x []float64, i int, pitch float64) int {
	left, right := latticeSupport(x, i, pitch), latticeSupport(x, i+1, pitch)
	if left != right {
		if left < right {
			return i
		}
		return i + 1
	}

	// Tie: drop the one whose other spacing is worse
	leftDev, rightDev := 0.0, 0.0
	if i > 0 {
		leftDev = stepDeviation(x[i]-x[i-1], pitch)
	}
	if i+2 < len(x) {
		rightDev = stepDeviation(x[i+2]-x[i+1], pitch)
	}
	if leftDev > rightDev {
		return i
	}
	return i + 1
}

// latticeSupport counts the other points lying on the pitch lattice through x[i].
func latticeSupport(x []float64, i int, pitch float64) int {
	n := 0
	for j, v := range x {
		if j == i {
			continue
		}
		steps := math.Abs(v-x[i]) / pitch
		if steps >= 0.5 && math.Abs(steps-math.Round(steps)) <= stepTolerance {
			n++
		}
	}
	return n
}

// AddMissingSteps splits every gap wider than 1.25 pitches into
// max(2, round(gap/pitch)) equal steps.
func AddMissingSteps(x []float64) []float64 {
	out := sortedCopy(x)
	if len(out) < 2 {
		return out
	}

	pitch := mathutil.MedianSpacing(out)
	if pitch <= 0 {
		return out
	}

	filled := make([]float64, 0, len(out))
	filled = append(filled, out[0])
	for i := 1; i < len(out); i++ {
		gap := out[i] - out[i-1]
		if gap > missingStepRatio*pitch {
			m := int(math.Round(gap / pitch))
			if m < 2 {
				m = 2
			}
			step := gap / float64(m)
			for k := 1; k < m; k++ {
				filled = append(filled, out[i-1]+float64(k)*step)
			}
		}
		filled = append(filled, out[i])
	}
	return filled
}

// DealWithEdges trims or extends x at its ends by |n| points.
//
// n > 0 removes n points, each time the end whose outer spacing deviates more
// from the mean spacing. n < 0 adds -n points one pitch beyond the end with
// more room inside [0, dim], clamped to that range. dim <= 0 leaves the upper
// side unbounded. The loop stops early when no progress is possible.
func DealWithEdges(x []float64, n int, dim float64) []float64 {
	out := sortedCopy(x)

	for ; n > 0 && len(out) > 1; n-- {
		mean := mathutil.MeanSpacing(out)
		last := len(out) - 1
		leftDev := math.Abs(out[1] - out[0] - mean)
		rightDev := math.Abs(out[last] - out[last-1] - mean)
		if leftDev > rightDev {
			out = out[1:]
		} else {
			out = out[:last]
		}
	}

	for ; n < 0 && len(out) >= 2; n++ {
		pitch := mathutil.MedianSpacing(out)
		if pitch <= 0 {
			break
		}
		last := len(out) - 1
		roomLeft := out[0]
		roomRight := math.Inf(1)
		if dim > 0 {
			roomRight = dim - out[last]
		}

		if roomLeft > roomRight {
			next := math.Max(0, out[0]-pitch)
			if next >= out[0] {
				break
			}
			out = append([]float64{next}, out...)
		} else {
			next := out[last] + pitch
			if dim > 0 {
				next = math.Min(dim, next)
			}
			if next <= out[last] {
				break
			}
			out = append(out, next)
		}
	}

	return out
}

// RepairAxis rebuilds a full axis of gridDim cells from cluster centers.
//
// The centers are cleaned with RemoveOutOfStep, gaps are filled with
// AddMissingSteps, and the count is brought to gridDim with DealWithEdges.
// Breaks are then placed midway between centers, with the outer boundaries
// half a pitch beyond the first and last center, clamped to [0, dim].
func RepairAxis(centers []float64, gridDim int, dim float64) (Axis, error) {
	if gridDim <= 0 {
		return nil, fmt.Errorf("%w: grid dimension %d", ErrGridRepairDivergence, gridDim)
	}
	if len(centers) == 0 {
		return nil, fmt.Errorf("%w: no cluster centers", ErrGridRepairDivergence)
	}

	c := RemoveOutOfStep(centers)
	c = AddMissingSteps(c)
	c = DealWithEdges(c, len(c)-gridDim, dim)

	if len(c) != gridDim {
		return nil, fmt.Errorf("%w: %d centers after repair, expected %d",
			ErrGridRepairDivergence, len(c), gridDim)
	}

	axis := boundaries(c, dim)
	if !axis.Valid(gridDim) {
		return nil, fmt.Errorf("%w: break points not strictly increasing: %v",
			ErrGridRepairDivergence, []float64(axis))
	}
	return axis, nil
}

// boundaries converts centers into break points.
func boundaries(centers []float64, dim float64) Axis {
	n := len(centers)
	axis := make(Axis, 0, n+1)

	if n == 1 {
		// A single cell spans the whole extent
		upper := dim
		if upper <= centers[0] {
			upper = 2 * centers[0]
		}
		return append(axis, 0, upper)
	}

	inner := midpoints(centers)
	first := centers[0] - (inner[0] - centers[0])
	last := centers[n-1] + (centers[n-1] - inner[n-2])

	first = math.Max(0, first)
	if dim > 0 {
		last = math.Min(dim, last)
	}

	axis = append(axis, first)
	axis = append(axis, inner...)
	axis = append(axis, last)
	return axis
}

func sortedCopy(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	sort.Float64s(out)
	return out
}

// dropDuplicates removes repeated values from a sorted slice.
func dropDuplicates(x []float64) []float64 {
	if len(x) == 0 {
		return x
	}
	out := x[:1]
	for _, v := range x[1:] {
		if v > out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
