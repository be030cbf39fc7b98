package grid

import (
	"fmt"
	"sort"

	"plate-calibrator/pkg/mathutil"
)

// Clusters is the grouping of centroid coordinates along one axis.
type Clusters struct {
	Centers []float64 // median of each cluster, ascending
	Breaks  []float64 // midpoints between consecutive centers (len(Centers)-1)
	Sizes   []int     // members per cluster
}

// interval is a contiguous run of sorted values [lo, hi).
type interval struct {
	lo, hi int
}

// ClusterAxis groups values into k clusters by complete-linkage agglomeration.
//
// In one dimension the complete-linkage distance between two clusters is the
// span of their union, so the closest pair is always a pair of neighbours and
// the clusters stay contiguous runs of the sorted values. Each step merges the
// neighbouring pair with the smallest joint span (leftmost on ties).
func ClusterAxis(values []float64, k int) (Clusters, error) {
	if k <= 0 {
		return Clusters{}, fmt.Errorf("cluster count must be positive, got %d", k)
	}
	if len(values) < k {
		return Clusters{}, fmt.Errorf("%w: %d values for %d clusters", ErrInsufficientObjects, len(values), k)
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	// Start with singletons
	runs := make([]interval, len(sorted))
	for i := range sorted {
		runs[i] = interval{lo: i, hi: i + 1}
	}

	for len(runs) > k {
		best := 0
		bestSpan := sorted[runs[1].hi-1] - sorted[runs[0].lo]
		for i := 1; i+1 < len(runs); i++ {
			span := sorted[runs[i+1].hi-1] - sorted[runs[i].lo]
			if span < bestSpan {
				best, bestSpan = i, span
			}
		}
		runs[best].hi = runs[best+1].hi
		runs = append(runs[:best+1], runs[best+2:]...)
	}

	c := Clusters{
		Centers: make([]float64, k),
		Sizes:   make([]int, k),
	}
	for i, r := range runs {
		c.Centers[i] = mathutil.Median(sorted[r.lo:r.hi])
		c.Sizes[i] = r.hi - r.lo
	}
	c.Breaks = midpoints(c.Centers)

	return c, nil
}

// midpoints returns the points halfway between consecutive values.
func midpoints(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := range out {
		out[i] = (x[i] + x[i+1]) / 2
	}
	return out
}
