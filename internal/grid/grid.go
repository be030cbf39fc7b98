package grid

import (
	"fmt"

	"plate-calibrator/internal/config"
	"plate-calibrator/internal/segment"
)

// Inference carries the intermediate results of Infer for diagnostics.
type Inference struct {
	RowClusters Clusters
	ColClusters Clusters
	Result
}

// Infer clusters object centroids into p.GridRows x p.GridCols, repairs both
// axes and resolves the cells. width and height are the plate image size.
// Clustering output is returned even when a later step fails.
func Infer(objects []segment.Object, width, height int, p config.Params) (Inference, error) {
	var inf Inference

	if len(objects) < p.GridRows || len(objects) < p.GridCols {
		return inf, fmt.Errorf("%w: %d objects for a %dx%d grid",
			ErrInsufficientObjects, len(objects), p.GridRows, p.GridCols)
	}

	var err error
	inf.ColClusters, err = ClusterAxis(segment.Xs(objects), p.GridCols)
	if err != nil {
		return inf, fmt.Errorf("cluster columns: %w", err)
	}
	inf.RowClusters, err = ClusterAxis(segment.Ys(objects), p.GridRows)
	if err != nil {
		return inf, fmt.Errorf("cluster rows: %w", err)
	}

	cols, err := RepairAxis(inf.ColClusters.Centers, p.GridCols, float64(width))
	if err != nil {
		return inf, fmt.Errorf("repair columns: %w", err)
	}
	rows, err := RepairAxis(inf.RowClusters.Centers, p.GridRows, float64(height))
	if err != nil {
		return inf, fmt.Errorf("repair rows: %w", err)
	}

	inf.Result, err = Resolve(rows, cols, objects, width, height, p)
	if err != nil {
		inf.Rows, inf.Cols = rows, cols
		return inf, err
	}
	return inf, nil
}
