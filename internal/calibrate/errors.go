package calibrate

import (
	"errors"
	"fmt"

	"plate-calibrator/internal/config"
	"plate-calibrator/internal/grid"
	"plate-calibrator/internal/plate"
	"plate-calibrator/internal/segment"
)

// Errors raised by the pipeline stages, gathered for callers of this package.
var (
	ErrInsufficientContrast = plate.ErrInsufficientContrast
	ErrInsufficientObjects  = segment.ErrInsufficientObjects
	ErrGridRepairDivergence = grid.ErrGridRepairDivergence
	ErrInvalidParams        = config.ErrInvalidParams

	// ErrSizeMismatch is returned when the number of grid cells is not a
	// square multiple of the number of reference keys.
	ErrSizeMismatch = errors.New("grid size does not match reference keys")
)

// Warning records a plate that was skipped or degraded. Sibling plates are
// unaffected.
type Warning struct {
	Template   string
	PositionID int
	Err        error
}

func (w Warning) Error() string {
	if w.PositionID > 0 {
		return fmt.Sprintf("%s position %d: %v", w.Template, w.PositionID, w.Err)
	}
	return fmt.Sprintf("%s: %v", w.Template, w.Err)
}

func (w Warning) Unwrap() error { return w.Err }
