// Package config holds the explicit calibration parameters threaded through
// every stage of the pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"plate-calibrator/pkg/geometry"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
)

// ErrInvalidParams is returned when a parameter set fails validation.
var ErrInvalidParams = errors.New("invalid calibration parameters")

// Padding sides, in the order used by RoughPad and FinePad.
const (
	PadLeft = iota
	PadRight
	PadTop
	PadBottom
)

// Position is an annotated plate slot within a template.
type Position struct {
	ID  int `json:"id" validate:"gt=0"`
	Row int `json:"row" validate:"gt=0"`
	Col int `json:"col" validate:"gt=0"`
}

// Params holds every tunable of the calibration pipeline.
type Params struct {
	// Colony grid on each plate
	GridRows int `json:"grid_rows" validate:"gt=0"`
	GridCols int `json:"grid_cols" validate:"gt=0"`

	// Rotation search, degrees
	Rotate    float64 `json:"rotate" validate:"gte=-45,lte=45"`
	Range     float64 `json:"range" validate:"gte=0,lte=45"`
	AngleStep float64 `json:"angle_step" validate:"gt=0"`

	// Foreground fraction a row/column needs to count as plate or colony
	Thresh float64 `json:"thresh" validate:"gte=0,lte=1"`
	// Invert marks colonies (and plates) as brighter than the background
	Invert bool `json:"invert"`

	RoughPad [4]int `json:"rough_pad" validate:"dive,gte=0"` // left, right, top, bottom
	FinePad  [4]int `json:"fine_pad" validate:"dive,gte=0"`  // left, right, top, bottom

	// <= 1 is a fraction of a quarter of the mean row+column pitch, > 1 is pixels
	ColonyRadius float64 `json:"colony_radius" validate:"gt=0"`
	MaxSmooth    float64 `json:"max_smooth" validate:"gte=0"`

	BlurSigma       float64 `json:"blur_sigma" validate:"gte=0"`
	MarkerFraction  float64 `json:"marker_fraction" validate:"gt=0,lt=1"`
	MinObjectArea   int     `json:"min_object_area" validate:"gte=0"`
	MaxEccentricity float64 `json:"max_eccentricity" validate:"gt=0,lte=1"`

	// Plate layout of a template
	PlateRows int `json:"plate_rows" validate:"gt=0"`
	PlateCols int `json:"plate_cols" validate:"gt=0"`

	// Strain keys per plate; 0 disables the replicate check
	ReferenceKeys int `json:"reference_keys" validate:"gte=0"`

	// Worker count for batch runs; 0 means runtime.NumCPU()
	Workers int `json:"workers" validate:"gte=0"`

	Positions   []Position        `json:"positions,omitempty" validate:"dive"`
	DefaultCrop *geometry.RectInt `json:"default_crop,omitempty"`
}

// DefaultParams returns parameters for a single 96-colony (8x12) plate per template.
func DefaultParams() Params {
	return Params{
		GridRows: 8,
		GridCols: 12,

		Rotate:    0,
		Range:     2,
		AngleStep: 0.1,

		Thresh: 0.2,
		Invert: false,

		RoughPad: [4]int{0, 0, 0, 0},
		FinePad:  [4]int{5, 5, 5, 5},

		ColonyRadius: 1,
		MaxSmooth:    5,

		BlurSigma:       3,
		MarkerFraction:  0.5,
		MinObjectArea:   10,
		MaxEccentricity: 0.8,

		PlateRows: 1,
		PlateCols: 1,
	}
}

// WithGrid returns a copy of params with a different colony grid.
func (p Params) WithGrid(rows, cols int) Params {
	p.GridRows = rows
	p.GridCols = cols
	return p
}

// WithLayout returns a copy of params with a different plate layout.
func (p Params) WithLayout(rows, cols int) Params {
	p.PlateRows = rows
	p.PlateCols = cols
	return p
}

// WithRotation returns a copy of params with a different rotation search window.
func (p Params) WithRotation(rotate, searchRange float64) Params {
	p.Rotate = rotate
	p.Range = searchRange
	return p
}

// WithInvert returns a copy of params with the foreground polarity set.
func (p Params) WithInvert(invert bool) Params {
	p.Invert = invert
	return p
}

// WithPadding returns a copy of params with new rough and fine paddings.
func (p Params) WithPadding(rough, fine [4]int) Params {
	p.RoughPad = rough
	p.FinePad = fine
	return p
}

// WorkerCount resolves Workers, substituting the CPU count for 0.
func (p Params) WorkerCount() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.NumCPU()
}

// PlateCount returns the number of plate slots per template.
func (p Params) PlateCount() int {
	return p.PlateRows * p.PlateCols
}

var validate = validator.New()

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Validate checks the parameters and returns an error wrapping ErrInvalidParams.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s=%s)", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	for _, pos := range p.Positions {
		if pos.Row > p.PlateRows || pos.Col > p.PlateCols {
			return fmt.Errorf("%w: position %d at (%d,%d) outside %dx%d layout",
				ErrInvalidParams, pos.ID, pos.Row, pos.Col, p.PlateRows, p.PlateCols)
		}
	}
	if p.DefaultCrop != nil && p.DefaultCrop.Empty() {
		return fmt.Errorf("%w: default crop is empty", ErrInvalidParams)
	}
	return nil
}

// Load reads parameters from a JSON file. Fields missing from the file keep
// their DefaultParams values.
func Load(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, err
	}
	return Parse(data)
}

// Parse decodes JSON parameters on top of DefaultParams and validates them.
func Parse(data []byte) (Params, error) {
	p := DefaultParams()
	if err := json.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Save writes the parameters as indented JSON.
func (p Params) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
