// Package project records a batch calibration run as a JSON manifest next to
// its output tables.
package project

import (
	"os"
	"path/filepath"
	"time"

	"plate-calibrator/internal/config"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ManifestName is the file name of the manifest in an output directory.
const ManifestName = "manifest.json"

// Manifest describes one batch run (manifest.json).
type Manifest struct {
	Version  int           `json:"version"`
	RunID    string        `json:"run_id"`
	Created  time.Time     `json:"created"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Software string        `json:"software"`

	// Paths relative to the manifest
	ConfigPath string `json:"config,omitempty"`
	CropTable  string `json:"crop_table"`
	GridTable  string `json:"grid_table"`

	Params    config.Params   `json:"params"`
	Templates []TemplateEntry `json:"templates"`

	Plates   int      `json:"plates"`
	Gridded  int      `json:"gridded"`
	Warnings []string `json:"warnings,omitempty"`
}

// TemplateEntry is one input photograph.
type TemplateEntry struct {
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	DPI    float64 `json:"dpi,omitempty"`
}

// New creates a manifest for a run.
func New(runID, software string, params config.Params) *Manifest {
	return &Manifest{
		Version:   1,
		RunID:     runID,
		Created:   time.Now(),
		Software:  software,
		CropTable: "crop.csv",
		GridTable: "grid.csv",
		Params:    params,
	}
}

// AddTemplate records an input photograph. Paths are stored relative to dir
// when possible.
func (m *Manifest) AddTemplate(dir string, entry TemplateEntry) {
	entry.Path = relativeTo(dir, entry.Path)
	m.Templates = append(m.Templates, entry)
}

// SetConfig records the config file path relative to dir.
func (m *Manifest) SetConfig(dir, path string) {
	if path == "" {
		return
	}
	m.ConfigPath = relativeTo(dir, path)
}

// Resolve returns the absolute form of a path stored in the manifest.
func Resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func relativeTo(dir, path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(absDir, abs)
	if err != nil {
		return path
	}
	return rel
}

// Load reads a manifest from path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes the manifest as indented JSON.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
