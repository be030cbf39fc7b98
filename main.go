// Command gridcal calibrates plate crops and colony grids for a batch of
// template photographs and writes the crop and grid tables as CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"plate-calibrator/internal/calibrate"
	"plate-calibrator/internal/config"
	imgload "plate-calibrator/internal/image"
	"plate-calibrator/internal/logger"
	"plate-calibrator/internal/project"
	"plate-calibrator/internal/version"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const appName = "gridcal"

func main() {
	// Optional .env with GRIDCAL_* defaults
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("GRIDCAL_CONFIG"), "Calibration config (JSON)")
	outDir := flag.String("out", "out", "Output directory for crop.csv, grid.csv and manifest.json")
	logFile := flag.String("log-file", os.Getenv("GRIDCAL_LOG_FILE"), "Rotated log file")
	logLevel := flag.String("log-level", os.Getenv("GRIDCAL_LOG_LEVEL"), "Log level (debug, info, warn, error)")
	workers := flag.Int("workers", 0, "Worker count (overrides config; 0 keeps it)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String(appName))
		return
	}
	if flag.NArg() == 0 {
		fmt.Println("Usage: gridcal [-config cal.json] [-out dir] <image|dir>...")
		os.Exit(1)
	}

	log := logger.New(logger.Options{Level: *logLevel, File: *logFile})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, *configPath, *outDir, *workers, flag.Args()); err != nil {
		log.Error().Err(err).Msg("calibration failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, log zerolog.Logger, configPath, outDir string, workers int, inputs []string) error {
	params := config.DefaultParams()
	if configPath != "" {
		var err error
		params, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", configPath, err)
		}
	}
	if workers > 0 {
		params.Workers = workers
	}

	paths, err := expandInputs(inputs)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no supported images found")
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	var templates []calibrate.Template
	var entries []project.TemplateEntry
	for _, path := range paths {
		t, err := imgload.Load(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping template")
			continue
		}
		log.Debug().Str("template", t.Name).Int("width", t.Width()).Int("height", t.Height()).Msg("loaded")
		templates = append(templates, calibrate.Template{Name: t.Name, Image: t.Gray})
		entries = append(entries, project.TemplateEntry{Name: t.Name, Path: path, Width: t.Width(), Height: t.Height(), DPI: t.DPI})
	}

	rep, batchErr := calibrate.Batch(ctx, templates, params, log)
	if errors.Is(batchErr, calibrate.ErrInvalidParams) {
		return batchErr
	}

	manifest := project.New(rep.RunID, version.String(appName), params)
	manifest.SetConfig(outDir, configPath)
	for _, e := range entries {
		manifest.AddTemplate(outDir, e)
	}
	manifest.Elapsed = rep.Elapsed
	manifest.Plates = len(rep.Records)
	manifest.Gridded = rep.Gridded()
	for _, w := range rep.Warnings {
		manifest.Warnings = append(manifest.Warnings, w.Error())
	}

	if err := writeTable(filepath.Join(outDir, manifest.CropTable), func(f *os.File) error {
		return calibrate.WriteCropCSV(f, calibrate.CropTable(rep.Records))
	}); err != nil {
		return err
	}
	if err := writeTable(filepath.Join(outDir, manifest.GridTable), func(f *os.File) error {
		return calibrate.WriteGridCSV(f, calibrate.GridTable(rep.Records))
	}); err != nil {
		return err
	}
	if err := manifest.Save(filepath.Join(outDir, project.ManifestName)); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}

	log.Info().
		Str("out", outDir).
		Int("plates", manifest.Plates).
		Int("gridded", manifest.Gridded).
		Msg("tables written")
	return batchErr
}

// expandInputs replaces directories by the supported images they contain.
func expandInputs(inputs []string) ([]string, error) {
	var paths []string
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, in)
			continue
		}
		found, err := imgload.Discover(in)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}

func writeTable(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
