package calibrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"plate-calibrator/internal/config"
	"plate-calibrator/internal/logger"
	"plate-calibrator/internal/plate"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Report is the outcome of a batch run.
type Report struct {
	RunID    string
	Started  time.Time
	Elapsed  time.Duration
	Records  []Record
	Warnings []Warning
}

// Gridded returns the number of records carrying a grid.
func (r Report) Gridded() int {
	n := 0
	for _, rec := range r.Records {
		if rec.HasGrid() {
			n++
		}
	}
	return n
}

// task is one plate position of one template.
type task struct {
	tmpl int
	pos  plate.Position
}

// slot holds the result of one task. Each task writes only its own slot.
type slot struct {
	done bool
	rec  Record
	warn *Warning
}

// Batch calibrates every plate position of every template.
//
// Templates are located first, then plate positions run as independent tasks
// on a pool of p.WorkerCount() workers. Plate failures become warnings and
// never stop sibling plates; only invalid parameters abort the run. When ctx
// is cancelled, remaining plates are skipped and the records completed so far
// are returned with ctx.Err().
func Batch(ctx context.Context, templates []Template, p config.Params, log zerolog.Logger) (Report, error) {
	rep := Report{
		RunID:   uuid.New().String(),
		Started: time.Now(),
	}
	if err := p.Validate(); err != nil {
		return rep, err
	}

	log = logger.Component(log, "calibrate").With().Str("run_id", rep.RunID).Logger()
	log.Info().Int("templates", len(templates)).Int("workers", p.WorkerCount()).Msg("batch started")

	tasks, warnings := locate(ctx, templates, p, log)
	rep.Warnings = append(rep.Warnings, warnings...)

	slots := make([]slot, len(tasks))
	g := new(errgroup.Group)
	g.SetLimit(p.WorkerCount())

	for i, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			tmpl := templates[t.tmpl]
			rec, err := Plate(ctx, tmpl, t.pos, p)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}

			s := &slots[i]
			s.done = true
			s.rec = rec
			if err != nil {
				s.warn = &Warning{Template: tmpl.Name, PositionID: t.pos.ID, Err: err}
			}
			log.Debug().
				Str("template", tmpl.Name).
				Int("position", t.pos.ID).
				Float64("angle", rec.Rotation.Angle).
				Int("objects", rec.Objects).
				Int("cells", len(rec.Grid.Cells)).
				Msg("plate calibrated")
			return nil
		})
	}
	_ = g.Wait()

	for _, s := range slots {
		if !s.done {
			continue
		}
		// A plate with no fine crop failed before any geometry was known
		if s.rec.Crop.ID != 0 {
			rep.Records = append(rep.Records, s.rec)
		}
		if s.warn != nil {
			rep.Warnings = append(rep.Warnings, *s.warn)
		}
	}

	for _, w := range rep.Warnings {
		log.Warn().Err(w.Err).Str("template", w.Template).Int("position", w.PositionID).Msg("plate skipped")
	}

	rep.Elapsed = time.Since(rep.Started)
	log.Info().
		Int("records", len(rep.Records)).
		Int("gridded", rep.Gridded()).
		Int("warnings", len(rep.Warnings)).
		Dur("elapsed", rep.Elapsed).
		Msg("batch finished")

	return rep, ctx.Err()
}

// locate finds and matches the plate positions of every template, one worker
// per template.
func locate(ctx context.Context, templates []Template, p config.Params, log zerolog.Logger) ([]task, []Warning) {
	type located struct {
		match plate.Match
		warn  []Warning
	}
	out := make([]located, len(templates))

	g := new(errgroup.Group)
	g.SetLimit(p.WorkerCount())
	for i, tmpl := range templates {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			l := &out[i]
			found, err := plate.LocateRough(tmpl.Image, p)
			if err != nil {
				l.warn = append(l.warn, Warning{Template: tmpl.Name, Err: fmt.Errorf("rough crop: %w", err)})
			}
			l.match = plate.MatchPositions(found, p)
			for _, a := range l.match.Unresolved {
				l.warn = append(l.warn, Warning{
					Template:   tmpl.Name,
					PositionID: a.ID,
					Err:        fmt.Errorf("%w: no plate found at row %d col %d", ErrInsufficientContrast, a.Row, a.Col),
				})
			}
			if len(l.match.Fallback) > 0 {
				log.Debug().Str("template", tmpl.Name).Ints("positions", l.match.Fallback).Msg("using default crop")
			}
			return nil
		})
	}
	_ = g.Wait()

	var tasks []task
	var warnings []Warning
	for i, l := range out {
		warnings = append(warnings, l.warn...)
		for _, pos := range l.match.Positions {
			tasks = append(tasks, task{tmpl: i, pos: pos})
		}
	}
	return tasks, warnings
}
