// Package pipeline runs the crosswalk and statistics commands end to end.
package pipeline

import (
	"context"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/sells-group/tract-series/internal/cache"
	"github.com/sells-group/tract-series/internal/config"
	"github.com/sells-group/tract-series/internal/crosswalk"
	"github.com/sells-group/tract-series/internal/monitoring"
	"github.com/sells-group/tract-series/pkg/census"
)

// StatsCache persists raw statistics per (state, year, variables).
type StatsCache interface {
	GetRaw(ctx context.Context, stateFIPS string, year int, vars []string) ([]census.RawRow, bool, error)
	PutRaw(ctx context.Context, stateFIPS string, year int, vars []string, rows []census.RawRow) error
	DeleteRaw(ctx context.Context, stateFIPS string, year int, vars []string) error
}

// RunLog records command runs.
type RunLog interface {
	StartRun(ctx context.Context, command string, params any) (string, error)
	FinishRun(ctx context.Context, id string, status cache.RunStatus, failures []string) error
}

// CrosswalkStore provides the crosswalk artifacts.
type CrosswalkStore interface {
	Ensure(ctx context.Context, opts crosswalk.Options, build crosswalk.BuildFunc) (crosswalk.Outcome, error)
	Load(ctx context.Context, dir crosswalk.Direction) (*crosswalk.Map, error)
}

// Deps are the collaborators of a Pipeline. Cache, Runs and Alerter may be
// nil.
type Deps struct {
	Census     census.Client
	Pairs      crosswalk.PairSource
	Geoms      crosswalk.GeometrySource
	Crosswalks CrosswalkStore
	Cache      StatsCache
	Runs       RunLog
	Alerter    *monitoring.Alerter
	Metrics    *monitoring.Metrics
	Fs         afero.Fs
}

// Pipeline orchestrates the crosswalk and series runs.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
	// backoff overrides the first retry delay when positive.
	backoff time.Duration
}

// New creates a Pipeline from a validated config.
func New(cfg *config.Config, deps Deps) *Pipeline {
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetrics()
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	return &Pipeline{cfg: cfg, deps: deps}
}

// Metrics returns the registry the pipeline records into.
func (p *Pipeline) Metrics() *monitoring.Metrics { return p.deps.Metrics }

// Report summarizes a finished run.
type Report struct {
	RunID     string
	Crosswalk crosswalk.Outcome
	// Output is the GeoJSON path of a series run.
	Output   string
	Features int
	Failures []Failure
}

func (r *Report) failureStrings() []string {
	if len(r.Failures) == 0 {
		return nil
	}
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.String()
	}
	return out
}

// track records a run in the run log, the metrics and the alert webhook.
func (p *Pipeline) track(ctx context.Context, command string, params any, fn func(ctx context.Context, rep *Report) error) (*Report, error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("command", command))
	started := time.Now()
	rep := &Report{}

	if p.deps.Runs != nil {
		id, err := p.deps.Runs.StartRun(ctx, command, params)
		if err != nil {
			log.Warn("pipeline: failed to record run start", zap.Error(err))
		} else {
			rep.RunID = id
		}
	}

	runErr := fn(ctx, rep)
	failures := rep.failureStrings()

	status := cache.RunComplete
	switch {
	case runErr != nil:
		status = cache.RunFailed
	case len(failures) > 0:
		status = cache.RunPartial
	}

	// The run is recorded even when ctx was cancelled.
	finishCtx := context.WithoutCancel(ctx)
	if p.deps.Runs != nil && rep.RunID != "" {
		if err := p.deps.Runs.FinishRun(finishCtx, rep.RunID, status, failures); err != nil {
			log.Warn("pipeline: failed to record run finish", zap.Error(err))
		}
	}

	p.deps.Metrics.ObserveRun(started, len(failures), runErr)
	if err := p.deps.Metrics.WriteTextfile(p.cfg.Metrics.Textfile); err != nil {
		log.Warn("pipeline: failed to write metrics textfile", zap.Error(err))
	}
	if p.deps.Alerter != nil {
		p.deps.Alerter.Notify(finishCtx, monitoring.RunOutcome{
			Command:  command,
			RunID:    rep.RunID,
			Duration: time.Since(started),
			Failures: failures,
			Err:      runErr,
		})
	}

	log.Info("pipeline: run finished",
		zap.String("run_id", rep.RunID),
		zap.String("status", string(status)),
		zap.Int("failed_units", len(failures)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return rep, runErr
}

// phase runs one named step, logging its duration and outcome.
func phase(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()

	if err != nil {
		log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		return err
	}
	log.Info("pipeline: phase complete",
		zap.String("phase", name),
		zap.Int64("duration_ms", duration),
	)
	return nil
}
