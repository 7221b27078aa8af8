package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tract-series/internal/resilience"
	"github.com/sells-group/tract-series/internal/series"
	"github.com/sells-group/tract-series/internal/tract"
	"github.com/sells-group/tract-series/pkg/census"
)

// Failure is a (state, year) unit skipped after exhausting its retries.
type Failure struct {
	State     tract.State
	Year      int
	Variables []string
	Err       error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s %d", f.State.USPS, f.Year)
}

// Acquire downloads the statistics of every (state, year) unit, preferring
// the local cache unless series.overwrite_local is set. Units that still
// fail after the configured retries are returned as failures and skipped.
func (p *Pipeline) Acquire(ctx context.Context, states []tract.State) ([]series.Row, []Failure, error) {
	log := zap.L().With(zap.String("component", "pipeline.acquire"))
	vars := p.cfg.Census.Variables

	var rows []series.Row
	var failures []Failure
	for _, st := range states {
		for _, year := range p.cfg.Years() {
			if err := ctx.Err(); err != nil {
				return nil, nil, eris.Wrap(err, "pipeline: acquire cancelled")
			}

			raw, err := p.fetchUnit(ctx, st, year, vars)
			if err == nil {
				var unit []series.Row
				unit, err = series.Ingest(raw, vars, year, st)
				if err == nil {
					rows = append(rows, unit...)
					continue
				}
				p.evict(ctx, log, st, year, vars)
			}
			if ctx.Err() != nil {
				return nil, nil, eris.Wrap(ctx.Err(), "pipeline: acquire cancelled")
			}
			log.Warn("statistics unit skipped",
				zap.String("state", st.USPS),
				zap.Int("year", year),
				zap.Error(err),
			)
			failures = append(failures, Failure{State: st, Year: year, Variables: vars, Err: err})
		}
	}

	log.Info("statistics acquired", zap.Int("rows", len(rows)), zap.Int("failed_units", len(failures)))
	return rows, failures, nil
}

func (p *Pipeline) fetchUnit(ctx context.Context, st tract.State, year int, vars []string) ([]census.RawRow, error) {
	log := zap.L().With(
		zap.String("component", "pipeline.acquire"),
		zap.String("state", st.USPS),
		zap.Int("year", year),
	)

	if p.deps.Cache != nil && !p.cfg.Series.OverwriteLocal {
		rows, ok, err := p.deps.Cache.GetRaw(ctx, st.FIPS, year, vars)
		switch {
		case err != nil:
			log.Warn("raw cache read failed, downloading", zap.Error(err))
		case ok:
			log.Debug("statistics loaded from cache", zap.Int("rows", len(rows)))
			return rows, nil
		}
	}

	q := census.Query{Variables: vars, StateFIPS: st.FIPS, Year: year}
	cfg := resilience.Retries(p.cfg.Fetch.MaxRetries)
	if p.backoff > 0 {
		cfg.InitialBackoff = p.backoff
	}
	cfg.OnRetry = resilience.RetryLogger("census", "fetch_tracts",
		zap.String("state", st.USPS), zap.Int("year", year))
	res := resilience.Attempt(ctx, cfg, func(ctx context.Context) ([]census.RawRow, error) {
		return p.deps.Census.FetchTracts(ctx, q)
	})
	p.deps.Metrics.FetchAttempts.WithLabelValues("census").Add(float64(res.Attempts))
	if !res.OK() {
		p.deps.Metrics.FetchFailures.WithLabelValues("census").Inc()
		return nil, eris.Wrapf(res.Err, "pipeline: fetch %s %d after %d attempts", st.USPS, year, res.Attempts)
	}
	log.Info("statistics downloaded", zap.Int("rows", len(res.Value)), zap.Int("attempts", res.Attempts))

	if p.deps.Cache != nil {
		if err := p.deps.Cache.PutRaw(ctx, st.FIPS, year, vars, res.Value); err != nil {
			log.Warn("raw cache write failed", zap.Error(err))
		}
	}
	return res.Value, nil
}

// evict drops a unit whose rows could not be ingested, so the next run
// downloads it again instead of failing on the cached copy.
func (p *Pipeline) evict(ctx context.Context, log *zap.Logger, st tract.State, year int, vars []string) {
	if p.deps.Cache == nil {
		return
	}
	if err := p.deps.Cache.DeleteRaw(ctx, st.FIPS, year, vars); err != nil {
		log.Warn("raw cache delete failed", zap.String("state", st.USPS), zap.Int("year", year), zap.Error(err))
	}
}

// summarizeFailures logs the skipped units once at the end of a run.
func summarizeFailures(log *zap.Logger, failures []Failure) {
	if len(failures) == 0 {
		return
	}
	units := make([]string, len(failures))
	for i, f := range failures {
		units[i] = f.String()
	}
	log.Warn("some statistics could not be downloaded and were skipped",
		zap.Int("failed_units", len(failures)),
		zap.String("units", strings.Join(units, ", ")),
		zap.Strings("variables", failures[0].Variables),
	)
}
