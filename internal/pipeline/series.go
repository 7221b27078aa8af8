package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tract-series/internal/crosswalk"
	"github.com/sells-group/tract-series/internal/series"
	"github.com/sells-group/tract-series/internal/tiger"
	"github.com/sells-group/tract-series/internal/tract"
)

// seriesParams are logged with a series run.
type seriesParams struct {
	Variables []string `json:"variables"`
	States    []string `json:"states"`
	IncludeDC bool     `json:"include_dc"`
	IncludePR bool     `json:"include_pr"`
	StartYear int      `json:"start_year"`
	EndYear   int      `json:"end_year"`
	Precision int      `json:"precision"`
	Output    string   `json:"output"`
}

// Params summarizes the configured selection for naming outputs.
func (p *Pipeline) Params(states []tract.State) series.Params {
	return series.Params{
		Variables: p.cfg.Census.Variables,
		Selectors: p.cfg.Census.States,
		States:    states,
		IncludeDC: p.cfg.Census.IncludeDC,
		IncludePR: p.cfg.Census.IncludePR,
		StartYear: p.cfg.Census.StartYear,
		EndYear:   p.cfg.Census.EndYear,
	}
}

// OutputPath is the configured output, or one derived from the selection.
func (p *Pipeline) OutputPath(states []tract.State) string {
	if p.cfg.Series.Output != "" {
		return p.cfg.Series.Output
	}
	return series.OutputPath(p.cfg.DataDir, p.Params(states))
}

// Series produces the GeoJSON time series of the configured variables on
// 2020 tracts. Units that fail to download are skipped and reported; any
// other error aborts the run before output is written.
func (p *Pipeline) Series(ctx context.Context) (*Report, error) {
	if err := p.cfg.Validate("series"); err != nil {
		return nil, err
	}
	states, err := p.cfg.States()
	if err != nil {
		return nil, err
	}

	out := p.OutputPath(states)
	params := seriesParams{
		Variables: p.cfg.Census.Variables,
		States:    p.cfg.Census.States,
		IncludeDC: p.cfg.Census.IncludeDC,
		IncludePR: p.cfg.Census.IncludePR,
		StartYear: p.cfg.Census.StartYear,
		EndYear:   p.cfg.Census.EndYear,
		Precision: p.cfg.Crosswalk.Precision,
		Output:    out,
	}

	return p.track(ctx, "series", params, func(ctx context.Context, rep *Report) error {
		log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", rep.RunID))
		rep.Output = out
		vars := p.cfg.Census.Variables

		var xw *crosswalk.Map
		err := phase(log, "crosswalk", func() error {
			outcome, err := p.ensureCrosswalks(ctx, states)
			if err != nil {
				return err
			}
			rep.Crosswalk = outcome
			xw, err = p.deps.Crosswalks.Load(ctx, crosswalk.From2010)
			return err
		})
		if err != nil {
			return err
		}

		var rows []series.Row
		err = phase(log, "acquire", func() error {
			var err error
			rows, rep.Failures, err = p.Acquire(ctx, states)
			return err
		})
		if err != nil {
			return err
		}

		var geoms map[tract.ID]tiger.Tract
		err = phase(log, "geometry", func() error {
			var err error
			geoms, err = p.geometries(ctx, states)
			return err
		})
		if err != nil {
			return err
		}

		var features []series.Feature
		err = phase(log, "transform", func() error {
			var err error
			features, err = series.NewTransformer(vars, p.deps.Metrics).Run(rows, xw, geoms, states)
			return err
		})
		if err != nil {
			return err
		}

		err = phase(log, "write", func() error {
			return series.WriteGeoJSON(p.deps.Fs, out, features, series.WriteOptions{
				Variables: vars,
				Years:     p.cfg.Years(),
				Sentinel:  p.cfg.Series.MissingSentinel,
			})
		})
		if err != nil {
			return err
		}
		p.deps.Metrics.RecordsWritten.Add(float64(len(features)))
		rep.Features = len(features)

		summarizeFailures(log, rep.Failures)
		log.Info("series written", zap.String("path", out), zap.Int("features", len(features)))
		return nil
	})
}

// geometries merges the 2020 tracts of every selected state.
func (p *Pipeline) geometries(ctx context.Context, states []tract.State) (map[tract.ID]tiger.Tract, error) {
	out := make(map[tract.ID]tiger.Tract)
	for _, st := range states {
		tracts, err := p.deps.Geoms.Fetch(ctx, tiger.V2020, st.FIPS)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: 2020 geometries for %s", st.USPS)
		}
		for id, t := range tracts {
			out[id] = t
		}
	}
	return out, nil
}
