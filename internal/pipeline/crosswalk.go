package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/tract-series/internal/crosswalk"
	"github.com/sells-group/tract-series/internal/tract"
)

// crosswalkParams are logged with a crosswalk run.
type crosswalkParams struct {
	States          []string `json:"states"`
	Precision       int      `json:"precision"`
	OverwriteLocal  bool     `json:"overwrite_local"`
	OverwriteRemote bool     `json:"overwrite_remote"`
}

// Crosswalk makes both crosswalk artifacts available, building them for the
// selected states when neither a local nor a durable copy can be used.
func (p *Pipeline) Crosswalk(ctx context.Context) (*Report, error) {
	if err := p.cfg.Validate("crosswalk"); err != nil {
		return nil, err
	}
	states, err := p.cfg.States()
	if err != nil {
		return nil, err
	}

	params := crosswalkParams{
		States:          p.cfg.Census.States,
		Precision:       p.cfg.Crosswalk.Precision,
		OverwriteLocal:  p.cfg.Crosswalk.OverwriteLocal,
		OverwriteRemote: p.cfg.Crosswalk.OverwriteRemote,
	}
	return p.track(ctx, "crosswalk", params, func(ctx context.Context, rep *Report) error {
		log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", rep.RunID))
		return phase(log, "crosswalk", func() error {
			outcome, err := p.ensureCrosswalks(ctx, states)
			rep.Crosswalk = outcome
			return err
		})
	})
}

func (p *Pipeline) ensureCrosswalks(ctx context.Context, states []tract.State) (crosswalk.Outcome, error) {
	opts := crosswalk.Options{
		OverwriteLocal:  p.cfg.Crosswalk.OverwriteLocal,
		OverwriteRemote: p.cfg.Crosswalk.OverwriteRemote,
	}
	builder := crosswalk.NewBuilder(p.deps.Pairs, p.deps.Geoms, p.cfg.Crosswalk.Precision, p.deps.Metrics)
	return p.deps.Crosswalks.Ensure(ctx, opts, func(ctx context.Context) (*crosswalk.Result, error) {
		return builder.Build(ctx, states)
	})
}
