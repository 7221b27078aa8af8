package crosswalk

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tract-series/internal/geometry"
	"github.com/sells-group/tract-series/internal/monitoring"
	"github.com/sells-group/tract-series/internal/relationship"
	"github.com/sells-group/tract-series/internal/tiger"
	"github.com/sells-group/tract-series/internal/tract"
)

// DefaultPrecision is the number of decimals fractions are rounded to.
const DefaultPrecision = 3

// PairSource returns candidate tract pairs for a state.
type PairSource interface {
	Fetch(ctx context.Context, state tract.State) ([]relationship.Pair, error)
}

// GeometrySource returns the tract polygons of a state for a vintage.
type GeometrySource interface {
	Fetch(ctx context.Context, vintage tiger.Vintage, stateFIPS string) (map[tract.ID]tiger.Tract, error)
}

// Result holds both directions of a build.
type Result struct {
	From2010 *Map
	From2020 *Map
	// Skipped counts pairs dropped because a geometry was missing.
	Skipped int
}

// Map returns the map for a direction.
func (r *Result) Map(dir Direction) *Map {
	if dir == From2020 {
		return r.From2020
	}
	return r.From2010
}

// Builder computes crosswalk fractions from relationship pairs and tract
// polygons.
type Builder struct {
	pairs     PairSource
	geoms     GeometrySource
	precision int
	metrics   *monitoring.Metrics
}

// NewBuilder creates a Builder. m may be nil.
func NewBuilder(pairs PairSource, geoms GeometrySource, precision int, m *monitoring.Metrics) *Builder {
	if m == nil {
		m = monitoring.NewMetrics()
	}
	return &Builder{pairs: pairs, geoms: geoms, precision: precision, metrics: m}
}

// Build processes each state in turn. A pair whose geometry is missing in
// either vintage is skipped; a geometry that cannot be intersected aborts
// the whole build.
func (b *Builder) Build(ctx context.Context, states []tract.State) (*Result, error) {
	res := &Result{From2010: NewMap(From2010), From2020: NewMap(From2020)}
	log := zap.L().With(zap.String("component", "crosswalk.builder"), zap.Int("precision", b.precision))

	for _, st := range states {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "crosswalk: build cancelled")
		}
		skipped, err := b.buildState(ctx, st, res)
		if err != nil {
			return nil, eris.Wrapf(err, "crosswalk: state %s", st.USPS)
		}
		res.Skipped += skipped
	}

	for _, dir := range Directions {
		b.metrics.EdgesBuilt.WithLabelValues(dir.String()).Add(float64(res.Map(dir).Edges()))
	}
	log.Info("crosswalk built",
		zap.Int("states", len(states)),
		zap.Int("sources_2010", res.From2010.Len()),
		zap.Int("sources_2020", res.From2020.Len()),
		zap.Int("edges", res.From2010.Edges()),
		zap.Int("skipped_pairs", res.Skipped),
	)
	return res, nil
}

func (b *Builder) buildState(ctx context.Context, st tract.State, res *Result) (int, error) {
	log := zap.L().With(zap.String("component", "crosswalk.builder"), zap.String("state", st.USPS))

	pairs, err := b.pairs.Fetch(ctx, st)
	if err != nil {
		return 0, eris.Wrap(err, "fetch relationship pairs")
	}
	g10, err := b.geoms.Fetch(ctx, tiger.V2010, st.FIPS)
	if err != nil {
		return 0, eris.Wrap(err, "fetch 2010 geometries")
	}
	g20, err := b.geoms.Fetch(ctx, tiger.V2020, st.FIPS)
	if err != nil {
		return 0, eris.Wrap(err, "fetch 2020 geometries")
	}

	skipped := 0
	for _, p := range pairs {
		t10, ok10 := g10[p.Tract10]
		t20, ok20 := g20[p.Tract20]
		if !ok10 || !ok20 {
			skipped++
			log.Debug("skipping pair without geometry",
				zap.String("tract_2010", p.Tract10.String()),
				zap.String("tract_2020", p.Tract20.String()),
				zap.Bool("has_2010", ok10),
				zap.Bool("has_2020", ok20),
			)
			continue
		}

		f, err := geometry.Overlap(t10.Geom, t20.Geom)
		if err != nil {
			return skipped, eris.Wrapf(err, "overlap %s/%s", p.Tract10, p.Tract20)
		}

		stateName := p.StateName
		if stateName == "" {
			stateName = st.Name
		}
		res.From2010.Set(stateName, p.Tract10, p.Tract20, geometry.Round(f.To2020, b.precision))
		res.From2020.Set(stateName, p.Tract20, p.Tract10, geometry.Round(f.To2010, b.precision))
	}

	if skipped > 0 {
		b.metrics.PairsSkipped.Add(float64(skipped))
		log.Warn("pairs skipped for missing geometry", zap.Int("skipped", skipped), zap.Int("pairs", len(pairs)))
	}
	log.Info("state crosswalk built", zap.Int("pairs", len(pairs)-skipped))
	return skipped, nil
}
