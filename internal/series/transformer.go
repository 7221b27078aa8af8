package series

import (
	"go.uber.org/zap"

	"github.com/sells-group/tract-series/internal/crosswalk"
	"github.com/sells-group/tract-series/internal/monitoring"
	"github.com/sells-group/tract-series/internal/tiger"
	"github.com/sells-group/tract-series/internal/tract"
)

// Transformer runs the reshape and interpolation stages in order.
type Transformer struct {
	vars    []string
	metrics *monitoring.Metrics
}

// NewTransformer creates a Transformer for the variables. m may be nil.
func NewTransformer(vars []string, m *monitoring.Metrics) *Transformer {
	if m == nil {
		m = monitoring.NewMetrics()
	}
	return &Transformer{vars: vars, metrics: m}
}

// Run turns ingested rows into output features on 2020 tracts of the
// selected states. xw is the 2010-to-2020 crosswalk and geoms the 2020
// polygons.
func (t *Transformer) Run(rows []Row, xw *crosswalk.Map, geoms map[tract.ID]tiger.Tract, states []tract.State) ([]Feature, error) {
	log := zap.L().With(zap.String("component", "series.transformer"))

	deduped := Dedupe(rows)
	if n := len(rows) - len(deduped); n > 0 {
		log.Info("duplicate rows dropped", zap.Int("rows", n))
	}

	wide := Widen(deduped)
	pre, native := Partition(wide)
	collapsed := Collapse(pre, t.vars)
	log.Info("reshaped statistics", zap.Int("rows", len(deduped)), zap.Int("tracts", len(wide)))

	interpolated, stats, err := Interpolate(collapsed, xw, t.vars)
	if err != nil {
		return nil, err
	}
	t.metrics.PercentNormalized.Add(float64(stats.Normalized))

	records := Rejoin(interpolated, native, t.vars)
	features, dropped := JoinGeometry(records, geoms, states, t.vars)
	fillCountyNames(features, deduped)
	t.metrics.RecordsDropped.Add(float64(dropped))
	if dropped > 0 {
		log.Info("records without a selected 2020 polygon dropped", zap.Int("records", dropped))
	}

	log.Info("features ready", zap.Int("features", len(features)))
	return features, nil
}
