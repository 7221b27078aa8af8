// Package monitoring records run metrics and reports run outcomes.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

const namespace = "tract_series"

// Metrics holds the Prometheus counters and gauges for one process. Each
// instance owns its registry so the batch run can dump it to a textfile.
type Metrics struct {
	Registry *prometheus.Registry

	FetchAttempts *prometheus.CounterVec // labels: source={census,tiger,relationship}
	FetchFailures *prometheus.CounterVec // labels: source
	CacheLookups  *prometheus.CounterVec // labels: kind={raw,tracts}, result={hit,miss}

	PairsSkipped        prometheus.Counter
	EdgesBuilt          *prometheus.CounterVec // labels: direction
	PercentNormalized   prometheus.Counter
	RecordsWritten      prometheus.Counter
	RecordsDropped      prometheus.Counter
	RunDuration         prometheus.Gauge
	LastRunSuccess      prometheus.Gauge
	LastRunFailureUnits prometheus.Gauge
}

// NewMetrics creates all metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Remote fetch attempts by source.",
		}, []string{"source"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Units of work skipped after exhausting retries, by source.",
		}, []string{"source"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Local cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		PairsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crosswalk_pairs_skipped_total",
			Help:      "Relationship pairs dropped because a tract geometry was missing.",
		}),
		EdgesBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crosswalk_edges_total",
			Help:      "Crosswalk edges computed by direction.",
		}, []string{"direction"}),
		PercentNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interpolation_percent_normalized_total",
			Help:      "Fractions greater than 1 divided by 100 during interpolation.",
		}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Wide tract records written to the output file.",
		}),
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Wide tract records dropped for lacking 2020 geometry.",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 when the last run completed, 0 when it aborted.",
		}),
		LastRunFailureUnits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_failed_units",
			Help:      "Units of work skipped in the last run.",
		}),
	}

	m.Registry.MustRegister(
		m.FetchAttempts,
		m.FetchFailures,
		m.CacheLookups,
		m.PairsSkipped,
		m.EdgesBuilt,
		m.PercentNormalized,
		m.RecordsWritten,
		m.RecordsDropped,
		m.RunDuration,
		m.LastRunSuccess,
		m.LastRunFailureUnits,
	)
	return m
}

// ObserveRun records the outcome of a run.
func (m *Metrics) ObserveRun(started time.Time, failedUnits int, runErr error) {
	m.RunDuration.Set(time.Since(started).Seconds())
	m.LastRunFailureUnits.Set(float64(failedUnits))
	if runErr != nil {
		m.LastRunSuccess.Set(0)
	} else {
		m.LastRunSuccess.Set(1)
	}
}

// WriteTextfile writes the registry in the node_exporter textfile format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return eris.Wrap(err, "monitoring: write textfile")
	}
	return nil
}
