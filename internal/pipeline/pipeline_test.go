package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/tract-series/internal/cache"
	"github.com/sells-group/tract-series/internal/config"
	"github.com/sells-group/tract-series/internal/crosswalk"
	"github.com/sells-group/tract-series/internal/monitoring"
	"github.com/sells-group/tract-series/internal/relationship"
	"github.com/sells-group/tract-series/internal/tiger"
	"github.com/sells-group/tract-series/internal/tract"
	"github.com/sells-group/tract-series/pkg/census"
)

const (
	variable          = "B01001_001E"
	tract10  tract.ID = "01001020100"
	tract20  tract.ID = "01001020200"
)

// fakeCensus serves rows per "state/year". fail[key] failing attempts
// precede success; a negative count always fails.
type fakeCensus struct {
	rows  map[string][]census.RawRow
	fail  map[string]int
	calls map[string]int
}

func newFakeCensus() *fakeCensus {
	return &fakeCensus{rows: map[string][]census.RawRow{}, fail: map[string]int{}, calls: map[string]int{}}
}

func (f *fakeCensus) FetchTracts(_ context.Context, q census.Query) ([]census.RawRow, error) {
	key := fmt.Sprintf("%s/%d", q.StateFIPS, q.Year)
	f.calls[key]++
	if n := f.fail[key]; n < 0 || f.calls[key] <= n {
		return nil, errors.New("census: status 503")
	}
	return f.rows[key], nil
}

func (f *fakeCensus) total() int {
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakePairs struct{}

func (fakePairs) Fetch(_ context.Context, _ tract.State) ([]relationship.Pair, error) {
	return []relationship.Pair{{StateName: "Alabama", Tract10: tract10, Tract20: tract20}}, nil
}

type fakeGeoms struct {
	err   error
	calls int
}

func (f *fakeGeoms) Fetch(_ context.Context, v tiger.Vintage, _ string) (map[tract.ID]tiger.Tract, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	id := tract10
	if v == tiger.V2020 {
		id = tract20
	}
	return map[tract.ID]tiger.Tract{id: {
		ID:      id,
		Vintage: v,
		Attrs: tiger.Attrs{
			StateFP: "01", CountyFP: "001", TractCE: id.Tract(), Name: "202",
			ALand: 5000, AWater: 20, IntPtLat: 32.48, IntPtLon: -86.49,
		},
		Geom: box(),
	}}, nil
}

func box() *geom.MultiPolygon {
	mp := geom.NewMultiPolygon(geom.XY)
	_ = mp.Push(geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{-86.5, 32.4}, {-86.4, 32.4}, {-86.4, 32.5}, {-86.5, 32.5}, {-86.5, 32.4}}}))
	return mp
}

func row(tractCode string, v float64) census.RawRow {
	return census.RawRow{
		Name:   "Census Tract 201, Autauga County, Alabama",
		State:  "01",
		County: "001",
		Tract:  tractCode,
		Values: map[string]*float64{variable: &v},
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{DataDir: t.TempDir()}
	cfg.Census.BaseURL = "https://api.census.gov/data"
	cfg.Census.Dataset = "acs/acs5"
	cfg.Census.Variables = []string{variable}
	cfg.Census.StartYear = 2018
	cfg.Census.EndYear = 2020
	cfg.Census.States = []string{"AL"}
	cfg.Crosswalk.Precision = 3
	cfg.Series.MissingSentinel = "NaN"
	cfg.Blob.Provider = "none"
	cfg.Fetch.TimeoutSecs = 600
	cfg.Fetch.MaxRetries = 2
	cfg.Fetch.RatePerSec = 5
	cfg.Fetch.TigerBaseURL = "https://www2.census.gov/geo/tiger"
	cfg.Fetch.RelationshipBaseURL = "https://www2.census.gov/geo/docs/maps-data/data/rel2020/tract"
	cfg.Log.Format = "json"
	return cfg
}

type harness struct {
	cfg    *config.Config
	census *fakeCensus
	geoms  *fakeGeoms
	db     *cache.DB
	fs     afero.Fs
	m      *monitoring.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testConfig(t)
	db, err := cache.Open(cfg.CachePath())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck
	require.NoError(t, db.Migrate(context.Background()))

	fc := newFakeCensus()
	fc.rows["01/2018"] = []census.RawRow{row("020100", 10)}
	fc.rows["01/2019"] = []census.RawRow{row("020100", 11)}
	fc.rows["01/2020"] = []census.RawRow{row("020200", 12)}

	return &harness{
		cfg:    cfg,
		census: fc,
		geoms:  &fakeGeoms{},
		db:     db,
		fs:     afero.NewMemMapFs(),
		m:      monitoring.NewMetrics(),
	}
}

func (h *harness) pipeline(alerter *monitoring.Alerter) *Pipeline {
	p := New(h.cfg, Deps{
		Census:     h.census,
		Pairs:      fakePairs{},
		Geoms:      h.geoms,
		Crosswalks: crosswalk.NewStore(h.cfg.CrosswalkDir(), nil, h.cfg.Crosswalk.Precision),
		Cache:      h.db,
		Runs:       h.db,
		Alerter:    alerter,
		Metrics:    h.m,
		Fs:         h.fs,
	})
	p.backoff = time.Millisecond
	return p
}

type output struct {
	Type     string `json:"type"`
	Features []struct {
		ID         string         `json:"id"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

func readOutput(t *testing.T, fs afero.Fs, path string) output {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	var out output
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func lastRun(t *testing.T, db *cache.DB) cache.Run {
	t.Helper()
	runs, err := db.LastRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	return runs[0]
}

func TestSeries_EndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rep, err := h.pipeline(nil).Series(ctx)
	require.NoError(t, err)

	assert.Equal(t, crosswalk.Rebuilt, rep.Crosswalk)
	assert.Equal(t, filepath.Join(h.cfg.DataDir, "B01001_001E_AL_2018-2020.json"), rep.Output)
	assert.Equal(t, 1, rep.Features)
	assert.Empty(t, rep.Failures)
	assert.NotEmpty(t, rep.RunID)

	out := readOutput(t, h.fs, rep.Output)
	assert.Equal(t, "FeatureCollection", out.Type)
	require.Len(t, out.Features, 1)
	props := out.Features[0].Properties
	assert.Equal(t, "01001020200", props["GEOID"])
	assert.Equal(t, "Autauga", props["county_name"])
	assert.Equal(t, "AL", props["state_usps"])
	assert.Equal(t, map[string]any{"2018": 10.0, "2019": 11.0, "2020": 12.0}, props[variable])

	// Raw statistics were cached for the next run.
	cached, ok, err := h.db.GetRaw(ctx, "01", 2019, []string{variable})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, cached, 1)

	run := lastRun(t, h.db)
	assert.Equal(t, "series", run.Command)
	assert.Equal(t, cache.RunComplete, run.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.RecordsWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.LastRunSuccess))
}

func TestSeries_SkipsUnitAfterRetries(t *testing.T) {
	h := newHarness(t)
	h.cfg.Fetch.MaxRetries = 1
	h.census.fail["01/2019"] = -1

	var alert monitoring.Alert
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	rep, err := h.pipeline(monitoring.NewAlerter(config.MetricsConfig{WebhookURL: ts.URL})).Series(context.Background())
	require.NoError(t, err)

	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "AL 2019", rep.Failures[0].String())
	assert.Equal(t, []string{variable}, rep.Failures[0].Variables)
	assert.Equal(t, 2, h.census.calls["01/2019"])

	out := readOutput(t, h.fs, rep.Output)
	require.Len(t, out.Features, 1)
	assert.Equal(t, map[string]any{"2018": 10.0, "2019": "NaN", "2020": 12.0}, out.Features[0].Properties[variable])

	run := lastRun(t, h.db)
	assert.Equal(t, cache.RunPartial, run.Status)
	assert.Equal(t, []string{"AL 2019"}, run.Failures)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.FetchFailures.WithLabelValues("census")))
	assert.Equal(t, 4.0, testutil.ToFloat64(h.m.FetchAttempts.WithLabelValues("census")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.LastRunFailureUnits))

	assert.Equal(t, monitoring.AlertRunPartial, alert.Type)
	assert.Equal(t, rep.RunID, alert.Details["run_id"])
}

func TestSeries_RetrySucceeds(t *testing.T) {
	h := newHarness(t)
	h.census.fail["01/2018"] = 2

	rep, err := h.pipeline(nil).Series(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Failures)
	assert.Equal(t, 3, h.census.calls["01/2018"])
}

func TestSeries_UsesRawCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.pipeline(nil).Series(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, h.census.total())

	// Everything is served locally, so a failing API does not matter.
	for _, key := range []string{"01/2018", "01/2019", "01/2020"} {
		h.census.fail[key] = -1
	}
	rep, err := h.pipeline(nil).Series(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Failures)
	assert.Equal(t, crosswalk.UsedLocal, rep.Crosswalk)
	assert.Equal(t, 3, h.census.total())

	h.cfg.Series.OverwriteLocal = true
	h.cfg.Fetch.MaxRetries = 0
	rep, err = h.pipeline(nil).Series(ctx)
	require.NoError(t, err)
	assert.Len(t, rep.Failures, 3)
	assert.Equal(t, 6, h.census.total())
}

func TestSeries_ExplicitOutput(t *testing.T) {
	h := newHarness(t)
	h.cfg.Series.Output = "/out/series.geojson"

	rep, err := h.pipeline(nil).Series(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/out/series.geojson", rep.Output)
	ok, err := afero.Exists(h.fs, "/out/series.geojson")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSeries_InvalidConfig(t *testing.T) {
	h := newHarness(t)
	h.cfg.Census.Variables = nil

	_, err := h.pipeline(nil).Series(context.Background())
	require.Error(t, err)
	assert.True(t, eris.Is(err, config.ErrInvalid))
	assert.Zero(t, h.census.total())
	assert.Zero(t, h.geoms.calls)

	runs, err := h.db.LastRuns(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSeries_GeometryErrorAbortsBeforeOutput(t *testing.T) {
	h := newHarness(t)
	h.geoms.err = errors.New("tiger: download failed")

	rep, err := h.pipeline(nil).Series(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tiger: download failed")

	ok, statErr := afero.Exists(h.fs, rep.Output)
	require.NoError(t, statErr)
	assert.False(t, ok)

	run := lastRun(t, h.db)
	assert.Equal(t, cache.RunFailed, run.Status)
	assert.Equal(t, 0.0, testutil.ToFloat64(h.m.LastRunSuccess))
}

func TestSeries_WritesMetricsTextfile(t *testing.T) {
	h := newHarness(t)
	h.cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "tract_series.prom")

	_, err := h.pipeline(nil).Series(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(h.cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tract_series_records_written_total 1")
}

func TestCrosswalk_BuildsThenReuses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rep, err := h.pipeline(nil).Crosswalk(ctx)
	require.NoError(t, err)
	assert.Equal(t, crosswalk.Rebuilt, rep.Crosswalk)
	for _, dir := range crosswalk.Directions {
		_, err := os.Stat(filepath.Join(h.cfg.CrosswalkDir(), dir.FileName(3)))
		assert.NoError(t, err)
	}
	assert.Equal(t, "crosswalk", lastRun(t, h.db).Command)
	calls := h.geoms.calls

	rep, err = h.pipeline(nil).Crosswalk(ctx)
	require.NoError(t, err)
	assert.Equal(t, crosswalk.UsedLocal, rep.Crosswalk)
	assert.Equal(t, calls, h.geoms.calls)

	h.cfg.Crosswalk.OverwriteLocal = true
	rep, err = h.pipeline(nil).Crosswalk(ctx)
	require.NoError(t, err)
	assert.Equal(t, crosswalk.Rebuilt, rep.Crosswalk)
	assert.Greater(t, h.geoms.calls, calls)

	xw, err := crosswalk.NewStore(h.cfg.CrosswalkDir(), nil, 3).Load(ctx, crosswalk.From2010)
	require.NoError(t, err)
	targets, ok := xw.Targets(tract10)
	require.True(t, ok)
	assert.Equal(t, map[tract.ID]float64{tract20: 1}, targets)
}

func TestCrosswalk_InvalidStates(t *testing.T) {
	h := newHarness(t)
	h.cfg.Census.States = []string{"Atlantis"}

	_, err := h.pipeline(nil).Crosswalk(context.Background())
	require.Error(t, err)
	assert.True(t, eris.Is(err, config.ErrInvalid))
	assert.Zero(t, h.geoms.calls)
}

func TestAcquire_Cancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := h.pipeline(nil).Acquire(ctx, []tract.State{{Name: "Alabama", FIPS: "01", USPS: "AL"}})
	require.Error(t, err)
	assert.True(t, eris.Is(err, context.Canceled))
	assert.Zero(t, h.census.total())
}

func TestAcquire_InvalidRowsFailTheUnit(t *testing.T) {
	h := newHarness(t)
	h.census.rows["01/2019"] = []census.RawRow{row("02x100", 11)}

	rows, failures, err := h.pipeline(nil).Acquire(context.Background(), []tract.State{{Name: "Alabama", FIPS: "01", USPS: "AL"}})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, 2019, failures[0].Year)
	assert.True(t, eris.Is(failures[0].Err, tract.ErrInvalidFIPS))
	assert.Len(t, rows, 2)

	vars := h.cfg.Census.Variables
	_, ok, err := h.db.GetRaw(context.Background(), "01", 2019, vars)
	require.NoError(t, err)
	assert.False(t, ok, "the unit that failed ingest is evicted")
	_, ok, err = h.db.GetRaw(context.Background(), "01", 2018, vars)
	require.NoError(t, err)
	assert.True(t, ok)
}
