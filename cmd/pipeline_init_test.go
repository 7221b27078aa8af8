package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tract-series/internal/config"
	"github.com/sells-group/tract-series/internal/tract"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{DataDir: t.TempDir()}
	c.Census.APIKey = "secret-key"
	c.Census.BaseURL = "https://api.census.gov/data"
	c.Census.Dataset = "acs/acs5"
	c.Census.Variables = []string{"B01001_001E"}
	c.Census.StartYear = 2015
	c.Census.EndYear = 2020
	c.Census.States = []string{"All"}
	c.Crosswalk.Precision = 3
	c.Series.MissingSentinel = "NaN"
	c.Blob.Provider = "none"
	c.Fetch.TimeoutSecs = 600
	c.Fetch.MaxRetries = 2
	c.Fetch.RatePerSec = 5
	c.Fetch.TigerBaseURL = "https://www2.census.gov/geo/tiger"
	c.Fetch.RelationshipBaseURL = "https://www2.census.gov/geo/docs/maps-data/data/rel2020/tract"
	c.Log.Format = "json"
	return c
}

func TestPipelineEnv_Close_Nil(t *testing.T) {
	pe := &pipelineEnv{}
	assert.NotPanics(t, func() {
		pe.Close()
	})
}

func TestInitPipeline(t *testing.T) {
	cfg = validConfig(t)

	env, err := initPipeline(context.Background(), "series")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Cache)
	assert.NotNil(t, env.Pipeline)
	assert.Same(t, metrics, env.Pipeline.Metrics())
}

func TestInitPipeline_InvalidConfig(t *testing.T) {
	cfg = validConfig(t)
	cfg.Census.Variables = nil

	_, err := initPipeline(context.Background(), "series")
	require.Error(t, err)
	assert.True(t, eris.Is(err, config.ErrInvalid))

	// The crosswalk command does not need variables.
	env, err := initPipeline(context.Background(), "crosswalk")
	require.NoError(t, err)
	env.Close()
}

func TestInitPipeline_StatisticsUnitRetryBound(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg = validConfig(t)
	cfg.Census.BaseURL = srv.URL
	cfg.Census.StartYear = 2018
	cfg.Census.EndYear = 2018
	cfg.Census.States = []string{"AL"}
	cfg.Fetch.MaxRetries = 2

	env, err := initPipeline(context.Background(), "series")
	require.NoError(t, err)
	defer env.Close()

	al, ok := tract.LookupState("AL")
	require.True(t, ok)

	rows, failures, err := env.Pipeline.Acquire(context.Background(), []tract.State{al})
	require.NoError(t, err)
	assert.Empty(t, rows)
	require.Len(t, failures, 1)
	assert.Equal(t, "AL 2018", failures[0].String())
	assert.Equal(t, int32(cfg.Fetch.MaxRetries+1), requests.Load())
}

func TestNewFetchers(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	fc := validConfig(t).Fetch
	fc.MaxRetries = 1
	files, api := newFetchers(fc)

	_, err := api.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), requests.Load())

	requests.Store(0)
	_, err = files.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(2), requests.Load())
}

func TestPrintConfig_MasksAPIKey(t *testing.T) {
	c := validConfig(t)

	var buf bytes.Buffer
	require.NoError(t, printConfig(&buf, c))
	assert.NotContains(t, buf.String(), "secret-key")
	assert.Equal(t, "secret-key", c.Census.APIKey, "the live config is not modified")

	var decoded config.Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "********", decoded.Census.APIKey)
	assert.Equal(t, []string{"B01001_001E"}, decoded.Census.Variables)
	assert.Equal(t, 3, decoded.Crosswalk.Precision)
}
