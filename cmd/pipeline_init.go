package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tract-series/internal/blob"
	"github.com/sells-group/tract-series/internal/cache"
	"github.com/sells-group/tract-series/internal/config"
	"github.com/sells-group/tract-series/internal/crosswalk"
	"github.com/sells-group/tract-series/internal/fetcher"
	"github.com/sells-group/tract-series/internal/monitoring"
	"github.com/sells-group/tract-series/internal/pipeline"
	"github.com/sells-group/tract-series/internal/relationship"
	"github.com/sells-group/tract-series/internal/tiger"
	"github.com/sells-group/tract-series/pkg/census"
)

// pipelineEnv holds the cache and the pipeline needed by the crosswalk and
// series commands.
type pipelineEnv struct {
	Cache    *cache.DB
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Cache != nil {
		_ = pe.Cache.Close()
	}
}

// initCache opens and migrates the local sqlite cache.
func initCache(ctx context.Context) (*cache.DB, error) {
	db, err := cache.Open(cfg.CachePath(), cache.WithMetrics(metrics))
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// initPipeline validates the config for mode, opens the cache and the
// durable store, and builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	db, err := initCache(ctx)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{Cache: db}

	remote, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "open durable store")
	}

	f, api := newFetchers(cfg.Fetch)

	env.Pipeline = pipeline.New(cfg, pipeline.Deps{
		Census: census.NewClient(cfg.Census.APIKey, api,
			census.WithBaseURL(cfg.Census.BaseURL),
			census.WithDataset(cfg.Census.Dataset),
		),
		Pairs:      relationship.NewLoader(f, cfg.RawDir("relationship"), cfg.Fetch.RelationshipBaseURL),
		Geoms:      tiger.NewSource(f, db, cfg.RawDir("tiger"), cfg.Fetch.TigerBaseURL),
		Crosswalks: crosswalk.NewStore(cfg.CrosswalkDir(), remote, cfg.Crosswalk.Precision),
		Cache:      db,
		Runs:       db,
		Alerter:    monitoring.NewAlerter(cfg.Metrics),
		Metrics:    metrics,
	})
	return env, nil
}

// newFetchers returns the fetcher for file downloads, which retries each
// request, and the fetcher for statistics queries, which makes a single
// attempt because the pipeline retries each (state, year) unit itself. Both
// share the per-host rate limiters.
func newFetchers(fc config.FetchConfig) (files, api *fetcher.HTTPFetcher) {
	opts := fetcher.HTTPOptions{
		UserAgent:    fc.UserAgent,
		Timeout:      time.Duration(fc.TimeoutSecs) * time.Second,
		MaxRetries:   fc.MaxRetries + 1,
		RateLimiters: fetcher.DefaultRateLimiters(fc.RatePerSec),
	}
	files = fetcher.NewHTTPFetcher(opts)
	opts.MaxRetries = 1
	api = fetcher.NewHTTPFetcher(opts)
	return files, api
}

// metrics is the process-wide registry shared by the cache and pipeline.
var metrics = monitoring.NewMetrics()
