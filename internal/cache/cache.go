// Package cache is the local sqlite cache of raw statistics responses,
// parsed tract geometries and the run log.
package cache

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/tract-series/internal/monitoring"
)

// DB wraps the sqlite handle.
type DB struct {
	db      *sql.DB
	metrics *monitoring.Metrics
}

// Option configures a DB.
type Option func(*DB)

// WithMetrics records cache hits and misses on m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(d *DB) { d.metrics = m }
}

// Open opens the cache database at path and configures WAL mode. The
// parent directory is created if needed.
func Open(path string, opts ...Option) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "cache: create dir %s", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open")
	}
	// A single connection keeps pragmas and transactions on the same handle.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}
	d := &DB{db: db}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS raw_stats (
	state      TEXT NOT NULL,
	year       INTEGER NOT NULL,
	variables  TEXT NOT NULL,
	rows       TEXT NOT NULL,
	fetched_at DATETIME NOT NULL,
	PRIMARY KEY (state, year, variables)
);

CREATE TABLE IF NOT EXISTS tract_sets (
	vintage   INTEGER NOT NULL,
	state     TEXT NOT NULL,
	count     INTEGER NOT NULL,
	cached_at DATETIME NOT NULL,
	PRIMARY KEY (vintage, state)
);

CREATE TABLE IF NOT EXISTS tracts (
	vintage INTEGER NOT NULL,
	state   TEXT NOT NULL,
	geoid   TEXT NOT NULL,
	attrs   TEXT NOT NULL,
	geom    BLOB NOT NULL,
	PRIMARY KEY (vintage, state, geoid)
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	command     TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	params      TEXT,
	failures    TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Migrate creates the cache tables.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "cache: migrate")
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) lookup(kind string, hit bool) {
	if d.metrics == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	d.metrics.CacheLookups.WithLabelValues(kind, result).Inc()
}
