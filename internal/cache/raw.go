package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tract-series/pkg/census"
)

// variablesKey is order-insensitive: rows carry values keyed by name.
func variablesKey(vars []string) string {
	sorted := append([]string(nil), vars...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// PutRaw stores the rows fetched for one (state, year, variables) unit,
// replacing any earlier copy.
func (d *DB) PutRaw(ctx context.Context, stateFIPS string, year int, vars []string, rows []census.RawRow) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return eris.Wrap(err, "cache: marshal raw rows")
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO raw_stats (state, year, variables, rows, fetched_at) VALUES (?, ?, ?, ?, ?)`,
		stateFIPS, year, variablesKey(vars), string(data), time.Now().UTC(),
	)
	return eris.Wrapf(err, "cache: put raw %s/%d", stateFIPS, year)
}

// GetRaw returns the cached rows for a unit. ok is false when nothing is
// cached.
func (d *DB) GetRaw(ctx context.Context, stateFIPS string, year int, vars []string) ([]census.RawRow, bool, error) {
	var data string
	err := d.db.QueryRowContext(ctx,
		`SELECT rows FROM raw_stats WHERE state = ? AND year = ? AND variables = ?`,
		stateFIPS, year, variablesKey(vars),
	).Scan(&data)
	if err == sql.ErrNoRows {
		d.lookup("raw", false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "cache: get raw %s/%d", stateFIPS, year)
	}

	var rows []census.RawRow
	if err := json.Unmarshal([]byte(data), &rows); err != nil {
		return nil, false, eris.Wrap(err, "cache: unmarshal raw rows")
	}
	d.lookup("raw", true)
	return rows, true, nil
}

// DeleteRaw drops a cached unit so the next run downloads it again.
func (d *DB) DeleteRaw(ctx context.Context, stateFIPS string, year int, vars []string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM raw_stats WHERE state = ? AND year = ? AND variables = ?`,
		stateFIPS, year, variablesKey(vars),
	)
	return eris.Wrapf(err, "cache: delete raw %s/%d", stateFIPS, year)
}
