package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// RunStatus is the state of a logged run.
type RunStatus string

// Run statuses.
const (
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunPartial  RunStatus = "partial"
	RunFailed   RunStatus = "failed"
)

// Run is one entry of the run log.
type Run struct {
	ID         string          `json:"id" yaml:"id"`
	Command    string          `json:"command" yaml:"command"`
	Status     RunStatus       `json:"status" yaml:"status"`
	Params     json.RawMessage `json:"params,omitempty" yaml:"-"`
	Failures   []string        `json:"failures,omitempty" yaml:"failures,omitempty"`
	StartedAt  time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// StartRun records the start of a command and returns its id.
func (d *DB) StartRun(ctx context.Context, command string, params any) (string, error) {
	id := uuid.New().String()
	data, err := json.Marshal(params)
	if err != nil {
		return "", eris.Wrap(err, "cache: marshal run params")
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, status, params, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, command, string(RunRunning), string(data), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "cache: insert run")
	}
	return id, nil
}

// FinishRun records the final status and the skipped units of a run.
func (d *DB) FinishRun(ctx context.Context, id string, status RunStatus, failures []string) error {
	var failuresJSON sql.NullString
	if len(failures) > 0 {
		data, err := json.Marshal(failures)
		if err != nil {
			return eris.Wrap(err, "cache: marshal failures")
		}
		failuresJSON = sql.NullString{String: string(data), Valid: true}
	}

	res, err := d.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, failures = ?, finished_at = ? WHERE id = ?`,
		string(status), failuresJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "cache: finish run %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "cache: rows affected")
	}
	if n == 0 {
		return eris.Errorf("cache: run not found: %s", id)
	}
	return nil
}

// LastRuns returns the n most recent runs, newest first.
func (d *DB) LastRuns(ctx context.Context, n int) ([]Run, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, command, status, params, failures, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, eris.Wrap(err, "cache: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			params   sql.NullString
			failures sql.NullString
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Command, &r.Status, &params, &failures, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "cache: scan run")
		}
		if params.Valid {
			r.Params = json.RawMessage(params.String)
		}
		if failures.Valid {
			if err := json.Unmarshal([]byte(failures.String), &r.Failures); err != nil {
				return nil, eris.Wrap(err, "cache: unmarshal failures")
			}
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "cache: list runs iterate")
}
