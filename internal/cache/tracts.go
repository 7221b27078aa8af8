package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/sells-group/tract-series/internal/tiger"
	"github.com/sells-group/tract-series/internal/tract"
)

// PutTracts replaces the cached tracts of a (vintage, state) with tracts.
// Geometries are stored as little-endian WKB.
func (d *DB) PutTracts(ctx context.Context, vintage tiger.Vintage, stateFIPS string, tracts []tiger.Tract) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "cache: begin tracts tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM tracts WHERE vintage = ? AND state = ?`, int(vintage), stateFIPS); err != nil {
		return eris.Wrap(err, "cache: clear tracts")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tracts (vintage, state, geoid, attrs, geom) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "cache: prepare tract insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, t := range tracts {
		attrs, err := json.Marshal(t.Attrs)
		if err != nil {
			return eris.Wrapf(err, "cache: marshal attrs %s", t.ID)
		}
		g, err := wkb.Marshal(t.Geom, wkb.NDR)
		if err != nil {
			return eris.Wrapf(err, "cache: encode wkb %s", t.ID)
		}
		if _, err := stmt.ExecContext(ctx, int(vintage), stateFIPS, string(t.ID), string(attrs), g); err != nil {
			return eris.Wrapf(err, "cache: insert tract %s", t.ID)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO tract_sets (vintage, state, count, cached_at) VALUES (?, ?, ?, ?)`,
		int(vintage), stateFIPS, len(tracts), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "cache: record tract set")
	}
	return eris.Wrap(tx.Commit(), "cache: commit tracts")
}

// GetTracts implements tiger.Cache. ok is false when the (vintage, state)
// was never cached; a cached state with zero tracts is a hit.
func (d *DB) GetTracts(ctx context.Context, vintage tiger.Vintage, stateFIPS string) ([]tiger.Tract, bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT count FROM tract_sets WHERE vintage = ? AND state = ?`, int(vintage), stateFIPS,
	).Scan(&count)
	if err == sql.ErrNoRows {
		d.lookup("tracts", false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "cache: get tract set")
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT geoid, attrs, geom FROM tracts WHERE vintage = ? AND state = ? ORDER BY geoid`,
		int(vintage), stateFIPS,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "cache: query tracts")
	}
	defer rows.Close() //nolint:errcheck

	tracts := make([]tiger.Tract, 0, count)
	for rows.Next() {
		var (
			geoid, attrs string
			blob         []byte
		)
		if err := rows.Scan(&geoid, &attrs, &blob); err != nil {
			return nil, false, eris.Wrap(err, "cache: scan tract")
		}
		t, err := decodeTract(vintage, geoid, attrs, blob)
		if err != nil {
			return nil, false, err
		}
		tracts = append(tracts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, false, eris.Wrap(err, "cache: iterate tracts")
	}
	if len(tracts) != count {
		// Partial set; treat as a miss so the caller downloads again.
		d.lookup("tracts", false)
		return nil, false, nil
	}
	d.lookup("tracts", true)
	return tracts, true, nil
}

func decodeTract(vintage tiger.Vintage, geoid, attrs string, blob []byte) (tiger.Tract, error) {
	id, err := tract.ParseID(geoid)
	if err != nil {
		return tiger.Tract{}, eris.Wrap(err, "cache: tract id")
	}
	t := tiger.Tract{ID: id, Vintage: vintage}
	if err := json.Unmarshal([]byte(attrs), &t.Attrs); err != nil {
		return tiger.Tract{}, eris.Wrapf(err, "cache: unmarshal attrs %s", id)
	}
	g, err := wkb.Unmarshal(blob)
	if err != nil {
		return tiger.Tract{}, eris.Wrapf(err, "cache: decode wkb %s", id)
	}
	mp, ok := g.(*geom.MultiPolygon)
	if !ok {
		return tiger.Tract{}, eris.Errorf("cache: tract %s geometry is %T, want multipolygon", id, g)
	}
	t.Geom = mp
	return t, nil
}
