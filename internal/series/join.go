package series

import (
	"slices"
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/tract-series/internal/tiger"
	"github.com/sells-group/tract-series/internal/tract"
)

// Rejoin merges native 2020 cells into the interpolated records, inserting
// each 2020 year unscaled. Tracts with only native data are added. Native
// metadata replaces the empty metadata of interpolated records.
func Rejoin(interpolated []Record, native []WideRow, vars []string) []Record {
	byID := make(map[tract.ID]Record, len(interpolated)+len(native))
	for _, r := range interpolated {
		byID[r.ID] = r
	}

	for _, w := range native {
		rec, ok := byID[w.ID]
		if !ok {
			if len(w.Cells) == 0 {
				continue
			}
			rec = Record{ID: w.ID, Vars: make(map[string]Value, len(vars))}
		}
		rec.Meta = w.Meta
		for col, f := range w.Cells {
			if slices.Contains(vars, col.Variable) {
				rec.Vars[col.Variable] = rec.Vars[col.Variable].With(col.Year, f)
			}
		}
		byID[w.ID] = rec
	}

	out := make([]Record, 0, len(byID))
	for _, rec := range byID {
		for _, v := range vars {
			if _, ok := rec.Vars[v]; !ok {
				rec.Vars[v] = Missing()
			}
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b Record) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out
}

// Feature is a final output record: a 2020 tract with its polygon.
type Feature struct {
	Record
	Attrs tiger.Attrs
	Geom  *geom.MultiPolygon
}

// JoinGeometry attaches 2020 polygons. Every polygon of a selected state
// yields a feature; tracts without statistics get Missing for every
// variable. Records without a polygon or outside the selection are
// dropped, and their count returned.
func JoinGeometry(records []Record, geoms map[tract.ID]tiger.Tract, states []tract.State, vars []string) ([]Feature, int) {
	selected := tract.FIPSSet(states)
	byID := make(map[tract.ID]Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	features := make([]Feature, 0, len(geoms))
	for id, g := range geoms {
		if !selected[id.State()] {
			continue
		}
		rec, ok := byID[id]
		if !ok {
			rec = Record{ID: id, Vars: make(map[string]Value, len(vars))}
			for _, v := range vars {
				rec.Vars[v] = Missing()
			}
		}
		delete(byID, id)
		rec.Meta = mergeMeta(rec.Meta, id, g.Attrs)
		features = append(features, Feature{Record: rec, Attrs: g.Attrs, Geom: g.Geom})
	}
	slices.SortFunc(features, func(a, b Feature) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return features, len(byID)
}

// mergeMeta fills metadata missing from the statistics with the polygon's
// attributes and the state registry.
func mergeMeta(m Meta, id tract.ID, attrs tiger.Attrs) Meta {
	m.StateFIPS = id.State()
	m.CountyFIPS = id.County()
	m.TractFIPS = id.Tract()
	if m.TractDec == "" {
		m.TractDec = attrs.Name
	}
	if st, ok := tract.StateByFIPS(id.State()); ok {
		if m.StateName == "" {
			m.StateName = st.Name
		}
		m.StateUSPS = st.USPS
	}
	return m
}

// fillCountyNames sets missing county names from any ingested row of the
// same county.
func fillCountyNames(features []Feature, rows []Row) {
	names := make(map[string]string)
	for _, r := range rows {
		if r.Meta.CountyName != "" {
			names[r.Meta.StateFIPS+r.Meta.CountyFIPS] = r.Meta.CountyName
		}
	}
	for i := range features {
		if features[i].Meta.CountyName == "" {
			features[i].Meta.CountyName = names[features[i].Meta.StateFIPS+features[i].Meta.CountyFIPS]
		}
	}
}
