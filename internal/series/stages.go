package series

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tract-series/internal/tract"
	"github.com/sells-group/tract-series/pkg/census"
)

// Boundary is the first year reported against 2020 tract boundaries.
const Boundary = 2020

// Meta is the descriptive metadata carried with a tract.
type Meta struct {
	StateFIPS  string
	StateName  string
	StateUSPS  string
	CountyFIPS string
	CountyName string
	TractFIPS  string
	TractDec   string
}

// Row is one long-format observation: a tract in one year. A nil value is
// missing.
type Row struct {
	ID     tract.ID
	Year   int
	Meta   Meta
	Values map[string]*float64
}

// Column is one (variable, year) cell of a wide row.
type Column struct {
	Variable string
	Year     int
}

// WideRow is one tract with a cell per observed (variable, year). Absent
// cells are missing.
type WideRow struct {
	ID    tract.ID
	Meta  Meta
	Cells map[Column]float64
}

// Record is one tract with a time series per variable.
type Record struct {
	ID   tract.ID
	Meta Meta
	Vars map[string]Value
}

// Ingest normalizes the raw rows of one state and year. FIPS components are
// standardized into a TractID; negative values, which the API uses as
// not-available placeholders, become missing.
func Ingest(raw []census.RawRow, vars []string, year int, st tract.State) ([]Row, error) {
	rows := make([]Row, 0, len(raw))
	negatives := 0
	for _, r := range raw {
		id, err := tract.NewID(r.State, r.County, r.Tract)
		if err != nil {
			return nil, eris.Wrapf(err, "series: ingest %s %d row %q", st.USPS, year, r.Name)
		}
		names := census.ParseName(r.Name)
		row := Row{
			ID:   id,
			Year: year,
			Meta: Meta{
				StateFIPS:  id.State(),
				StateName:  names.State,
				StateUSPS:  st.USPS,
				CountyFIPS: id.County(),
				CountyName: names.County,
				TractFIPS:  id.Tract(),
				TractDec:   names.TractDec,
			},
			Values: make(map[string]*float64, len(vars)),
		}
		if row.Meta.StateName == "" {
			row.Meta.StateName = st.Name
		}
		for _, v := range vars {
			p := r.Values[v]
			if p != nil && (*p < 0 || math.IsNaN(*p)) {
				negatives++
				p = nil
			}
			row.Values[v] = p
		}
		rows = append(rows, row)
	}
	if negatives > 0 {
		zap.L().Debug("negative placeholder values replaced with missing",
			zap.String("component", "series.ingest"),
			zap.String("state", st.USPS),
			zap.Int("year", year),
			zap.Int("values", negatives),
		)
	}
	return rows, nil
}

// Dedupe drops rows identical to an earlier row, keeping input order.
func Dedupe(rows []Row) []Row {
	seen := make(map[string]struct{}, len(rows))
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		k := rowKey(r)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func rowKey(r Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d|%v", r.ID, r.Year, r.Meta)
	names := make([]string, 0, len(r.Values))
	for name := range r.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := r.Values[name]; p != nil {
			fmt.Fprintf(&b, "|%s=%v", name, *p)
		} else {
			fmt.Fprintf(&b, "|%s=", name)
		}
	}
	return b.String()
}

// Widen pivots long rows into one row per tract with a cell per (variable,
// year). Metadata is taken from the latest year. When two rows disagree on
// a cell the first one wins.
func Widen(rows []Row) []WideRow {
	byID := make(map[tract.ID]*WideRow)
	latest := make(map[tract.ID]int)
	conflicts := 0

	for _, r := range rows {
		w, ok := byID[r.ID]
		if !ok {
			w = &WideRow{ID: r.ID, Cells: make(map[Column]float64)}
			byID[r.ID] = w
		}
		if !ok || r.Year > latest[r.ID] {
			w.Meta = r.Meta
			latest[r.ID] = r.Year
		}
		for name, p := range r.Values {
			if p == nil {
				continue
			}
			col := Column{Variable: name, Year: r.Year}
			if _, exists := w.Cells[col]; exists {
				conflicts++
				continue
			}
			w.Cells[col] = *p
		}
	}
	if conflicts > 0 {
		zap.L().Warn("conflicting rows for the same tract and year; kept first",
			zap.String("component", "series.widen"),
			zap.Int("cells", conflicts),
		)
	}

	out := make([]WideRow, 0, len(byID))
	for _, w := range byID {
		out = append(out, *w)
	}
	slices.SortFunc(out, func(a, b WideRow) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out
}

// Partition splits wide rows into the cells reported against 2010
// boundaries (years before Boundary) and the native 2020 cells. Every tract
// appears in both outputs, possibly with no cells.
func Partition(wide []WideRow) (pre, native []WideRow) {
	pre = make([]WideRow, 0, len(wide))
	native = make([]WideRow, 0, len(wide))
	for _, w := range wide {
		p := WideRow{ID: w.ID, Meta: w.Meta, Cells: make(map[Column]float64)}
		n := WideRow{ID: w.ID, Meta: w.Meta, Cells: make(map[Column]float64)}
		for col, f := range w.Cells {
			if col.Year >= Boundary {
				n.Cells[col] = f
			} else {
				p.Cells[col] = f
			}
		}
		pre = append(pre, p)
		native = append(native, n)
	}
	return pre, native
}

// Collapse folds the per-year cells of each variable into one Value. A
// variable with no observed year collapses to Missing.
func Collapse(wide []WideRow, vars []string) []Record {
	out := make([]Record, 0, len(wide))
	for _, w := range wide {
		rec := Record{ID: w.ID, Meta: w.Meta, Vars: make(map[string]Value, len(vars))}
		for _, v := range vars {
			years := make(map[int]float64)
			for col, f := range w.Cells {
				if col.Variable == v {
					years[col.Year] = f
				}
			}
			rec.Vars[v] = SeriesOf(years)
		}
		out = append(out, rec)
	}
	return out
}
