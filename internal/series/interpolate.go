package series

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tract-series/internal/crosswalk"
	"github.com/sells-group/tract-series/internal/geometry"
	"github.com/sells-group/tract-series/internal/tract"
)

// valuePrecision is the rounding applied when scaling by an edge fraction.
const valuePrecision = 2

// InterpolateStats counts what Interpolate did.
type InterpolateStats struct {
	// Unmapped sources had data but no crosswalk entry.
	Unmapped int
	// UnmappedStates are the state FIPS codes of unmapped sources, sorted.
	UnmappedStates []string
	// Normalized counts edge fractions above 1 that were divided by 100.
	Normalized int
}

// Interpolate moves pre-2020 series onto 2020 tracts. Each yearly value of
// a source tract is scaled by the fraction of every target it maps to,
// rounded to two decimals, and the contributions of all sources to a
// target year are summed. A source year that is absent contributes
// nothing. Fractions above 1 are treated as percentages. xw must map 2010
// tracts to 2020 tracts.
func Interpolate(collapsed []Record, xw *crosswalk.Map, vars []string) ([]Record, InterpolateStats, error) {
	var stats InterpolateStats
	if xw.Direction() != crosswalk.From2010 {
		return nil, stats, eris.Errorf("series: interpolate needs the %s crosswalk, got %s", crosswalk.From2010, xw.Direction())
	}

	acc := make(map[tract.ID]map[string]map[int]float64)
	unmappedStates := make(map[string]int)
	for _, rec := range collapsed {
		if !hasData(rec, vars) {
			continue
		}
		targets, ok := xw.Targets(rec.ID)
		if !ok {
			stats.Unmapped++
			unmappedStates[rec.ID.State()]++
			continue
		}
		for dst, frac := range targets {
			if frac > 1 {
				frac /= 100
				stats.Normalized++
			}
			for _, v := range vars {
				val := rec.Vars[v]
				if val.IsMissing() {
					continue
				}
				byVar, ok := acc[dst]
				if !ok {
					byVar = make(map[string]map[int]float64, len(vars))
					acc[dst] = byVar
				}
				years, ok := byVar[v]
				if !ok {
					years = make(map[int]float64, val.Len())
					byVar[v] = years
				}
				for _, y := range val.Years() {
					f, _ := val.Get(y)
					years[y] += geometry.Round(f*frac, valuePrecision)
				}
			}
		}
	}

	out := make([]Record, 0, len(acc))
	for id, byVar := range acc {
		rec := Record{ID: id, Vars: make(map[string]Value, len(vars))}
		for _, v := range vars {
			years := byVar[v]
			for y, f := range years {
				years[y] = geometry.Round(f, valuePrecision)
			}
			rec.Vars[v] = SeriesOf(years)
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b Record) int { return strings.Compare(string(a.ID), string(b.ID)) })

	log := zap.L().With(zap.String("component", "series.interpolate"))
	if stats.Normalized > 0 {
		log.Warn("crosswalk fractions above 1 treated as percentages; audit the crosswalk source",
			zap.Int("edges", stats.Normalized))
	}
	if stats.Unmapped > 0 {
		for st := range unmappedStates {
			stats.UnmappedStates = append(stats.UnmappedStates, st)
		}
		slices.Sort(stats.UnmappedStates)
		log.Warn("source tracts without crosswalk entry dropped; the crosswalk may not cover these states",
			zap.Int("tracts", stats.Unmapped),
			zap.Strings("states", stats.UnmappedStates))
	}
	log.Info("interpolated onto 2020 tracts", zap.Int("sources", len(collapsed)), zap.Int("targets", len(out)))
	return out, stats, nil
}

func hasData(rec Record, vars []string) bool {
	for _, v := range vars {
		if !rec.Vars[v].IsMissing() {
			return true
		}
	}
	return false
}
