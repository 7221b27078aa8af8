// Package series reshapes raw per-year tract statistics into nested time
// series on 2020 tract boundaries.
package series

import (
	"maps"
	"slices"
)

// Value is a per-variable time series for one tract. The zero Value is
// Missing: no year was observed.
type Value struct {
	years map[int]float64
}

// Missing returns the explicit no-data value.
func Missing() Value { return Value{} }

// SeriesOf returns a Value holding a copy of years. An empty map yields
// Missing.
func SeriesOf(years map[int]float64) Value {
	if len(years) == 0 {
		return Missing()
	}
	return Value{years: maps.Clone(years)}
}

// IsMissing reports whether no year has a value.
func (v Value) IsMissing() bool { return len(v.years) == 0 }

// Get returns the value of a year.
func (v Value) Get(year int) (float64, bool) {
	f, ok := v.years[year]
	return f, ok
}

// Years returns the observed years in ascending order.
func (v Value) Years() []int {
	return slices.Sorted(maps.Keys(v.years))
}

// Len is the number of observed years.
func (v Value) Len() int { return len(v.years) }

// With returns a copy of v with year set.
func (v Value) With(year int, f float64) Value {
	years := maps.Clone(v.years)
	if years == nil {
		years = make(map[int]float64, 1)
	}
	years[year] = f
	return Value{years: years}
}
