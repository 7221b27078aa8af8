// Package crosswalk builds, serializes and stores the areal crosswalks
// between 2010 and 2020 census tracts.
package crosswalk

import (
	"fmt"

	"github.com/sells-group/tract-series/internal/tiger"
)

// Direction selects one of the two crosswalk artifacts.
type Direction int

// Supported directions.
const (
	From2010 Direction = iota // 2010 source tracts to 2020 targets
	From2020                  // 2020 source tracts to 2010 targets
)

// Directions lists both directions in artifact order.
var Directions = []Direction{From2010, From2020}

// Source is the vintage of the map's keys.
func (d Direction) Source() tiger.Vintage {
	if d == From2020 {
		return tiger.V2020
	}
	return tiger.V2010
}

// Target is the vintage of the map's values.
func (d Direction) Target() tiger.Vintage {
	if d == From2020 {
		return tiger.V2010
	}
	return tiger.V2020
}

func (d Direction) String() string {
	return fmt.Sprintf("%d-to-%d", d.Source(), d.Target())
}

// SourceKey is the record field holding the source TractID, e.g. GEOID_TRACT_10.
func (d Direction) SourceKey() string {
	return "GEOID_TRACT_" + suffix(d.Source())
}

// OverlapKey is the record field holding the target fractions, e.g.
// GEOID_TRACT_20_overlap.
func (d Direction) OverlapKey() string {
	return "GEOID_TRACT_" + suffix(d.Target()) + "_overlap"
}

// FileName is the artifact name. The rounding precision is part of the
// name: artifacts built at different precisions are not interchangeable.
func (d Direction) FileName(precision int) string {
	return fmt.Sprintf("convert-ctracts_pct-area_%s_p%d.json", d, precision)
}

func suffix(v tiger.Vintage) string {
	return fmt.Sprintf("%02d", int(v)%100)
}
