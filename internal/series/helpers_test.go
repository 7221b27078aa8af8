package series

import (
	"github.com/twpayne/go-geom"

	"github.com/sells-group/tract-series/internal/tiger"
	"github.com/sells-group/tract-series/internal/tract"
	"github.com/sells-group/tract-series/pkg/census"
)

var (
	alabama = tract.State{Name: "Alabama", FIPS: "01", USPS: "AL"}
	georgia = tract.State{Name: "Georgia", FIPS: "13", USPS: "GA"}
)

func f64(v float64) *float64 { return &v }

func rawRow(county, tractCode, tractDec string, values map[string]*float64) census.RawRow {
	return census.RawRow{
		Name:   "Census Tract " + tractDec + ", Autauga County, Alabama",
		State:  "1",
		County: county,
		Tract:  tractCode,
		Values: values,
	}
}

func box(x0, y0, x1, y1 float64) *geom.MultiPolygon {
	mp := geom.NewMultiPolygon(geom.XY)
	_ = mp.Push(geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}))
	return mp
}

func polygon(id tract.ID, name string) tiger.Tract {
	return tiger.Tract{
		ID:      id,
		Vintage: tiger.V2020,
		Attrs: tiger.Attrs{
			StateFP: id.State(), CountyFP: id.County(), TractCE: id.Tract(),
			Name: name, ALand: 1000, AWater: 10, IntPtLat: 32.5, IntPtLon: -86.5,
		},
		Geom: box(0, 0, 1, 1),
	}
}
