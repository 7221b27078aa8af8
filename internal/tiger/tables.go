// Package tiger downloads Census TIGER/Line tract shapefiles and turns them
// into tract polygons keyed by GEOID.
package tiger

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// DefaultBaseURL is the TIGER/Line root on www2.census.gov.
const DefaultBaseURL = "https://www2.census.gov/geo/tiger"

// Vintage is a decennial tract definition year.
type Vintage int

// Supported vintages.
const (
	V2010 Vintage = 2010
	V2020 Vintage = 2020
)

// Vintages lists the supported vintages in ascending order.
var Vintages = []Vintage{V2010, V2020}

// Product describes the per-state tract shapefile of one vintage.
type Product struct {
	Vintage Vintage
	// Path is the URL path below the base, with %s for the state FIPS.
	Path string
	// Suffix is appended to attribute column names ("10" for 2010 files).
	Suffix string
}

var products = map[Vintage]Product{
	V2010: {Vintage: V2010, Path: "TIGER2010/TRACT/2010/tl_2010_%s_tract10.zip", Suffix: "10"},
	V2020: {Vintage: V2020, Path: "TIGER2020/TRACT/tl_2020_%s_tract.zip"},
}

// TractProduct returns the tract product for a vintage.
func TractProduct(v Vintage) (Product, error) {
	p, ok := products[v]
	if !ok {
		return Product{}, eris.Errorf("tiger: unsupported vintage %d", v)
	}
	return p, nil
}

// URL builds the download URL for a state.
func (p Product) URL(baseURL, stateFIPS string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return baseURL + "/" + fmt.Sprintf(p.Path, stateFIPS)
}

// Column returns the vintage-specific name of an attribute column, e.g.
// GEOID10 for GEOID in 2010 files.
func (p Product) Column(base string) string {
	return base + p.Suffix
}
