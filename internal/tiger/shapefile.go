package tiger

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/tract-series/internal/tract"
)

// Attrs are the tract attributes carried into the final output.
type Attrs struct {
	StateFP  string  `json:"statefp"`
	CountyFP string  `json:"countyfp"`
	TractCE  string  `json:"tractce"`
	Name     string  `json:"name"`
	ALand    int64   `json:"aland"`
	AWater   int64   `json:"awater"`
	IntPtLat float64 `json:"intptlat"`
	IntPtLon float64 `json:"intptlon"`
}

// Tract is one tract polygon of a vintage.
type Tract struct {
	ID      tract.ID
	Vintage Vintage
	Attrs   Attrs
	Geom    *geom.MultiPolygon
}

// ReadTracts reads a tract shapefile of the product's vintage. The GEOID
// column differs by vintage (GEOID10 vs GEOID); records are keyed by the
// normalized 11-digit TractID either way. Records without a usable id or
// with a non-polygon shape are skipped; a polygon record that cannot be
// converted fails the read with geometry.ErrInvalidGeometry.
func ReadTracts(shpPath string, product Product) ([]Tract, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToUpper(name)] = i
	}
	get := func(base string) string {
		idx, ok := fieldIdx[product.Column(base)]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	log := zap.L().With(zap.String("component", "tiger.shapefile"), zap.Int("vintage", int(product.Vintage)))

	var tracts []Tract
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		attrs := Attrs{
			StateFP:  get("STATEFP"),
			CountyFP: get("COUNTYFP"),
			TractCE:  get("TRACTCE"),
			Name:     get("NAME"),
			ALand:    parseInt(get("ALAND")),
			AWater:   parseInt(get("AWATER")),
			IntPtLat: parseFloat(get("INTPTLAT")),
			IntPtLon: parseFloat(get("INTPTLON")),
		}

		id, idErr := tract.ParseID(get("GEOID"))
		if idErr != nil {
			id, idErr = tract.NewID(attrs.StateFP, attrs.CountyFP, attrs.TractCE)
		}
		if idErr != nil {
			skipped++
			log.Debug("skipping record without tract id", zap.Error(idErr))
			continue
		}

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			log.Debug("skipping non-polygon record", zap.String("geoid", id.String()))
			continue
		}
		mp, err := ShapeToMultiPolygon(poly)
		if err != nil {
			return nil, eris.Wrapf(err, "tiger: tract %s in %s", id, shpPath)
		}

		tracts = append(tracts, Tract{ID: id, Vintage: product.Vintage, Attrs: attrs, Geom: mp})
	}

	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "tiger: read shapefile %s", shpPath)
	}
	if skipped > 0 {
		log.Warn("skipped shapefile records", zap.Int("skipped", skipped), zap.Int("read", len(tracts)))
	}
	return tracts, nil
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimLeft(s, "+"), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return v
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
