package series

import (
	"bufio"
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/tract-series/internal/fsutil"
)

// DefaultSentinel replaces missing values in the output.
const DefaultSentinel = "NaN"

// WriteOptions control GeoJSON output.
type WriteOptions struct {
	Variables []string
	// Years lists every year of the run. Series are written with one key
	// per year, the sentinel standing in for years without a value.
	Years    []int
	Sentinel string
}

// WriteGeoJSON writes features as a FeatureCollection to path, replacing
// the file only once it is complete.
func WriteGeoJSON(fs afero.Fs, path string, features []Feature, opts WriteOptions) error {
	err := fsutil.WriteAtomic(fs, path, func(w io.Writer) error {
		return EncodeGeoJSON(w, features, opts)
	})
	return eris.Wrapf(err, "series: write %s", path)
}

// EncodeGeoJSON streams features as a FeatureCollection.
func EncodeGeoJSON(w io.Writer, features []Feature, opts WriteOptions) error {
	if opts.Sentinel == "" {
		opts.Sentinel = DefaultSentinel
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(`{"type":"FeatureCollection","features":[`); err != nil {
		return eris.Wrap(err, "series: write header")
	}
	for i, f := range features {
		if i > 0 {
			if err := bw.WriteByte(','); err != nil {
				return eris.Wrap(err, "series: write separator")
			}
		}
		data, err := json.Marshal(toGeoJSON(f, opts))
		if err != nil {
			return eris.Wrapf(err, "series: encode feature %s", f.ID)
		}
		if _, err := bw.Write(data); err != nil {
			return eris.Wrap(err, "series: write feature")
		}
	}
	if _, err := bw.WriteString("]}\n"); err != nil {
		return eris.Wrap(err, "series: write footer")
	}
	return eris.Wrap(bw.Flush(), "series: flush")
}

func toGeoJSON(f Feature, opts WriteOptions) *geojson.Feature {
	props := map[string]any{
		"GEOID":       string(f.ID),
		"state_fips":  f.Meta.StateFIPS,
		"state_name":  f.Meta.StateName,
		"state_usps":  f.Meta.StateUSPS,
		"county_fips": f.Meta.CountyFIPS,
		"county_name": f.Meta.CountyName,
		"tract_fips":  f.Meta.TractFIPS,
		"tract_dec":   f.Meta.TractDec,
		"ALAND":       f.Attrs.ALand,
		"AWATER":      f.Attrs.AWater,
		"INTPTLAT":    f.Attrs.IntPtLat,
		"INTPTLON":    f.Attrs.IntPtLon,
	}
	for _, v := range opts.Variables {
		props[v] = seriesProperty(f.Vars[v], opts)
	}
	return &geojson.Feature{ID: string(f.ID), Geometry: f.Geom, Properties: props}
}

func seriesProperty(v Value, opts WriteOptions) any {
	if v.IsMissing() {
		return opts.Sentinel
	}
	years := opts.Years
	if len(years) == 0 {
		years = v.Years()
	}
	out := make(map[string]any, len(years))
	for _, y := range years {
		if f, ok := v.Get(y); ok {
			out[strconv.Itoa(y)] = f
		} else {
			out[strconv.Itoa(y)] = opts.Sentinel
		}
	}
	// Years outside the run range are kept.
	for _, y := range v.Years() {
		if _, ok := out[strconv.Itoa(y)]; !ok {
			f, _ := v.Get(y)
			out[strconv.Itoa(y)] = f
		}
	}
	return out
}
