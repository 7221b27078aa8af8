package tiger

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

type testTract struct {
	geoid string
	parts [][]shp.Point
	// partIndex replaces the part offsets written for the record.
	partIndex []int32
}

// cwSquare is a clockwise (shell) square ring.
func cwSquare(x0, y0, size float64) []shp.Point {
	return []shp.Point{{X: x0, Y: y0}, {X: x0, Y: y0 + size}, {X: x0 + size, Y: y0 + size}, {X: x0 + size, Y: y0}, {X: x0, Y: y0}}
}

// ccwSquare is a counter-clockwise (hole) square ring.
func ccwSquare(x0, y0, size float64) []shp.Point {
	return []shp.Point{{X: x0, Y: y0}, {X: x0 + size, Y: y0}, {X: x0 + size, Y: y0 + size}, {X: x0, Y: y0 + size}, {X: x0, Y: y0}}
}

// writeTractShapefile writes a tract shapefile with the product's column
// naming and returns the .shp path.
func writeTractShapefile(t *testing.T, dir string, product Product, tracts []testTract) string {
	t.Helper()
	path := filepath.Join(dir, "tracts.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField(product.Column("STATEFP"), 2),
		shp.StringField(product.Column("COUNTYFP"), 3),
		shp.StringField(product.Column("TRACTCE"), 6),
		shp.StringField(product.Column("GEOID"), 11),
		shp.StringField(product.Column("NAME"), 7),
		shp.NumberField(product.Column("ALAND"), 14),
		shp.NumberField(product.Column("AWATER"), 14),
		shp.StringField(product.Column("INTPTLAT"), 11),
		shp.StringField(product.Column("INTPTLON"), 12),
	}))

	for _, tr := range tracts {
		poly := shp.Polygon(*shp.NewPolyLine(tr.parts))
		if tr.partIndex != nil {
			poly.Parts = tr.partIndex
			poly.NumParts = int32(len(tr.partIndex))
		}
		row := int(w.Write(&poly))
		values := []any{tr.geoid[:2], tr.geoid[2:5], tr.geoid[5:], tr.geoid, "201", 1000, 10, "+32.4", "-086.5"}
		for i, v := range values {
			require.NoError(t, w.WriteAttribute(row, i, v))
		}
	}
	w.Close()
	return path
}

// zipDir packs every file in dir into a ZIP archive and returns its bytes.
func zipDir(t *testing.T, dir string) []byte {
	t.Helper()
	out := filepath.Join(t.TempDir(), "out.zip")
	f, err := os.Create(out)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		fw, err := zw.Create(e.Name())
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	return data
}
