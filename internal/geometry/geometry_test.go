package geometry

import (
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func rect(x0, y0, x1, y1 float64) [][]geom.Coord {
	return [][]geom.Coord{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

func multi(t *testing.T, polys ...[][]geom.Coord) *geom.MultiPolygon {
	t.Helper()
	mp := geom.NewMultiPolygon(geom.XY)
	for _, rings := range polys {
		require.NoError(t, mp.Push(geom.NewPolygon(geom.XY).MustSetCoords(rings)))
	}
	return mp
}

func TestArea(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 4.0, Area(multi(t, rect(0, 0, 2, 2))), 1e-12)
	assert.Equal(t, 0.0, Area(nil))

	withHole := multi(t, [][]geom.Coord{
		rect(0, 0, 4, 4)[0],
		{{1, 1}, {1, 2}, {2, 2}, {2, 1}, {1, 1}},
	})
	assert.InDelta(t, 15.0, Area(withHole), 1e-12)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate(multi(t, rect(0, 0, 1, 1))))

	tests := []struct {
		name string
		mp   *geom.MultiPolygon
	}{
		{"nil", nil},
		{"empty", geom.NewMultiPolygon(geom.XY)},
		{"too few coords", geom.NewMultiPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 0, 0}, [][]int{{6}})},
		{"open ring", geom.NewMultiPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 1}, [][]int{{8}})},
		{"nan", multi(t, [][]geom.Coord{{{0, 0}, {math.NaN(), 0}, {1, 1}, {0, 1}, {0, 0}}})},
		{"zero area", multi(t, [][]geom.Coord{{{0, 0}, {1, 0}, {2, 0}, {0, 0}}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.mp)
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrInvalidGeometry))
		})
	}
}

func TestIntersectionArea(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b *geom.MultiPolygon
		want float64
	}{
		{"identical", multi(t, rect(0, 0, 2, 2)), multi(t, rect(0, 0, 2, 2)), 4},
		{"partial", multi(t, rect(0, 0, 2, 2)), multi(t, rect(1, 1, 3, 3)), 1},
		{"disjoint", multi(t, rect(0, 0, 1, 1)), multi(t, rect(5, 5, 6, 6)), 0},
		{"adjacent shares edge", multi(t, rect(0, 0, 1, 1)), multi(t, rect(1, 0, 2, 1)), 0},
		{"contained", multi(t, rect(0, 0, 4, 4)), multi(t, rect(1, 1, 2, 3)), 2},
		{"container", multi(t, rect(1, 1, 2, 3)), multi(t, rect(0, 0, 4, 4)), 2},
		{"split half on shared edges", multi(t, rect(0, 0, 2, 2)), multi(t, rect(0, 0, 1, 2)), 2},
		{"collinear partial edge", multi(t, rect(0, 0, 4, 1)), multi(t, rect(1, 0, 2, 3)), 1},
		{
			"hole excluded",
			multi(t, [][]geom.Coord{rect(0, 0, 4, 4)[0], {{1, 1}, {1, 3}, {3, 3}, {3, 1}, {1, 1}}}),
			multi(t, rect(0, 0, 2, 4)),
			8 - 2,
		},
		{
			"multipolygon parts",
			multi(t, rect(0, 0, 1, 1), rect(2, 0, 3, 1)),
			multi(t, rect(0.5, 0, 2.5, 1)),
			1,
		},
		{
			"clockwise shell",
			multi(t, [][]geom.Coord{{{0, 0}, {0, 2}, {2, 2}, {2, 0}, {0, 0}}}),
			multi(t, rect(1, 0, 3, 2)),
			2,
		},
		{
			"triangle",
			multi(t, [][]geom.Coord{{{0, 0}, {2, 0}, {0, 2}, {0, 0}}}),
			multi(t, rect(0, 0, 1, 1)),
			1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IntersectionArea(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)

			rev, err := IntersectionArea(tt.b, tt.a)
			require.NoError(t, err)
			assert.InDelta(t, got, rev, 1e-9)
		})
	}
}

func TestIntersectionArea_LonLatScale(t *testing.T) {
	t.Parallel()

	a := multi(t, rect(-86.50, 32.40, -86.48, 32.42))
	b := multi(t, rect(-86.49, 32.40, -86.47, 32.42))
	got, err := IntersectionArea(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 0.01*0.02, got, 1e-12)
}

func TestOverlap(t *testing.T) {
	t.Parallel()

	g10 := multi(t, rect(0, 0, 2, 2))
	g20 := multi(t, rect(0, 0, 1, 2))
	f, err := Overlap(g10, g20)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, f.To2020, 1e-12)
	assert.InDelta(t, 0.5, f.To2010, 1e-12)

	_, err = Overlap(geom.NewMultiPolygon(geom.XY), g20)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidGeometry))
}

func TestOverlap_SplitTractConserves(t *testing.T) {
	t.Parallel()

	g10 := multi(t, rect(0, 0, 3, 1))
	parts := []*geom.MultiPolygon{
		multi(t, rect(0, 0, 1, 1)),
		multi(t, rect(1, 0, 2.5, 1)),
		multi(t, rect(2.5, 0, 3, 1)),
	}
	var sum float64
	for _, g20 := range parts {
		f, err := Overlap(g10, g20)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, f.To2010, 0.0)
		assert.LessOrEqual(t, f.To2010, 1.0)
		sum += Round(f.To2010, 3)
	}
	assert.InDelta(t, 1.0, sum, 0.01)
}

func TestRound(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.333, Round(1.0/3, 3))
	assert.Equal(t, 0.67, Round(2.0/3, 2))
	assert.Equal(t, 70.0, Round(69.9999, 2))
}
