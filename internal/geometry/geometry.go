// Package geometry computes planar areas and overlap fractions between tract
// polygons.
//
// Coordinates are used as given (NAD83 longitude/latitude for TIGER
// products). Fractions are ratios of areas within a few kilometres of each
// other, so the scale distortion of the unprojected plane cancels out.
package geometry

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ErrInvalidGeometry marks a polygon the overlap engine cannot process.
var ErrInvalidGeometry = eris.New("geometry: invalid geometry")

// Area returns the planar area of mp. Holes are subtracted.
func Area(mp *geom.MultiPolygon) float64 {
	if mp == nil || mp.Empty() {
		return 0
	}
	return mp.Area()
}

// Validate checks that every ring is closed, has at least four coordinates,
// contains only finite values, and that the multipolygon has non-zero area.
func Validate(mp *geom.MultiPolygon) error {
	if mp == nil || mp.Empty() {
		return eris.Wrap(ErrInvalidGeometry, "empty multipolygon")
	}
	stride := mp.Stride()
	for i := range mp.NumPolygons() {
		p := mp.Polygon(i)
		for j := range p.NumLinearRings() {
			flat := p.LinearRing(j).FlatCoords()
			n := len(flat) / stride
			if n < 4 {
				return eris.Wrapf(ErrInvalidGeometry, "polygon %d ring %d has %d coordinates", i, j, n)
			}
			for _, v := range flat {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return eris.Wrapf(ErrInvalidGeometry, "polygon %d ring %d has non-finite coordinate", i, j)
				}
			}
			last := (n - 1) * stride
			if flat[0] != flat[last] || flat[1] != flat[last+1] {
				return eris.Wrapf(ErrInvalidGeometry, "polygon %d ring %d is not closed", i, j)
			}
		}
	}
	if Area(mp) <= 0 {
		return eris.Wrap(ErrInvalidGeometry, "zero area")
	}
	return nil
}

// Fractions are the two normalized overlaps of a 2010/2020 tract pair.
type Fractions struct {
	// To2020 is area(g10 ∩ g20) / area(g20).
	To2020 float64
	// To2010 is area(g10 ∩ g20) / area(g10).
	To2010 float64
}

// Overlap computes both fractions for a 2010 and 2020 tract pair. Results
// are clamped to [0, 1].
func Overlap(g10, g20 *geom.MultiPolygon) (Fractions, error) {
	if err := Validate(g10); err != nil {
		return Fractions{}, eris.Wrap(err, "geometry: 2010 tract")
	}
	if err := Validate(g20); err != nil {
		return Fractions{}, eris.Wrap(err, "geometry: 2020 tract")
	}
	inter, err := IntersectionArea(g10, g20)
	if err != nil {
		return Fractions{}, err
	}
	return Fractions{
		To2020: clamp01(inter / Area(g20)),
		To2010: clamp01(inter / Area(g10)),
	}, nil
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
