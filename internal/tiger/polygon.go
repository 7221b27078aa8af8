package tiger

import (
	"sort"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/tract-series/internal/geometry"
)

// ShapeToMultiPolygon converts a shapefile polygon record into a
// multipolygon. Shapefiles store shells clockwise and holes
// counter-clockwise; each hole is attached to the smallest shell that
// contains it. A hole with no containing shell is kept as a shell. Records
// that cannot form a polygon yield geometry.ErrInvalidGeometry.
func ShapeToMultiPolygon(p *shp.Polygon) (*geom.MultiPolygon, error) {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil, eris.Wrap(geometry.ErrInvalidGeometry, "tiger: empty polygon")
	}

	var shells, holes []ringInfo
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || start >= end {
			return nil, eris.Wrapf(geometry.ErrInvalidGeometry, "tiger: bad part bounds %d..%d", start, end)
		}

		flat := make([]float64, 0, (end-start+1)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		n := len(flat)
		if flat[0] != flat[n-2] || flat[1] != flat[n-1] {
			flat = append(flat, flat[0], flat[1])
		}
		if len(flat) < 8 {
			continue
		}

		r := ringInfo{flat: flat, area: shoelace(flat)}
		switch {
		case r.area < 0:
			r.area = -r.area
			shells = append(shells, r)
		case r.area > 0:
			holes = append(holes, r)
		}
	}

	// Smallest shells first so a hole lands in its innermost container.
	sort.SliceStable(shells, func(i, j int) bool { return shells[i].area < shells[j].area })

	owned := make([][]ringInfo, len(shells))
	for _, h := range holes {
		placed := false
		for si := range shells {
			if ringContains(shells[si].flat, h.flat[0], h.flat[1]) {
				owned[si] = append(owned[si], h)
				placed = true
				break
			}
		}
		if !placed {
			shells = append(shells, h)
			owned = append(owned, nil)
		}
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for si, s := range shells {
		flat := append([]float64(nil), s.flat...)
		ends := []int{len(flat)}
		for _, h := range owned[si] {
			flat = append(flat, h.flat...)
			ends = append(ends, len(flat))
		}
		if err := mp.Push(geom.NewPolygonFlat(geom.XY, flat, ends)); err != nil {
			return nil, eris.Wrap(err, "tiger: build polygon")
		}
	}
	if mp.NumPolygons() == 0 {
		return nil, eris.Wrap(geometry.ErrInvalidGeometry, "tiger: polygon has no rings with area")
	}
	return mp, nil
}

type ringInfo struct {
	flat []float64
	area float64
}

// shoelace returns the signed area of a closed flat XY ring; clockwise rings
// are negative.
func shoelace(flat []float64) float64 {
	var sum float64
	for i := 0; i+3 < len(flat); i += 2 {
		sum += flat[i]*flat[i+3] - flat[i+2]*flat[i+1]
	}
	return sum / 2
}

func ringContains(flat []float64, x, y float64) bool {
	in := false
	for i := 0; i+3 < len(flat); i += 2 {
		x1, y1, x2, y2 := flat[i], flat[i+1], flat[i+2], flat[i+3]
		if (y1 > y) == (y2 > y) {
			continue
		}
		if x < x1+(y-y1)*(x2-x1)/(y2-y1) {
			in = !in
		}
	}
	return in
}

