package geometry

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

const (
	// parallelTol is the sine of the largest angle treated as parallel.
	parallelTol = 1e-12
	// paramTol widens segment parameter ranges to catch touching endpoints.
	paramTol = 1e-9
)

type point struct{ x, y float64 }

type segment struct {
	a, b                   point
	minX, minY, maxX, maxY float64
}

func newSegment(a, b point) segment {
	return segment{
		a: a, b: b,
		minX: math.Min(a.x, b.x), maxX: math.Max(a.x, b.x),
		minY: math.Min(a.y, b.y), maxY: math.Max(a.y, b.y),
	}
}

// shape is a multipolygon flattened into oriented boundary segments:
// shells counter-clockwise and holes clockwise, so the interior is always
// on the left.
type shape struct {
	segs   []segment
	bounds *geom.Bounds
	eps    float64
}

// prepare shifts coordinates by origin to keep shoelace terms small.
func prepare(mp *geom.MultiPolygon, origin point, eps float64) shape {
	b := mp.Bounds()
	s := shape{
		bounds: geom.NewBounds(geom.XY).Set(b.Min(0)-origin.x, b.Min(1)-origin.y, b.Max(0)-origin.x, b.Max(1)-origin.y),
		eps:    eps,
	}
	stride := mp.Stride()
	for i := range mp.NumPolygons() {
		p := mp.Polygon(i)
		for j := range p.NumLinearRings() {
			flat := p.LinearRing(j).FlatCoords()
			pts := make([]point, 0, len(flat)/stride)
			for k := 0; k+1 < len(flat); k += stride {
				pts = append(pts, point{flat[k] - origin.x, flat[k+1] - origin.y})
			}
			ccw := signedArea(pts) > 0
			if (j == 0) != ccw {
				reverse(pts)
			}
			for k := 0; k+1 < len(pts); k++ {
				if pts[k] == pts[k+1] {
					continue
				}
				s.segs = append(s.segs, newSegment(pts[k], pts[k+1]))
			}
		}
	}
	return s
}

func signedArea(pts []point) float64 {
	var sum float64
	for k := 0; k+1 < len(pts); k++ {
		sum += pts[k].x*pts[k+1].y - pts[k+1].x*pts[k].y
	}
	return sum / 2
}

func reverse(pts []point) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}

// IntersectionArea returns area(a ∩ b).
//
// The boundary of the intersection is made of the pieces of a's boundary
// inside b, the pieces of b's boundary inside a, and the boundary shared by
// both with the same orientation. Summing the shoelace term over those
// pieces gives the area without constructing the intersection polygon.
func IntersectionArea(a, b *geom.MultiPolygon) (float64, error) {
	if a == nil || b == nil || a.Empty() || b.Empty() {
		return 0, nil
	}
	ab, bb := a.Bounds(), b.Bounds()
	if !ab.Overlaps(geom.XY, bb) {
		return 0, nil
	}

	span := math.Max(
		math.Max(ab.Max(0)-ab.Min(0), ab.Max(1)-ab.Min(1)),
		math.Max(bb.Max(0)-bb.Min(0), bb.Max(1)-bb.Min(1)),
	)
	eps := span * 1e-10
	if eps == 0 {
		return 0, nil
	}

	origin := point{math.Max(ab.Min(0), bb.Min(0)), math.Max(ab.Min(1), bb.Min(1))}
	sa, sb := prepare(a, origin, eps), prepare(b, origin, eps)
	total := boundaryContribution(sa, sb, true) + boundaryContribution(sb, sa, false)

	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, eris.Wrap(ErrInvalidGeometry, "geometry: intersection area not finite")
	}
	if total < -span*span*1e-9 {
		return 0, eris.Wrapf(ErrInvalidGeometry, "geometry: negative intersection area %g", total)
	}
	area := math.Max(total, 0)
	if limit := math.Min(Area(a), Area(b)); area > limit {
		area = limit
	}
	return area, nil
}

// boundaryContribution sums the shoelace terms of own's boundary pieces that
// lie inside other. Pieces running along other's boundary in the same
// direction are counted only when keepShared is set, so they contribute once.
func boundaryContribution(own, other shape, keepShared bool) float64 {
	var sum float64
	for _, seg := range own.segs {
		if seg.maxX < other.bounds.Min(0)-own.eps || seg.minX > other.bounds.Max(0)+own.eps ||
			seg.maxY < other.bounds.Min(1)-own.eps || seg.minY > other.bounds.Max(1)+own.eps {
			continue
		}

		ts := splitParams(seg, other)
		for i := 0; i+1 < len(ts); i++ {
			t0, t1 := ts[i], ts[i+1]
			if t1-t0 <= 0 {
				continue
			}
			p := lerp(seg, t0)
			q := lerp(seg, t1)
			mid := lerp(seg, (t0+t1)/2)

			switch other.classify(mid, point{seg.b.x - seg.a.x, seg.b.y - seg.a.y}) {
			case inside:
			case sharedSame:
				if !keepShared {
					continue
				}
			default:
				continue
			}
			sum += (p.x*q.y - q.x*p.y) / 2
		}
	}
	return sum
}

// splitParams returns the sorted parameters in [0, 1] at which seg meets the
// boundary of other.
func splitParams(seg segment, other shape) []float64 {
	ts := []float64{0, 1}
	eps := other.eps
	d := point{seg.b.x - seg.a.x, seg.b.y - seg.a.y}
	segLen2 := d.x*d.x + d.y*d.y

	for _, o := range other.segs {
		if o.maxX < seg.minX-eps || o.minX > seg.maxX+eps || o.maxY < seg.minY-eps || o.minY > seg.maxY+eps {
			continue
		}
		e := point{o.b.x - o.a.x, o.b.y - o.a.y}
		w := point{o.a.x - seg.a.x, o.a.y - seg.a.y}
		den := cross(d, e)

		if math.Abs(den) <= parallelTol*math.Sqrt(segLen2*(e.x*e.x+e.y*e.y)) {
			// Parallel: split at the other segment's endpoints when collinear.
			if math.Abs(cross(w, d)) > eps*math.Sqrt(segLen2) {
				continue
			}
			for _, end := range []point{o.a, o.b} {
				t := ((end.x-seg.a.x)*d.x + (end.y-seg.a.y)*d.y) / segLen2
				if t > 0 && t < 1 {
					ts = append(ts, t)
				}
			}
			continue
		}

		t := cross(w, e) / den
		u := cross(w, d) / den
		if t > 0 && t < 1 && u >= -paramTol && u <= 1+paramTol {
			ts = append(ts, t)
		}
	}

	sort.Float64s(ts)
	out := ts[:1]
	for _, t := range ts[1:] {
		if t-out[len(out)-1] > paramTol {
			out = append(out, t)
		}
	}
	if out[len(out)-1] != 1 {
		out[len(out)-1] = 1
	}
	return out
}

type location int

const (
	outside location = iota
	inside
	sharedSame
	sharedOpposite
)

// classify locates p relative to the shape. When p lies on the boundary,
// dir decides whether the boundary there runs the same way.
func (s shape) classify(p, dir point) location {
	for _, o := range s.segs {
		if p.x < o.minX-s.eps || p.x > o.maxX+s.eps || p.y < o.minY-s.eps || p.y > o.maxY+s.eps {
			continue
		}
		if distToSegment(p, o) <= s.eps {
			e := point{o.b.x - o.a.x, o.b.y - o.a.y}
			if dir.x*e.x+dir.y*e.y > 0 {
				return sharedSame
			}
			return sharedOpposite
		}
	}

	// Even-odd ray cast along +x.
	in := false
	for _, o := range s.segs {
		if (o.a.y > p.y) == (o.b.y > p.y) {
			continue
		}
		x := o.a.x + (p.y-o.a.y)*(o.b.x-o.a.x)/(o.b.y-o.a.y)
		if x > p.x {
			in = !in
		}
	}
	if in {
		return inside
	}
	return outside
}

func distToSegment(p point, s segment) float64 {
	d := point{s.b.x - s.a.x, s.b.y - s.a.y}
	l2 := d.x*d.x + d.y*d.y
	if l2 == 0 {
		return math.Hypot(p.x-s.a.x, p.y-s.a.y)
	}
	t := ((p.x-s.a.x)*d.x + (p.y-s.a.y)*d.y) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.x-(s.a.x+t*d.x), p.y-(s.a.y+t*d.y))
}

func lerp(s segment, t float64) point {
	return point{s.a.x + t*(s.b.x-s.a.x), s.a.y + t*(s.b.y-s.a.y)}
}

func cross(a, b point) float64 { return a.x*b.y - a.y*b.x }
