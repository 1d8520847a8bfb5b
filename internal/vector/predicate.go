package vector

import (
	"github.com/twpayne/go-geom"
)

type segment struct {
	a, b [2]float64
}

// parts is a geometry flattened into the pieces the predicates work on.
type parts struct {
	points [][2]float64
	lines  [][][2]float64
	polys  [][][][2]float64 // polygon -> ring -> coords; ring 0 is the shell
}

func decompose(g geom.T) parts {
	var p parts
	switch t := g.(type) {
	case *geom.Point:
		p.points = append(p.points, [2]float64{t.X(), t.Y()})
	case *geom.MultiPoint:
		p.points = append(p.points, coordsOf(t.FlatCoords(), t.Stride())...)
	case *geom.LineString:
		p.lines = append(p.lines, coordsOf(t.FlatCoords(), t.Stride()))
	case *geom.MultiLineString:
		for i := 0; i < t.NumLineStrings(); i++ {
			ls := t.LineString(i)
			p.lines = append(p.lines, coordsOf(ls.FlatCoords(), ls.Stride()))
		}
	case *geom.Polygon:
		p.polys = append(p.polys, polygonRings(t))
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			p.polys = append(p.polys, polygonRings(t.Polygon(i)))
		}
	}
	return p
}

func coordsOf(flat []float64, stride int) [][2]float64 {
	out := make([][2]float64, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, [2]float64{flat[i], flat[i+1]})
	}
	return out
}

func polygonRings(p *geom.Polygon) [][][2]float64 {
	rings := make([][][2]float64, 0, p.NumLinearRings())
	for r := 0; r < p.NumLinearRings(); r++ {
		lr := p.LinearRing(r)
		rings = append(rings, coordsOf(lr.FlatCoords(), lr.Stride()))
	}
	return rings
}

// segments returns every boundary or line segment whose extent overlaps clip.
func (p parts) segments(clip Bounds) []segment {
	var segs []segment
	add := func(path [][2]float64) {
		for i := 0; i+1 < len(path); i++ {
			s := segment{path[i], path[i+1]}
			if s.bounds().Overlaps(clip) {
				segs = append(segs, s)
			}
		}
	}
	for _, l := range p.lines {
		add(l)
	}
	for _, poly := range p.polys {
		for _, ring := range poly {
			add(ring)
		}
	}
	return segs
}

// vertices returns a representative vertex of every component.
func (p parts) vertices() [][2]float64 {
	out := append([][2]float64(nil), p.points...)
	for _, l := range p.lines {
		if len(l) > 0 {
			out = append(out, l[0])
		}
	}
	for _, poly := range p.polys {
		if len(poly) > 0 && len(poly[0]) > 0 {
			out = append(out, poly[0][0])
		}
	}
	return out
}

// coversPoint reports whether pt lies in the interior or on the boundary of
// any polygon in p.
func (p parts) coversPoint(pt [2]float64) bool {
	for _, poly := range p.polys {
		if len(poly) == 0 {
			continue
		}
		if onPath(pt, poly[0]) {
			return true
		}
		if !pointInRing(pt, poly[0]) {
			continue
		}
		inHole := false
		for _, hole := range poly[1:] {
			if onPath(pt, hole) {
				return true
			}
			if pointInRing(pt, hole) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

func (p parts) touchesPoint(pt [2]float64) bool {
	for _, q := range p.points {
		if q == pt {
			return true
		}
	}
	for _, l := range p.lines {
		if onPath(pt, l) {
			return true
		}
	}
	return p.coversPoint(pt)
}

// Intersects reports whether two geometries share at least one point,
// boundaries included.
func Intersects(a, b geom.T) bool {
	if a == nil || b == nil {
		return false
	}
	ab, bb := GeomBounds(a), GeomBounds(b)
	if ab.Empty() || bb.Empty() || !ab.Overlaps(bb) {
		return false
	}

	pa, pb := decompose(a), decompose(b)

	for _, pt := range pa.points {
		if pb.touchesPoint(pt) {
			return true
		}
	}
	for _, pt := range pb.points {
		if pa.touchesPoint(pt) {
			return true
		}
	}

	sa := pa.segments(bb)
	if len(sa) > 0 {
		sb := pb.segments(ab)
		for _, s := range sa {
			sBounds := s.bounds()
			for _, t := range sb {
				if !sBounds.Overlaps(t.bounds()) {
					continue
				}
				if segmentsIntersect(s, t) {
					return true
				}
			}
		}
	}

	// No boundary crossings: one geometry is inside the other or they are
	// disjoint.
	for _, v := range pa.vertices() {
		if pb.coversPoint(v) {
			return true
		}
	}
	for _, v := range pb.vertices() {
		if pa.coversPoint(v) {
			return true
		}
	}
	return false
}

func (s segment) bounds() Bounds {
	b := Bounds{MinX: s.a[0], MinY: s.a[1], MaxX: s.a[0], MaxY: s.a[1]}
	if s.b[0] < b.MinX {
		b.MinX = s.b[0]
	}
	if s.b[0] > b.MaxX {
		b.MaxX = s.b[0]
	}
	if s.b[1] < b.MinY {
		b.MinY = s.b[1]
	}
	if s.b[1] > b.MaxY {
		b.MaxY = s.b[1]
	}
	return b
}

func orient(a, b, c [2]float64) int {
	v := (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// onSegment assumes a, b, c are collinear.
func onSegment(a, b, c [2]float64) bool {
	return c[0] >= min(a[0], b[0]) && c[0] <= max(a[0], b[0]) &&
		c[1] >= min(a[1], b[1]) && c[1] <= max(a[1], b[1])
}

func segmentsIntersect(s, t segment) bool {
	o1 := orient(s.a, s.b, t.a)
	o2 := orient(s.a, s.b, t.b)
	o3 := orient(t.a, t.b, s.a)
	o4 := orient(t.a, t.b, s.b)

	if o1 != o2 && o3 != o4 {
		return true
	}
	switch {
	case o1 == 0 && onSegment(s.a, s.b, t.a):
		return true
	case o2 == 0 && onSegment(s.a, s.b, t.b):
		return true
	case o3 == 0 && onSegment(t.a, t.b, s.a):
		return true
	case o4 == 0 && onSegment(t.a, t.b, s.b):
		return true
	}
	return false
}

func onPath(pt [2]float64, path [][2]float64) bool {
	for i := 0; i+1 < len(path); i++ {
		if orient(path[i], path[i+1], pt) == 0 && onSegment(path[i], path[i+1], pt) {
			return true
		}
	}
	return false
}

// pointInRing is an even-odd ray cast. Points on the boundary may land on
// either side; callers check onPath first when that matters.
func pointInRing(pt [2]float64, ring [][2]float64) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > pt[1]) != (yj > pt[1]) {
			x := (xj-xi)*(pt[1]-yi)/(yj-yi) + xi
			if pt[0] < x {
				inside = !inside
			}
		}
	}
	return inside
}
