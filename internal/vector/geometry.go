package vector

import (
	"math"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ShapeToGeom converts a go-shp shape to a go-geom geometry. Z and M values
// are dropped. Returns nil, nil for null or empty shapes.
func ShapeToGeom(shape shp.Shape) (geom.T, error) {
	if shape == nil {
		return nil, nil
	}

	switch s := shape.(type) {
	case *shp.Null:
		return nil, nil
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}), nil
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}), nil
	case *shp.PointM:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}), nil
	case *shp.MultiPoint:
		return multiPoint(s.Points), nil
	case *shp.MultiPointZ:
		return multiPoint(s.Points), nil
	case *shp.PolyLine:
		return multiLineString(s.Parts, s.Points), nil
	case *shp.PolyLineZ:
		return multiLineString(s.Parts, s.Points), nil
	case *shp.PolyLineM:
		return multiLineString(s.Parts, s.Points), nil
	case *shp.Polygon:
		return multiPolygon(s.Parts, s.Points), nil
	case *shp.PolygonZ:
		return multiPolygon(s.Parts, s.Points), nil
	case *shp.PolygonM:
		return multiPolygon(s.Parts, s.Points), nil
	}
	return nil, eris.Errorf("vector: unsupported shape type %T", shape)
}

func multiPoint(pts []shp.Point) geom.T {
	if len(pts) == 0 {
		return nil
	}
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	return geom.NewMultiPointFlat(geom.XY, flat)
}

// partRanges splits a point array into [start, end) ranges per part.
func partRanges(parts []int32, n int) [][2]int {
	ranges := make([][2]int, 0, len(parts))
	for i, start := range parts {
		end := n
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if int(start) >= end || end > n {
			continue
		}
		ranges = append(ranges, [2]int{int(start), end})
	}
	return ranges
}

func multiLineString(parts []int32, pts []shp.Point) geom.T {
	if len(parts) == 0 || len(pts) == 0 {
		return nil
	}
	var flat []float64
	var ends []int
	for _, r := range partRanges(parts, len(pts)) {
		if r[1]-r[0] < 2 {
			zap.L().Debug("vector: skipping degenerate linestring part", zap.Int("start", r[0]))
			continue
		}
		for j := r[0]; j < r[1]; j++ {
			flat = append(flat, pts[j].X, pts[j].Y)
		}
		ends = append(ends, len(flat))
	}
	if len(ends) == 0 {
		return nil
	}
	return geom.NewMultiLineStringFlat(geom.XY, flat, ends)
}

// multiPolygon groups shapefile rings into polygons. Outer rings are
// clockwise, holes counter-clockwise; each hole is attached to the first
// outer ring that contains it.
func multiPolygon(parts []int32, pts []shp.Point) geom.T {
	if len(parts) == 0 || len(pts) == 0 {
		return nil
	}

	type ringT struct {
		coords [][2]float64
	}
	var outers, holes []ringT
	for _, r := range partRanges(parts, len(pts)) {
		if r[1]-r[0] < 4 {
			zap.L().Debug("vector: skipping degenerate polygon ring", zap.Int("start", r[0]))
			continue
		}
		ring := ringT{coords: make([][2]float64, 0, r[1]-r[0])}
		for j := r[0]; j < r[1]; j++ {
			ring.coords = append(ring.coords, [2]float64{pts[j].X, pts[j].Y})
		}
		if signedArea(ring.coords) <= 0 {
			outers = append(outers, ring)
		} else {
			holes = append(holes, ring)
		}
	}
	if len(outers) == 0 {
		// Counter-clockwise only: treat every ring as an outer ring.
		outers, holes = holes, nil
	}
	if len(outers) == 0 {
		return nil
	}

	assigned := make([][]ringT, len(outers))
	for _, h := range holes {
		placed := false
		for i, o := range outers {
			if pointInRing(h.coords[0], o.coords) {
				assigned[i] = append(assigned[i], h)
				placed = true
				break
			}
		}
		if !placed {
			outers = append(outers, h)
			assigned = append(assigned, nil)
		}
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for i, o := range outers {
		var flat []float64
		var ends []int
		for _, c := range o.coords {
			flat = append(flat, c[0], c[1])
		}
		ends = append(ends, len(flat))
		for _, h := range assigned[i] {
			for _, c := range h.coords {
				flat = append(flat, c[0], c[1])
			}
			ends = append(ends, len(flat))
		}
		if err := mp.Push(geom.NewPolygonFlat(geom.XY, flat, ends)); err != nil {
			zap.L().Debug("vector: skipping malformed polygon part", zap.Int("part", i), zap.Error(err))
			continue
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is the shoelace area: positive for counter-clockwise rings.
func signedArea(ring [][2]float64) float64 {
	var a float64
	for i := 0; i < len(ring); i++ {
		j := (i + 1) % len(ring)
		a += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return a / 2
}

// GeomToShape converts a go-geom geometry to its go-shp equivalent. Rings are
// re-oriented to the shapefile convention on the way out.
func GeomToShape(g geom.T) (shp.Shape, error) {
	switch t := g.(type) {
	case nil:
		return &shp.Null{}, nil
	case *geom.Point:
		return &shp.Point{X: t.X(), Y: t.Y()}, nil
	case *geom.MultiPoint:
		pts := flatToPoints(t.FlatCoords(), t.Stride())
		return &shp.MultiPoint{Box: boxOf(pts), NumPoints: int32(len(pts)), Points: pts}, nil
	case *geom.LineString:
		return polyLine([][]shp.Point{flatToPoints(t.FlatCoords(), t.Stride())}), nil
	case *geom.MultiLineString:
		var lines [][]shp.Point
		for i := 0; i < t.NumLineStrings(); i++ {
			ls := t.LineString(i)
			lines = append(lines, flatToPoints(ls.FlatCoords(), ls.Stride()))
		}
		return polyLine(lines), nil
	case *geom.Polygon:
		return polygonShape([]*geom.Polygon{t}), nil
	case *geom.MultiPolygon:
		polys := make([]*geom.Polygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, t.Polygon(i))
		}
		return polygonShape(polys), nil
	}
	return nil, eris.Errorf("vector: cannot write geometry type %T", g)
}

func flatToPoints(flat []float64, stride int) []shp.Point {
	pts := make([]shp.Point, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		pts = append(pts, shp.Point{X: flat[i], Y: flat[i+1]})
	}
	return pts
}

func boxOf(pts []shp.Point) shp.Box {
	box := shp.Box{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, p := range pts {
		box.MinX = math.Min(box.MinX, p.X)
		box.MinY = math.Min(box.MinY, p.Y)
		box.MaxX = math.Max(box.MaxX, p.X)
		box.MaxY = math.Max(box.MaxY, p.Y)
	}
	return box
}

func polyLine(lines [][]shp.Point) *shp.PolyLine {
	var parts []int32
	var pts []shp.Point
	for _, l := range lines {
		parts = append(parts, int32(len(pts)))
		pts = append(pts, l...)
	}
	return &shp.PolyLine{
		Box:       boxOf(pts),
		NumParts:  int32(len(parts)),
		NumPoints: int32(len(pts)),
		Parts:     parts,
		Points:    pts,
	}
}

func polygonShape(polys []*geom.Polygon) *shp.Polygon {
	var parts []int32
	var pts []shp.Point
	for _, p := range polys {
		for r := 0; r < p.NumLinearRings(); r++ {
			lr := p.LinearRing(r)
			ring := flatToPoints(lr.FlatCoords(), lr.Stride())
			coords := make([][2]float64, len(ring))
			for i, pt := range ring {
				coords[i] = [2]float64{pt.X, pt.Y}
			}
			ccw := signedArea(coords) > 0
			// Outer rings clockwise, holes counter-clockwise.
			if (r == 0 && ccw) || (r > 0 && !ccw) {
				for i, j := 0, len(ring)-1; i < j; i, j = i+1, j-1 {
					ring[i], ring[j] = ring[j], ring[i]
				}
			}
			parts = append(parts, int32(len(pts)))
			pts = append(pts, ring...)
		}
	}
	return &shp.Polygon{
		Box:       boxOf(pts),
		NumParts:  int32(len(parts)),
		NumPoints: int32(len(pts)),
		Parts:     parts,
		Points:    pts,
	}
}
