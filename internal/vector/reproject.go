package vector

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/egm722/geomap-cli/internal/crs"
)

// ToCRS returns a copy of the layer with every coordinate transformed into
// dst, like GeoDataFrame.to_crs. A layer without a CRS cannot be transformed.
func (l *Layer) ToCRS(dst crs.CRS) (*Layer, error) {
	if l.CRS.IsZero() {
		return nil, eris.Errorf("vector: layer %q has no CRS to transform from", l.Name)
	}
	out := l.Clone()
	out.CRS = dst
	if l.CRS.Equal(dst) {
		return out, nil
	}

	tr, err := crs.Transform(l.CRS, dst)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: reproject %q", l.Name)
	}
	for i, f := range out.Features {
		g, err := TransformGeom(f.Geom, tr)
		if err != nil {
			return nil, eris.Wrapf(err, "vector: reproject %q feature %d", l.Name, i)
		}
		out.Features[i].Geom = g
	}
	return out, nil
}

// TransformGeom applies tr to every vertex and returns a new geometry.
func TransformGeom(g geom.T, tr crs.Transformer) (geom.T, error) {
	if g == nil {
		return nil, nil
	}
	stride := g.Stride()
	src := g.FlatCoords()
	flat := make([]float64, len(src))
	copy(flat, src)
	for i := 0; i+1 < len(flat); i += stride {
		x, y, err := tr(flat[i], flat[i+1])
		if err != nil {
			return nil, eris.Wrap(err, "vector: transform coordinate")
		}
		flat[i], flat[i+1] = x, y
	}

	layout := g.Layout()
	switch t := g.(type) {
	case *geom.Point:
		return geom.NewPointFlat(layout, flat), nil
	case *geom.MultiPoint:
		return geom.NewMultiPointFlat(layout, flat), nil
	case *geom.LineString:
		return geom.NewLineStringFlat(layout, flat), nil
	case *geom.MultiLineString:
		return geom.NewMultiLineStringFlat(layout, flat, t.Ends()), nil
	case *geom.Polygon:
		return geom.NewPolygonFlat(layout, flat, t.Ends()), nil
	case *geom.MultiPolygon:
		return geom.NewMultiPolygonFlat(layout, flat, t.Endss()), nil
	}
	return nil, eris.Errorf("vector: cannot transform geometry type %T", g)
}
