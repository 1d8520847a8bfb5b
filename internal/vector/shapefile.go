package vector

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/egm722/geomap-cli/internal/crs"
)

// ReadShapefile loads every record of a shapefile. The CRS comes from the
// .prj sidecar when present. Records with null or degenerate geometry are
// skipped.
func ReadShapefile(path string) (*Layer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	base := strings.TrimSuffix(path, filepath.Ext(path))
	layer := &Layer{Name: filepath.Base(base)}

	c, ok, err := crs.FromPRJ(base + ".prj")
	if err != nil {
		return nil, eris.Wrap(err, "vector: read projection")
	}
	if ok {
		layer.CRS = c
	}

	shpFields := reader.Fields()
	layer.Fields = make([]Field, len(shpFields))
	for i, f := range shpFields {
		kind := KindString
		if f.Fieldtype == 'N' || f.Fieldtype == 'F' {
			kind = KindNumber
		}
		layer.Fields[i] = Field{
			Name:      strings.TrimRight(f.String(), "\x00"),
			Kind:      kind,
			Size:      f.Size,
			Precision: f.Precision,
		}
	}

	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		g, convErr := ShapeToGeom(shape)
		if convErr != nil {
			return nil, eris.Wrapf(convErr, "vector: convert shape in %s", path)
		}
		if g == nil {
			skipped++
			continue
		}

		attrs := make([]Value, len(layer.Fields))
		for i, f := range layer.Fields {
			attrs[i] = parseAttribute(reader.Attribute(i), f.Kind)
		}
		layer.Features = append(layer.Features, Feature{Geom: g, Attrs: attrs})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "vector: read shapefile %s", path)
	}

	zap.L().Debug("vector: shapefile loaded",
		zap.String("layer", layer.Name),
		zap.Int("features", len(layer.Features)),
		zap.Int("skipped", skipped),
		zap.String("crs", layer.CRS.String()),
	)
	return layer, nil
}

func parseAttribute(raw string, kind Kind) Value {
	val := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if kind == KindNumber {
		if val == "" || strings.Trim(val, "*") == "" {
			return Null(KindNumber)
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return Null(KindNumber)
		}
		return Number(f)
	}
	if val == "" {
		return Null(KindString)
	}
	return String(val)
}

// WriteShapefile writes layer to path (.shp, .shx, .dbf and, when the CRS is
// known, .prj). Every feature must share one geometry family.
func WriteShapefile(path string, layer *Layer) error {
	if len(layer.Features) == 0 {
		return eris.Errorf("vector: layer %q has no features to write", layer.Name)
	}
	shapeType, err := shapeTypeFor(layer)
	if err != nil {
		return err
	}

	w, err := shp.Create(path, shapeType)
	if err != nil {
		return eris.Wrapf(err, "vector: create shapefile %s", path)
	}
	defer w.Close()

	fields := make([]shp.Field, len(layer.Fields))
	for i, f := range layer.Fields {
		name := f.Name
		if len(name) > 10 {
			name = name[:10]
		}
		switch f.Kind {
		case KindNumber:
			size, prec := f.Size, f.Precision
			if size == 0 {
				size, prec = 24, 6
			}
			fields[i] = shp.FloatField(name, size, prec)
		default:
			size := f.Size
			if size == 0 {
				size = 80
			}
			fields[i] = shp.StringField(name, size)
		}
	}
	if err := w.SetFields(fields); err != nil {
		return eris.Wrap(err, "vector: set shapefile fields")
	}

	for _, feat := range layer.Features {
		shape, err := GeomToShape(feat.Geom)
		if err != nil {
			return err
		}
		row := int(w.Write(shape))
		for i, v := range feat.Attrs {
			var val any = v.String()
			if layer.Fields[i].Kind == KindNumber && v.Valid {
				val = v.Num
			}
			if err := w.WriteAttribute(row, i, val); err != nil {
				return eris.Wrapf(err, "vector: write attribute %s", layer.Fields[i].Name)
			}
		}
	}

	if wkt := layer.CRS.WKT(); wkt != "" {
		prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
		if err := os.WriteFile(prj, []byte(wkt), 0o644); err != nil {
			return eris.Wrap(err, "vector: write .prj")
		}
	}
	return nil
}

func shapeTypeFor(layer *Layer) (shp.ShapeType, error) {
	shape, err := GeomToShape(layer.Features[0].Geom)
	if err != nil {
		return 0, err
	}
	switch shape.(type) {
	case *shp.Point:
		return shp.POINT, nil
	case *shp.MultiPoint:
		return shp.MULTIPOINT, nil
	case *shp.PolyLine:
		return shp.POLYLINE, nil
	case *shp.Polygon:
		return shp.POLYGON, nil
	}
	return 0, eris.Errorf("vector: layer %q has no writable geometry", layer.Name)
}
