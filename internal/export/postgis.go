package export

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/egm722/geomap-cli/internal/analysis"
	"github.com/egm722/geomap-cli/internal/db"
	"github.com/egm722/geomap-cli/internal/vector"
)

// LoadPostGIS creates schema.table for the layer and COPYs its features in,
// geometries as EWKB tagged with the layer's EPSG code.
func LoadPostGIS(ctx context.Context, pool db.Pool, schema, table string, l *vector.Layer, replace bool) (int64, error) {
	srid := l.CRS.EPSG
	spec := db.TableSpec{
		Schema:   schema,
		Table:    table,
		GeomType: postgisType(l),
		SRID:     srid,
		Replace:  replace,
	}
	columns := []string{"fid"}
	for _, f := range l.Fields {
		typ := "text"
		if f.Kind == vector.KindNumber {
			typ = "double precision"
		}
		spec.Columns = append(spec.Columns, db.Column{Name: f.Name, Type: typ})
		columns = append(columns, f.Name)
	}
	columns = append(columns, db.GeomColumn)

	if err := db.EnsureTable(ctx, pool, spec); err != nil {
		return 0, err
	}

	rows := make([][]any, 0, l.Len())
	for i, f := range l.Features {
		row := make([]any, 0, len(columns))
		row = append(row, i)
		for _, v := range f.Attrs {
			row = append(row, cellValue(v))
		}
		wkb, err := EncodeEWKB(f.Geom, srid)
		if err != nil {
			return 0, eris.Wrapf(err, "export: feature %d", i)
		}
		if wkb == nil {
			row = append(row, nil)
		} else {
			row = append(row, wkb)
		}
		rows = append(rows, row)
	}

	n, err := db.CopyFromSchema(ctx, pool, schema, table, columns, rows)
	if err != nil {
		return 0, err
	}
	zap.L().Info("export: loaded layer into postgis",
		zap.String("layer", l.Name),
		zap.String("table", schema+"."+table),
		zap.Int64("rows", n),
	)
	return n, nil
}

// postgisType names the geometry column type for a layer. Layers mixing
// geometry types get the generic Geometry type.
func postgisType(l *vector.Layer) string {
	typ := ""
	for _, f := range l.Features {
		var t string
		switch f.Geom.(type) {
		case nil:
			continue
		case *geom.Point:
			t = "Point"
		case *geom.MultiPoint:
			t = "MultiPoint"
		case *geom.LineString:
			t = "LineString"
		case *geom.MultiLineString:
			t = "MultiLineString"
		case *geom.Polygon:
			t = "Polygon"
		case *geom.MultiPolygon:
			t = "MultiPolygon"
		default:
			return "Geometry"
		}
		if typ != "" && typ != t {
			return "Geometry"
		}
		typ = t
	}
	if typ == "" {
		return "Geometry"
	}
	return typ
}

// EncodeEWKB converts a geometry to little-endian EWKB with the given SRID.
// A nil geometry encodes as nil.
func EncodeEWKB(g geom.T, srid int) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	var tagged geom.T
	switch t := g.(type) {
	case *geom.Point:
		tagged = t.Clone().SetSRID(srid)
	case *geom.MultiPoint:
		tagged = t.Clone().SetSRID(srid)
	case *geom.LineString:
		tagged = t.Clone().SetSRID(srid)
	case *geom.MultiLineString:
		tagged = t.Clone().SetSRID(srid)
	case *geom.Polygon:
		tagged = t.Clone().SetSRID(srid)
	case *geom.MultiPolygon:
		tagged = t.Clone().SetSRID(srid)
	default:
		return nil, eris.Errorf("export: unsupported geometry %T", g)
	}
	data, err := ewkb.Marshal(tagged, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "export: encode EWKB")
	}
	return data, nil
}

// SavePopulations upserts a summary's county totals into
// schema.county_population under runID.
func SavePopulations(ctx context.Context, pool db.Pool, schema, runID string, sum *analysis.CountySummary) (int64, error) {
	spec := db.TableSpec{
		Schema: schema,
		Table:  "county_population",
		Columns: []db.Column{
			{Name: "run_id", Type: "text NOT NULL"},
			{Name: "county", Type: "text NOT NULL"},
			{Name: "population", Type: "double precision NOT NULL"},
		},
		PrimaryKey: []string{"run_id", "county"},
	}
	if err := db.EnsureTable(ctx, pool, spec); err != nil {
		return 0, err
	}

	var rows [][]any
	for _, r := range PopulationRows(sum) {
		rows = append(rows, []any{runID, r.County, r.Population})
	}
	return db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        schema + ".county_population",
		Columns:      []string{"run_id", "county", "population"},
		ConflictKeys: spec.PrimaryKey,
	}, rows)
}
