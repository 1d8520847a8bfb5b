package export

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/egm722/geomap-cli/internal/crs"
	"github.com/egm722/geomap-cli/internal/vector"
)

// FeatureCollection converts a layer to GeoJSON features, reprojecting to
// WGS84 first when the layer is in a projected CRS. Features without a
// geometry are skipped.
func FeatureCollection(l *vector.Layer) (*geojson.FeatureCollection, error) {
	if !l.CRS.IsZero() && !l.CRS.IsGeographic() {
		geo, err := l.ToCRS(crs.Geographic())
		if err != nil {
			return nil, eris.Wrap(err, "export: reproject for geojson")
		}
		l = geo
	}

	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, l.Len())}
	skipped := 0
	for _, f := range l.Features {
		if f.Geom == nil {
			skipped++
			continue
		}
		props := make(map[string]any, len(l.Fields))
		for j, fld := range l.Fields {
			props[fld.Name] = cellValue(f.Attrs[j])
		}
		fc.Features = append(fc.Features, &geojson.Feature{Geometry: f.Geom, Properties: props})
	}
	if skipped > 0 {
		zap.L().Debug("export: geojson skipped features without geometry", zap.String("layer", l.Name), zap.Int("count", skipped))
	}
	return fc, nil
}

// WriteGeoJSON writes a layer as a GeoJSON FeatureCollection.
func WriteGeoJSON(path string, l *vector.Layer) error {
	fc, err := FeatureCollection(l)
	if err != nil {
		return err
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrapf(err, "export: marshal geojson %s", path)
	}
	if err := writeFile(path, data); err != nil {
		return err
	}
	zap.L().Info("export: wrote geojson", zap.String("path", path), zap.Int("features", len(fc.Features)))
	return nil
}
