// Package export writes analysis results and layers to CSV, XLSX, GeoJSON,
// SQLite and PostGIS.
package export

import (
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/egm722/geomap-cli/internal/analysis"
	"github.com/egm722/geomap-cli/internal/vector"
)

// PopulationRow is one county total.
type PopulationRow struct {
	County     string  `csv:"county" json:"county"`
	Population float64 `csv:"population" json:"population"`
}

// PopulationRows flattens the per-county totals of a summary.
func PopulationRows(s *analysis.CountySummary) []PopulationRow {
	if s == nil || s.Populations == nil {
		return nil
	}
	rows := make([]PopulationRow, s.Populations.Len())
	for i, k := range s.Populations.Keys {
		rows[i] = PopulationRow{County: k, Population: s.Populations.Values[i]}
	}
	return rows
}

// WardRow is one ward with its derived columns. Area and density are empty
// when not computed.
type WardRow struct {
	Ward       string   `csv:"ward"`
	Population float64  `csv:"population"`
	AreaKm2    *float64 `csv:"area_km2,omitempty"`
	PopDen     *float64 `csv:"pop_den,omitempty"`
}

// WardColumns names the layer columns WardRows reads.
type WardColumns struct {
	Ward       string
	Population string
	Area       string
	Density    string
}

// WardRows extracts ward rows from a ward layer. Missing area or density
// columns leave those fields nil.
func WardRows(l *vector.Layer, cols WardColumns) ([]WardRow, error) {
	wi, pi := l.FieldIndex(cols.Ward), l.FieldIndex(cols.Population)
	if wi < 0 {
		return nil, eris.Errorf("export: no column %q", cols.Ward)
	}
	if pi < 0 {
		return nil, eris.Errorf("export: no column %q", cols.Population)
	}
	ai, di := l.FieldIndex(cols.Area), l.FieldIndex(cols.Density)

	rows := make([]WardRow, l.Len())
	for i, f := range l.Features {
		rows[i].Ward = f.Attrs[wi].String()
		rows[i].Population, _ = f.Attrs[pi].Float()
		rows[i].AreaKm2 = optional(f.Attrs, ai)
		rows[i].PopDen = optional(f.Attrs, di)
	}
	return rows, nil
}

func optional(attrs []vector.Value, i int) *float64 {
	if i < 0 {
		return nil
	}
	v, ok := attrs[i].Float()
	if !ok {
		return nil
	}
	return &v
}

// WriteCSV marshals a slice of structs with csv tags to path.
func WriteCSV(path string, rows any) error {
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrapf(err, "export: marshal csv %s", path)
	}
	if err := writeFile(path, data); err != nil {
		return err
	}
	zap.L().Info("export: wrote csv", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "export: create %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}
