package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/egm722/geomap-cli/internal/analysis"
	"github.com/egm722/geomap-cli/internal/vector"
)

// Sheet is one worksheet: a header row followed by rows of strings,
// numbers or nil (an empty cell).
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]any
}

// PopulationSheet builds the county population worksheet.
func PopulationSheet(rows []PopulationRow) Sheet {
	s := Sheet{Name: "counties", Header: []string{"county", "population"}}
	for _, r := range rows {
		s.Rows = append(s.Rows, []any{r.County, r.Population})
	}
	return s
}

// WardSheet builds the ward worksheet.
func WardSheet(rows []WardRow) Sheet {
	s := Sheet{Name: "wards", Header: []string{"ward", "population", "area_km2", "pop_den"}}
	for _, r := range rows {
		s.Rows = append(s.Rows, []any{r.Ward, r.Population, r.AreaKm2, r.PopDen})
	}
	return s
}

// ExtremesSheet lists the per-column maxima and minima of a summary.
func ExtremesSheet(s *analysis.CountySummary) Sheet {
	sh := Sheet{Name: "extremes", Header: []string{"column", "max", "min"}}
	for i, mx := range s.ColumnMax {
		row := []any{mx.Field.Name, cellValue(mx.Value), nil}
		if i < len(s.ColumnMin) {
			row[2] = cellValue(s.ColumnMin[i].Value)
		}
		sh.Rows = append(sh.Rows, row)
	}
	return sh
}

func cellValue(v vector.Value) any {
	switch {
	case !v.Valid:
		return nil
	case v.Kind == vector.KindNumber:
		return v.Num
	default:
		return v.Str
	}
}

// WriteXLSX writes a workbook with one worksheet per sheet.
func WriteXLSX(path string, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return eris.New("export: xlsx needs at least one sheet")
	}
	f := xlsx.NewFile()
	for _, s := range sheets {
		sh, err := f.AddSheet(s.Name)
		if err != nil {
			return eris.Wrapf(err, "export: add sheet %q", s.Name)
		}
		header := sh.AddRow()
		for _, h := range s.Header {
			header.AddCell().SetString(h)
		}
		for _, r := range s.Rows {
			row := sh.AddRow()
			for _, v := range r {
				if err := setCell(row.AddCell(), v); err != nil {
					return eris.Wrapf(err, "export: sheet %q", s.Name)
				}
			}
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	zap.L().Info("export: wrote xlsx", zap.String("path", path), zap.Int("sheets", len(sheets)))
	return nil
}

func setCell(c *xlsx.Cell, v any) error {
	switch t := v.(type) {
	case nil:
	case string:
		c.SetString(t)
	case float64:
		c.SetFloat(t)
	case *float64:
		if t != nil {
			c.SetFloat(*t)
		}
	case int:
		c.SetInt(t)
	case int64:
		c.SetInt64(t)
	case bool:
		c.SetBool(t)
	default:
		return eris.Errorf("export: unsupported cell type %T", v)
	}
	return nil
}
