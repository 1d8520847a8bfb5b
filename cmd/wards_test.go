package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egm722/geomap-cli/internal/analysis"
	"github.com/egm722/geomap-cli/internal/export"
	"github.com/egm722/geomap-cli/internal/render"
	"github.com/egm722/geomap-cli/internal/vector"
)

func testWardsOptions(t *testing.T) wardsOptions {
	t.Helper()
	dir := t.TempDir()
	return wardsOptions{
		WardsPath:    writeLayer(t, dir, "wards", wardsLayer()),
		CountiesPath: writeLayer(t, dir, "counties", countiesLayer()),
		EPSG:         32629,
		Column:       densityColumn,
		Colormap:     "viridis",
		VMin:         0,
		VMax:         500,
		Label:        "Population Density (residents per sqkm)",
		Figure:       render.FigureOptions{Width: 4, Height: 3, DPI: 30},
		Grid: render.GridOptions{
			XLocs:  render.NIGridXLocs,
			YLocs:  render.NIGridYLocs,
			Labels: true,
		},
		MapPath: filepath.Join(dir, "out", "sample_map.png"),
	}
}

func TestRunWards(t *testing.T) {
	opts := testWardsOptions(t)
	var buf bytes.Buffer

	res, err := runWards(context.Background(), &buf, opts)
	require.NoError(t, err)

	s := res.Summary
	pop, ok := s.Populations.Get("ANTRIM")
	require.True(t, ok)
	assert.Equal(t, 3000.0, pop)
	pop, ok = s.Populations.Get("DOWN")
	require.True(t, ok)
	assert.Equal(t, 5000.0, pop)

	assert.Equal(t, analysis.KeyedValue{Key: "DOWN", Value: 5000}, s.MaxCounty)
	assert.Equal(t, analysis.KeyedValue{Key: "ANTRIM", Value: 3000}, s.MinCounty)
	assert.Equal(t, analysis.KeyedValue{Key: "Bravo", Value: 3000}, s.MaxWard)
	assert.Equal(t, analysis.KeyedValue{Key: "Alpha", Value: 1000}, s.MinWard)
	assert.Equal(t, []string{"Charlie"}, s.MultiCountyWards)
	assert.Equal(t, 4000.0, s.MultiCountyPopulation)

	areas, err := res.Wards.Numbers(areaColumn)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, areas[0], 1e-6)
	assert.InDelta(t, 16.0, areas[1], 1e-6)
	dens, err := res.Wards.Numbers(densityColumn)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0/9, dens[0], 1e-6)
	assert.InDelta(t, 250.0, dens[2], 1e-6)

	out := buf.String()
	assert.Contains(t, out, "ANTRIM")
	assert.Contains(t, out, "Most populous county:")
	assert.Contains(t, out, "Least populous ward:")
	assert.Contains(t, out, "Wards in more than one county: 1")
	assert.Contains(t, out, "Charlie")
	assert.Contains(t, out, "Total population of those wards: 4000")

	info, err := os.Stat(opts.MapPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Empty(t, res.RunID)
}

func TestRunWards_DefaultColourScale(t *testing.T) {
	loadTestConfig(t)
	opts, err := wardsOptionsFromFlags(wardsCmd)
	require.NoError(t, err)
	fixture := testWardsOptions(t)
	opts.WardsPath, opts.CountiesPath, opts.MapPath = fixture.WardsPath, fixture.CountiesPath, fixture.MapPath
	opts.Figure = fixture.Figure

	res, err := runWards(context.Background(), &bytes.Buffer{}, opts)
	require.NoError(t, err)

	// Densities are residents per km2 and must land inside the default range.
	dens, err := res.Wards.Numbers(densityColumn)
	require.NoError(t, err)
	for i, d := range dens {
		assert.Greater(t, d, opts.VMin, "ward row %d", i)
		assert.Less(t, d, opts.VMax, "ward row %d", i)
	}
}

func TestRunWards_Exports(t *testing.T) {
	opts := testWardsOptions(t)
	dir := filepath.Dir(opts.MapPath)
	opts.CSVDir = filepath.Join(dir, "csv")
	opts.XLSXPath = filepath.Join(dir, "wards.xlsx")
	opts.GeoJSONPath = filepath.Join(dir, "wards.geojson")
	opts.ShapePath = filepath.Join(dir, "wards_density.shp")
	opts.SQLitePath = filepath.Join(t.TempDir(), "runs.db")

	var buf bytes.Buffer
	res, err := runWards(context.Background(), &buf, opts)
	require.NoError(t, err)

	for _, p := range []string{
		filepath.Join(opts.CSVDir, "county_population.csv"),
		filepath.Join(opts.CSVDir, "wards.csv"),
		opts.XLSXPath,
		opts.GeoJSONPath,
		opts.ShapePath,
	} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}

	written, err := vector.ReadShapefile(opts.ShapePath)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, written.FieldIndex(densityColumn), 0)

	require.NotEmpty(t, res.RunID)
	st, err := export.NewSQLite(opts.SQLitePath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "DOWN", run.MaxCounty.Key)
	wards, err := st.MultiCountyWards(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Charlie"}, wards)
}

func TestRunWards_PopulationColumn(t *testing.T) {
	opts := testWardsOptions(t)
	opts.Column = "Population"
	opts.VMin, opts.VMax = 1000, 8000
	opts.Label = "Resident Population"

	_, err := runWards(context.Background(), &bytes.Buffer{}, opts)
	require.NoError(t, err)
	_, err = os.Stat(opts.MapPath)
	assert.NoError(t, err)
}

func TestRunWards_Errors(t *testing.T) {
	t.Run("unsupported epsg", func(t *testing.T) {
		opts := testWardsOptions(t)
		opts.EPSG = 1
		_, err := runWards(context.Background(), &bytes.Buffer{}, opts)
		assert.Error(t, err)
	})
	t.Run("missing counties", func(t *testing.T) {
		opts := testWardsOptions(t)
		opts.CountiesPath = filepath.Join(t.TempDir(), "missing.shp")
		_, err := runWards(context.Background(), &bytes.Buffer{}, opts)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load counties")
	})
	t.Run("bad range", func(t *testing.T) {
		opts := testWardsOptions(t)
		opts.VMin, opts.VMax = 10, 10
		_, err := runWards(context.Background(), &bytes.Buffer{}, opts)
		assert.Error(t, err)
	})
}

func TestLoadWardsPostGIS(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for _, table := range []string{"wards", "counties"} {
		mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "geomap"`).WillReturnResult(pgxmock.NewResult("CREATE SCHEMA", 0))
		mock.ExpectExec(`DROP TABLE IF EXISTS "geomap"."` + table + `"`).WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "geomap"."` + table + `"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "` + table + `_geom_idx"`).WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
		cols := []string{"fid", "Ward", "Population", "geom"}
		rows := int64(3)
		if table == "counties" {
			cols = []string{"fid", "CountyName", "geom"}
			rows = 2
		}
		mock.ExpectCopyFrom(pgx.Identifier{"geomap", table}, cols).WillReturnResult(rows)
	}
	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "geomap"`).WillReturnResult(pgxmock.NewResult("CREATE SCHEMA", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "geomap"."county_population"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_geomap_county_population"}, []string{"run_id", "county", "population"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "geomap"."county_population"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	res := &wardsResult{
		Summary: &analysis.CountySummary{
			Populations: &analysis.Series{Name: "Population", Keys: []string{"ANTRIM", "DOWN"}, Values: []float64{3000, 5000}},
		},
		Wards:    wardsLayer(),
		Counties: countiesLayer(),
	}
	require.NoError(t, loadWardsPostGIS(context.Background(), mock, res, "geomap"))
	assert.NotEmpty(t, res.RunID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrintSummary(t *testing.T) {
	s := &analysis.CountySummary{
		Populations: &analysis.Series{Keys: []string{"ARMAGH"}, Values: []float64{1234}},
		MaxCounty:   analysis.KeyedValue{Key: "ARMAGH", Value: 1234},
		MinCounty:   analysis.KeyedValue{Key: "ARMAGH", Value: 1234},
		ColumnMax:   []analysis.Extreme{{Field: vector.Field{Name: "Population"}, Value: vector.Number(900)}},
		ColumnMin:   []analysis.Extreme{{Field: vector.Field{Name: "Population"}, Value: vector.Number(12)}},
	}
	var buf bytes.Buffer
	printSummary(&buf, s)
	out := buf.String()
	assert.Contains(t, out, "ARMAGH  1234")
	assert.Contains(t, out, "Population")
	assert.Contains(t, out, "900")
	assert.Contains(t, out, "Wards in more than one county: 0")
}
