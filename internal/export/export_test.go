package export

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jszwec/csvutil"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/egm722/geomap-cli/internal/analysis"
	"github.com/egm722/geomap-cli/internal/crs"
	"github.com/egm722/geomap-cli/internal/vector"
)

func summary() *analysis.CountySummary {
	return &analysis.CountySummary{
		Populations:           &analysis.Series{Name: "Population", Keys: []string{"ANTRIM", "DOWN"}, Values: []float64{150, 250}},
		MaxCounty:             analysis.KeyedValue{Key: "DOWN", Value: 250},
		MinCounty:             analysis.KeyedValue{Key: "ANTRIM", Value: 150},
		MaxWard:               analysis.KeyedValue{Key: "Charlie", Value: 200},
		MinWard:               analysis.KeyedValue{Key: "Delta", Value: 10},
		ColumnMax:             []analysis.Extreme{{Field: vector.Field{Name: "Population", Kind: vector.KindNumber}, Value: vector.Number(200)}},
		ColumnMin:             []analysis.Extreme{{Field: vector.Field{Name: "Population", Kind: vector.KindNumber}, Value: vector.Number(10)}},
		MultiCountyWards:      []string{"Bravo"},
		MultiCountyPopulation: 50,
	}
}

func square(x, y float64) *geom.MultiPolygon {
	mp := geom.NewMultiPolygon(geom.XY)
	_ = mp.Push(geom.NewPolygonFlat(geom.XY, []float64{x, y, x, y + 1, x + 1, y + 1, x + 1, y, x, y}, []int{10}))
	return mp
}

func wardLayer() *vector.Layer {
	return &vector.Layer{
		Name: "wards",
		CRS:  crs.Geographic(),
		Fields: []vector.Field{
			{Name: "Ward", Kind: vector.KindString},
			{Name: "Population", Kind: vector.KindNumber},
			{Name: "PopDen", Kind: vector.KindNumber},
		},
		Features: []vector.Feature{
			{Geom: square(-7, 54), Attrs: []vector.Value{vector.String("Alpha"), vector.Number(100), vector.Number(2.5)}},
			{Geom: square(-6, 54), Attrs: []vector.Value{vector.String("Bravo"), vector.Number(50), vector.Null(vector.KindNumber)}},
			{Geom: nil, Attrs: []vector.Value{vector.String("Nowhere"), vector.Number(0), vector.Null(vector.KindNumber)}},
		},
	}
}

func TestWriteCSV_Populations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "counties.csv")
	require.NoError(t, WriteCSV(path, PopulationRows(summary())))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []PopulationRow
	require.NoError(t, csvutil.Unmarshal(data, &got))
	assert.Equal(t, []PopulationRow{{"ANTRIM", 150}, {"DOWN", 250}}, got)
}

func TestWardRows(t *testing.T) {
	rows, err := WardRows(wardLayer(), WardColumns{Ward: "Ward", Population: "Population", Area: "Area_KMsq", Density: "PopDen"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Alpha", rows[0].Ward)
	assert.Nil(t, rows[0].AreaKm2)
	require.NotNil(t, rows[0].PopDen)
	assert.Equal(t, 2.5, *rows[0].PopDen)
	assert.Nil(t, rows[1].PopDen)

	path := filepath.Join(t.TempDir(), "wards.csv")
	require.NoError(t, WriteCSV(path, rows))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan())
	assert.Equal(t, "ward,population,area_km2,pop_den", sc.Text())

	_, err = WardRows(wardLayer(), WardColumns{Ward: "Name", Population: "Population"})
	assert.Error(t, err)
	_, err = WardRows(wardLayer(), WardColumns{Ward: "Ward", Population: "Pop"})
	assert.Error(t, err)
}

func TestWriteXLSX(t *testing.T) {
	rows, err := WardRows(wardLayer(), WardColumns{Ward: "Ward", Population: "Population", Density: "PopDen"})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "summary.xlsx")
	require.NoError(t, WriteXLSX(path, PopulationSheet(PopulationRows(summary())), WardSheet(rows), ExtremesSheet(summary())))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 3)

	counties := f.Sheet["counties"]
	require.NotNil(t, counties)
	require.Len(t, counties.Rows, 3)
	assert.Equal(t, "county", counties.Rows[0].Cells[0].String())
	assert.Equal(t, "DOWN", counties.Rows[2].Cells[0].String())
	pop, err := counties.Rows[2].Cells[1].Float()
	require.NoError(t, err)
	assert.Equal(t, 250.0, pop)

	wards := f.Sheet["wards"]
	require.NotNil(t, wards)
	assert.Len(t, wards.Rows, 4)
	assert.Equal(t, "Bravo", wards.Rows[2].Cells[0].String())
}

func TestWriteXLSX_Errors(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, WriteXLSX(filepath.Join(dir, "empty.xlsx")))
	bad := Sheet{Name: "bad", Rows: [][]any{{struct{}{}}}}
	assert.Error(t, WriteXLSX(filepath.Join(dir, "bad.xlsx"), bad))
}

func TestWriteGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wards.geojson")
	require.NoError(t, WriteGeoJSON(path, wardLayer()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var fc geojson.FeatureCollection
	require.NoError(t, json.Unmarshal(data, &fc))
	require.Len(t, fc.Features, 2, "feature without geometry is skipped")
	assert.Equal(t, "Alpha", fc.Features[0].Properties["Ward"])
	assert.Equal(t, 100.0, fc.Features[0].Properties["Population"])
	assert.Nil(t, fc.Features[1].Properties["PopDen"])
	_, ok := fc.Features[0].Geometry.(*geom.MultiPolygon)
	assert.True(t, ok)
}

func TestFeatureCollection_Reprojects(t *testing.T) {
	l := &vector.Layer{
		Name:     "towns",
		CRS:      crs.UTM(29, true),
		Features: []vector.Feature{{Geom: geom.NewPointFlat(geom.XY, []float64{500000, 6000000})}},
	}
	fc, err := FeatureCollection(l)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	pt := fc.Features[0].Geometry.(*geom.Point)
	assert.InDelta(t, -9.0, pt.X(), 1e-6, "central meridian of zone 29")
	assert.InDelta(t, 54.1, pt.Y(), 0.1)
}

func TestSQLiteStore(t *testing.T) {
	st, err := NewSQLite(filepath.Join(t.TempDir(), "geomap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	run, err := st.SaveRun(ctx, "wards", "NI_Wards.shp", summary())
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "wards", got.Command)
	assert.Equal(t, analysis.KeyedValue{Key: "DOWN", Value: 250}, got.MaxCounty)
	assert.Equal(t, analysis.KeyedValue{Key: "Delta", Value: 10}, got.MinWard)
	assert.Equal(t, 50.0, got.MultiCountyPopulation)

	pops, err := st.CountyPopulations(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []PopulationRow{{"ANTRIM", 150}, {"DOWN", 250}}, pops)

	wards, err := st.MultiCountyWards(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bravo"}, wards)

	_, err = st.SaveRun(ctx, "wards", "NI_Wards.shp", summary())
	require.NoError(t, err)
	runs, err := st.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	_, err = st.GetRun(ctx, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = st.SaveRun(ctx, "wards", "", nil)
	assert.Error(t, err)
}

func TestEncodeEWKB(t *testing.T) {
	data, err := EncodeEWKB(square(0, 0), 32629)
	require.NoError(t, err)
	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, 32629, g.SRID())
	_, ok := g.(*geom.MultiPolygon)
	assert.True(t, ok)

	data, err = EncodeEWKB(nil, 4326)
	assert.NoError(t, err)
	assert.Nil(t, data)

	_, err = EncodeEWKB(geom.NewGeometryCollection(), 4326)
	assert.Error(t, err)
}

func TestPostgisType(t *testing.T) {
	assert.Equal(t, "MultiPolygon", postgisType(wardLayer()))
	assert.Equal(t, "Geometry", postgisType(&vector.Layer{}))
	mixed := &vector.Layer{Features: []vector.Feature{
		{Geom: geom.NewPointFlat(geom.XY, []float64{0, 0})},
		{Geom: square(0, 0)},
	}}
	assert.Equal(t, "Geometry", postgisType(mixed))
}

func TestLoadPostGIS(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "geomap"`).WillReturnResult(pgxmock.NewResult("CREATE SCHEMA", 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "geomap"."wards" ("fid" integer PRIMARY KEY, "Ward" text, "Population" double precision, "PopDen" double precision, "geom" geometry(MultiPolygon, 4326))`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "wards_geom_idx"`).WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"geomap", "wards"}, []string{"fid", "Ward", "Population", "PopDen", "geom"}).WillReturnResult(3)

	n, err := LoadPostGIS(context.Background(), mock, "geomap", "wards", wardLayer(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePopulations(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "geomap"`).WillReturnResult(pgxmock.NewResult("CREATE SCHEMA", 0))
	mock.ExpectExec(regexp.QuoteMeta(`PRIMARY KEY ("run_id", "county")`)).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_geomap_county_population"}, []string{"run_id", "county", "population"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "geomap"."county_population"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := SavePopulations(context.Background(), mock, "geomap", "run-1", summary())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtremesSheet(t *testing.T) {
	sh := ExtremesSheet(summary())
	assert.Equal(t, [][]any{{"Population", 200.0, 10.0}}, sh.Rows)
}
