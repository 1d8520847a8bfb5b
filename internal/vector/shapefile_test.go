package vector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/egm722/geomap-cli/internal/crs"
)

// square returns a clockwise (shapefile outer ring) square polygon.
func square(x0, y0, size float64) *shp.Polygon {
	pts := []shp.Point{
		{X: x0, Y: y0},
		{X: x0, Y: y0 + size},
		{X: x0 + size, Y: y0 + size},
		{X: x0 + size, Y: y0},
		{X: x0, Y: y0},
	}
	return &shp.Polygon{
		Box:       shp.Box{MinX: x0, MinY: y0, MaxX: x0 + size, MaxY: y0 + size},
		NumParts:  1,
		NumPoints: int32(len(pts)),
		Parts:     []int32{0},
		Points:    pts,
	}
}

func writeTestShapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "wards.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("Ward", 40),
		shp.NumberField("Population", 10),
	}))

	rows := []struct {
		shape *shp.Polygon
		name  string
		pop   int
	}{
		{square(0, 0, 1000), "Alpha", 1200},
		{square(1000, 0, 1000), "Bravo", 3400},
		{square(0, 1000, 2000), "Charlie", 800},
	}
	for _, r := range rows {
		n := int(w.Write(r.shape))
		require.NoError(t, w.WriteAttribute(n, 0, r.name))
		require.NoError(t, w.WriteAttribute(n, 1, r.pop))
	}
	w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "wards.prj"), []byte(crs.UTM(29, true).WKT()), 0o644))
	return path
}

func TestReadShapefile(t *testing.T) {
	path := writeTestShapefile(t, t.TempDir())

	layer, err := ReadShapefile(path)
	require.NoError(t, err)

	assert.Equal(t, "wards", layer.Name)
	assert.Equal(t, 32629, layer.CRS.EPSG)
	require.Len(t, layer.Fields, 2)
	assert.Equal(t, "Ward", layer.Fields[0].Name)
	assert.Equal(t, KindString, layer.Fields[0].Kind)
	assert.Equal(t, KindNumber, layer.Fields[1].Kind)
	require.Equal(t, 3, layer.Len())

	names, err := layer.Strings("ward")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Bravo", "Charlie"}, names)

	pops, err := layer.Numbers("Population")
	require.NoError(t, err)
	assert.Equal(t, []float64{1200, 3400, 800}, pops)

	mp, ok := layer.Features[0].Geom.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 1, mp.NumPolygons())
	assert.InDelta(t, 1e6, layer.Area(0), 1e-6)
	assert.InDelta(t, 4e6, layer.Area(2), 1e-6)
}

func TestReadShapefile_Missing(t *testing.T) {
	_, err := ReadShapefile(filepath.Join(t.TempDir(), "nope.shp"))
	assert.Error(t, err)
}

func TestReadShapefile_NoPRJ(t *testing.T) {
	dir := t.TempDir()
	path := writeTestShapefile(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, "wards.prj")))

	layer, err := ReadShapefile(path)
	require.NoError(t, err)
	assert.True(t, layer.CRS.IsZero())
}

func TestWriteShapefile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	layer, err := ReadShapefile(writeTestShapefile(t, dir))
	require.NoError(t, err)

	vals := make([]Value, layer.Len())
	for i := range vals {
		vals[i] = Number(float64(i) + 0.5)
	}
	vals[1] = Null(KindNumber)
	require.NoError(t, layer.AddColumn(Field{Name: "PopDen", Kind: KindNumber, Size: 18, Precision: 3}, vals))

	out := filepath.Join(dir, "out.shp")
	require.NoError(t, WriteShapefile(out, layer))

	back, err := ReadShapefile(out)
	require.NoError(t, err)
	assert.Equal(t, 32629, back.CRS.EPSG)
	require.Equal(t, 3, back.Len())

	den, err := back.Column("PopDen")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, den[0].Num, 1e-9)
	assert.False(t, den[1].Valid)
	assert.InDelta(t, 2.5, den[2].Num, 1e-9)
	assert.InDelta(t, layer.Area(2), back.Area(2), 1e-6)
}

func TestWriteShapefile_Empty(t *testing.T) {
	err := WriteShapefile(filepath.Join(t.TempDir(), "x.shp"), &Layer{Name: "empty"})
	assert.Error(t, err)
}

func TestShapeToGeom_PolygonWithHole(t *testing.T) {
	outer := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}}
	hole := []shp.Point{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}}
	poly := &shp.Polygon{
		NumParts:  2,
		NumPoints: 10,
		Parts:     []int32{0, 5},
		Points:    append(outer, hole...),
	}

	g, err := ShapeToGeom(poly)
	require.NoError(t, err)
	mp := g.(*geom.MultiPolygon)
	require.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
	assert.InDelta(t, 96, Area(mp), 1e-9)
}

func TestShapeToGeom_TwoOuterRings(t *testing.T) {
	a := square(0, 0, 1)
	b := square(5, 5, 1)
	poly := &shp.Polygon{
		NumParts:  2,
		NumPoints: 10,
		Parts:     []int32{0, 5},
		Points:    append(a.Points, b.Points...),
	}
	g, err := ShapeToGeom(poly)
	require.NoError(t, err)
	assert.Equal(t, 2, g.(*geom.MultiPolygon).NumPolygons())
}

func TestShapeToGeom_Simple(t *testing.T) {
	g, err := ShapeToGeom(&shp.Point{X: 1, Y: 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, g.FlatCoords())

	g, err = ShapeToGeom(&shp.PolyLine{
		NumParts: 2,
		Parts:    []int32{0, 2},
		Points:   []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, g.(*geom.MultiLineString).NumLineStrings())

	g, err = ShapeToGeom(nil)
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = ShapeToGeom(&shp.Polygon{})
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestGeomToShape_ReorientsRings(t *testing.T) {
	// Counter-clockwise shell as go-geom would accept it.
	ccw := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0}, []int{10})
	shape, err := GeomToShape(ccw)
	require.NoError(t, err)
	poly := shape.(*shp.Polygon)
	coords := make([][2]float64, len(poly.Points))
	for i, p := range poly.Points {
		coords[i] = [2]float64{p.X, p.Y}
	}
	assert.Less(t, signedArea(coords), 0.0, "outer ring should be clockwise")
	assert.Equal(t, shp.Box{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}, poly.Box)
}
