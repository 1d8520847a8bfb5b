package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/egm722/geomap-cli/internal/crs"
	"github.com/egm722/geomap-cli/internal/vector"
)

func rect(x0, y0, x1, y1 float64) *geom.MultiPolygon {
	mp := geom.NewMultiPolygon(geom.XY)
	_ = mp.Push(geom.NewPolygonFlat(geom.XY, []float64{x0, y0, x0, y1, x1, y1, x1, y0, x0, y0}, []int{10}))
	return mp
}

func fixtures() (counties, wards *vector.Layer) {
	utm := crs.UTM(29, true)
	counties = &vector.Layer{
		Name:   "counties",
		CRS:    utm,
		Fields: []vector.Field{{Name: "CountyName", Kind: vector.KindString}, {Name: "Code", Kind: vector.KindNumber}},
		Features: []vector.Feature{
			{Geom: rect(0, 0, 10, 10), Attrs: []vector.Value{vector.String("ANTRIM"), vector.Number(1)}},
			{Geom: rect(10, 0, 20, 10), Attrs: []vector.Value{vector.String("DOWN"), vector.Number(2)}},
		},
	}
	wards = &vector.Layer{
		Name:   "wards",
		CRS:    utm,
		Fields: []vector.Field{{Name: "Ward", Kind: vector.KindString}, {Name: "Population", Kind: vector.KindNumber}, {Name: "Code", Kind: vector.KindNumber}},
		Features: []vector.Feature{
			{Geom: rect(1, 1, 4, 4), Attrs: []vector.Value{vector.String("Alpha"), vector.Number(100), vector.Number(11)}},
			{Geom: rect(8, 2, 12, 5), Attrs: []vector.Value{vector.String("Bravo"), vector.Number(50), vector.Number(12)}},
			{Geom: rect(15, 1, 18, 4), Attrs: []vector.Value{vector.String("Charlie"), vector.Number(200), vector.Number(13)}},
			{Geom: rect(30, 30, 31, 31), Attrs: []vector.Value{vector.String("Delta"), vector.Number(10), vector.Number(14)}},
		},
	}
	return counties, wards
}

func TestSpatialJoin_Inner(t *testing.T) {
	counties, wards := fixtures()

	joined, err := SpatialJoin(counties, wards, JoinOptions{How: Inner, LSuffix: "left", RSuffix: "right"})
	require.NoError(t, err)

	names := make([]string, len(joined.Columns))
	for i, c := range joined.Columns {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"CountyName", "Code_left", IndexRight, "Ward", "Population", "Code_right"}, names)

	require.Equal(t, 4, joined.Len())
	county, err := joined.Strings("CountyName")
	require.NoError(t, err)
	assert.Equal(t, []string{"ANTRIM", "ANTRIM", "DOWN", "DOWN"}, county)

	ward, err := joined.Strings("Ward")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Bravo", "Bravo", "Charlie"}, ward)

	idx, err := joined.Numbers(IndexRight)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 1, 2}, idx)

	// A bare colliding name resolves to the right-hand column.
	code, err := joined.Numbers("Code")
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 12, 12, 13}, code)

	assert.Len(t, joined.Geoms, 4)
}

func TestSpatialJoin_Left(t *testing.T) {
	counties, wards := fixtures()
	joined, err := SpatialJoin(wards, counties, JoinOptions{How: Left})
	require.NoError(t, err)

	require.Equal(t, 5, joined.Len())
	county, err := joined.Column("CountyName")
	require.NoError(t, err)
	assert.False(t, county[4].Valid, "unmatched ward keeps a null county")
}

func TestSpatialJoin_Errors(t *testing.T) {
	counties, wards := fixtures()

	_, err := SpatialJoin(counties, wards, JoinOptions{How: "outer"})
	assert.Error(t, err)

	wards.CRS = crs.Geographic()
	_, err = SpatialJoin(counties, wards, JoinOptions{})
	assert.Error(t, err)
}

func TestGroupSum(t *testing.T) {
	counties, wards := fixtures()
	joined, err := SpatialJoin(counties, wards, JoinOptions{})
	require.NoError(t, err)

	s, err := GroupSum(joined, "CountyName", "Population")
	require.NoError(t, err)
	assert.Equal(t, []string{"ANTRIM", "DOWN"}, s.Keys)
	assert.Equal(t, []float64{150, 250}, s.Values)

	v, ok := s.Get("DOWN")
	assert.True(t, ok)
	assert.Equal(t, 250.0, v)
	_, ok = s.Get("ARMAGH")
	assert.False(t, ok)

	k, v, err := s.IdxMax()
	require.NoError(t, err)
	assert.Equal(t, "DOWN", k)
	assert.Equal(t, 250.0, v)

	k, v, err = s.IdxMin()
	require.NoError(t, err)
	assert.Equal(t, "ANTRIM", k)
	assert.Equal(t, 150.0, v)

	_, err = GroupSum(joined, "Nope", "Population")
	assert.Error(t, err)
}

func TestSeries_Empty(t *testing.T) {
	s := &Series{Name: "x"}
	_, _, err := s.IdxMax()
	assert.Error(t, err)
	_, _, err = s.IdxMin()
	assert.Error(t, err)
}

func TestSeries_TiesKeepFirst(t *testing.T) {
	s := &Series{Keys: []string{"a", "b", "c"}, Values: []float64{3, 3, 1}}
	k, _, err := s.IdxMax()
	require.NoError(t, err)
	assert.Equal(t, "a", k)
}

func TestColumnExtremes(t *testing.T) {
	_, wards := fixtures()
	wards.Features[0].Attrs[1] = vector.Null(vector.KindNumber)

	maxes, mins := ColumnExtremes(wards)
	require.Len(t, maxes, 3)
	assert.Equal(t, "Delta", maxes[0].Value.Str)
	assert.Equal(t, "Alpha", mins[0].Value.Str)
	assert.Equal(t, 200.0, maxes[1].Value.Num)
	assert.Equal(t, 10.0, mins[1].Value.Num)
}

func TestRowWithMaxMin(t *testing.T) {
	_, wards := fixtures()

	i, err := RowWithMax(wards, "Population")
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	i, err = RowWithMin(wards, "Population")
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	for j := range wards.Features {
		wards.Features[j].Attrs[1] = vector.Null(vector.KindNumber)
	}
	_, err = RowWithMax(wards, "Population")
	assert.Error(t, err)
}

func TestDuplicates(t *testing.T) {
	table := &Table{
		Columns: []vector.Field{{Name: "Ward", Kind: vector.KindString}, {Name: "Population", Kind: vector.KindNumber}},
		Rows: [][]vector.Value{
			{vector.String("a"), vector.Number(1)},
			{vector.String("b"), vector.Number(2)},
			{vector.String("a"), vector.Number(1)},
			{vector.String("c"), vector.Number(4)},
			{vector.String("b"), vector.Number(2)},
			{vector.String("a"), vector.Number(1)},
		},
	}

	dup, err := Duplicated(table, "Ward")
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true, false, true, true}, dup)

	vals, err := DuplicateValues(table, "Ward")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, vals)

	sum, err := SumWhereIn(table, "Ward", vals, "Population")
	require.NoError(t, err)
	assert.Equal(t, 7.0, sum)

	sum, err = SumWhereIn(table, "Ward", nil, "Population")
	require.NoError(t, err)
	assert.Equal(t, 0.0, sum)
}

func TestDensityColumns(t *testing.T) {
	_, wards := fixtures()
	wards.Features = append(wards.Features, vector.Feature{
		Attrs: []vector.Value{vector.String("Empty"), vector.Number(5), vector.Number(15)},
	})

	require.NoError(t, AddAreaColumn(wards, "Area_KMsq", 1))
	require.NoError(t, AddDensityColumn(wards, "PopDen", "Population", "Area_KMsq"))

	area, err := wards.Numbers("Area_KMsq")
	require.NoError(t, err)
	assert.Equal(t, 9.0, area[0])
	assert.True(t, math.IsNaN(area[4]))

	den, err := wards.Numbers("PopDen")
	require.NoError(t, err)
	assert.InDelta(t, 100.0/9, den[0], 1e-12)
	assert.InDelta(t, 50.0/12, den[1], 1e-12)
	assert.True(t, math.IsNaN(den[4]))
}

func TestAddAreaColumn_Km2(t *testing.T) {
	l := &vector.Layer{
		CRS:      crs.UTM(29, true),
		Fields:   []vector.Field{},
		Features: []vector.Feature{{Geom: rect(0, 0, 2000, 3000), Attrs: []vector.Value{}}},
	}
	require.NoError(t, AddAreaColumn(l, "Area_KMsq", SquareMetresPerKm2))
	v, err := l.Value(0, "Area_KMsq")
	require.NoError(t, err)
	assert.Equal(t, 6.0, v.Num)
}

func TestAddAreaColumn_Errors(t *testing.T) {
	_, wards := fixtures()
	assert.Error(t, AddAreaColumn(wards, "A", 0))

	wards.CRS = crs.Geographic()
	assert.Error(t, AddAreaColumn(wards, "A", 1))
}

func TestAddDensityColumn_ZeroArea(t *testing.T) {
	_, wards := fixtures()
	zeros := make([]vector.Value, wards.Len())
	for i := range zeros {
		zeros[i] = vector.Number(0)
	}
	require.NoError(t, wards.AddColumn(vector.Field{Name: "A", Kind: vector.KindNumber}, zeros))
	require.NoError(t, AddDensityColumn(wards, "D", "Population", "A"))
	den, _ := wards.Column("D")
	for _, v := range den {
		assert.False(t, v.Valid)
	}
}

func TestSummarizeWards(t *testing.T) {
	counties, wards := fixtures()
	joined, err := SpatialJoin(counties, wards, JoinOptions{})
	require.NoError(t, err)

	s, err := SummarizeWards(joined, wards, SummaryOptions{})
	require.NoError(t, err)

	assert.Equal(t, KeyedValue{Key: "DOWN", Value: 250}, s.MaxCounty)
	assert.Equal(t, KeyedValue{Key: "ANTRIM", Value: 150}, s.MinCounty)
	assert.Equal(t, KeyedValue{Key: "Charlie", Value: 200}, s.MaxWard)
	assert.Equal(t, KeyedValue{Key: "Delta", Value: 10}, s.MinWard)
	assert.Equal(t, []string{"Bravo"}, s.MultiCountyWards)
	assert.Equal(t, 100.0, s.MultiCountyPopulation)
	assert.Len(t, s.ColumnMax, 3)
}

func TestSummarizeWards_EmptyJoin(t *testing.T) {
	counties, wards := fixtures()
	wards.Features = wards.Features[3:]
	joined, err := SpatialJoin(counties, wards, JoinOptions{})
	require.NoError(t, err)

	_, err = SummarizeWards(joined, wards, SummaryOptions{})
	assert.Error(t, err)
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Antrim", TitleCase("ANTRIM"))
	assert.Equal(t, "Londonderry City", TitleCase("LONDONDERRY CITY"))
}
