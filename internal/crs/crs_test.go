package crs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEPSG(t *testing.T) {
	tests := []struct {
		code int
		name string
	}{
		{4326, "WGS 84"},
		{3857, "WGS 84 / Pseudo-Mercator"},
		{32629, "WGS 84 / UTM zone 29N"},
		{32730, "WGS 84 / UTM zone 30S"},
		{29902, "TM65 / Irish Grid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := FromEPSG(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.code, c.EPSG)
			assert.Equal(t, tt.name, c.Name)
			assert.NotEmpty(t, c.Def)
		})
	}
}

func TestFromEPSG_Unsupported(t *testing.T) {
	_, err := FromEPSG(2157)
	assert.Error(t, err)
}

func TestParseEPSG(t *testing.T) {
	c, err := ParseEPSG("EPSG:32629")
	require.NoError(t, err)
	assert.Equal(t, 32629, c.EPSG)

	c, err = ParseEPSG(" 4326 ")
	require.NoError(t, err)
	assert.True(t, c.IsGeographic())

	_, err = ParseEPSG("utm29")
	assert.Error(t, err)
}

func TestFromWKT_UTMName(t *testing.T) {
	c := FromWKT(UTM(29, true).WKT())
	assert.Equal(t, 32629, c.EPSG)
	assert.Equal(t, "WGS_1984_UTM_Zone_29N", c.Name)
}

func TestFromWKT_Authority(t *testing.T) {
	wkt := `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]`
	c := FromWKT(wkt)
	assert.Equal(t, 4326, c.EPSG)
	assert.Equal(t, "WGS 84", c.Name)
}

func TestFromWKT_Unknown(t *testing.T) {
	c := FromWKT(`PROJCS["Some_Local_Grid",GEOGCS["GCS_Local"]]`)
	assert.Equal(t, 0, c.EPSG)
	assert.Equal(t, "Some_Local_Grid", c.Name)
	assert.False(t, c.IsZero())
}

func TestFromPRJ(t *testing.T) {
	dir := t.TempDir()

	_, ok, err := FromPRJ(filepath.Join(dir, "missing.prj"))
	require.NoError(t, err)
	assert.False(t, ok)

	path := filepath.Join(dir, "wards.prj")
	require.NoError(t, os.WriteFile(path, []byte(Geographic().WKT()), 0o644))
	c, ok, err := FromPRJ(path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4326, c.EPSG)
}

func TestTransform_Identity(t *testing.T) {
	tr, err := Transform(UTM(29, true), UTM(29, true))
	require.NoError(t, err)
	x, y, err := tr(123.5, 456.25)
	require.NoError(t, err)
	assert.Equal(t, 123.5, x)
	assert.Equal(t, 456.25, y)
}

func TestTransform_GeographicToMercator(t *testing.T) {
	tr, err := Transform(Geographic(), Mercator())
	require.NoError(t, err)
	x, y, err := tr(-6, 54)
	require.NoError(t, err)
	assert.InDelta(t, -667916.94, x, 1)
	assert.InDelta(t, 7170156.29, y, 1)
}

func TestTransform_GeographicToUTMCentralMeridian(t *testing.T) {
	tr, err := Transform(Geographic(), UTM(29, true))
	require.NoError(t, err)
	x, y, err := tr(-9, 54)
	require.NoError(t, err)
	assert.InDelta(t, 500000, x, 0.5)
	assert.InDelta(t, 5983521.7, y, 5)
}

func TestTransform_RoundTrip(t *testing.T) {
	fwd, err := Transform(Geographic(), UTM(29, true))
	require.NoError(t, err)
	inv, err := Transform(UTM(29, true), Geographic())
	require.NoError(t, err)

	x, y, err := fwd(-6.5, 54.6)
	require.NoError(t, err)
	lon, lat, err := inv(x, y)
	require.NoError(t, err)
	assert.InDelta(t, -6.5, lon, 1e-6)
	assert.InDelta(t, 54.6, lat, 1e-6)
}

func TestUTMZone(t *testing.T) {
	assert.Equal(t, 29, UTMZone(-7.5))
	assert.Equal(t, 30, UTMZone(-5.5))
	assert.Equal(t, 1, UTMZone(-180))
	assert.Equal(t, 60, UTMZone(180))
}

func TestCRS_String(t *testing.T) {
	assert.Equal(t, "EPSG:32629", UTM(29, true).String())
	assert.Equal(t, "unknown", CRS{}.String())
	assert.Equal(t, "Local", CRS{Name: "Local"}.String())
}
