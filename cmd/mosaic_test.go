package main

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/egm722/geomap-cli/internal/raster"
	"github.com/egm722/geomap-cli/internal/render"
	"github.com/egm722/geomap-cli/internal/vector"
)

func testMosaicOptions(t *testing.T) mosaicOptions {
	t.Helper()
	dir := t.TempDir()

	outline := namedLayer(rect(fx0-1000, fy0-1000, fx0+21000, fy0+11000))
	water := namedLayer(rect(fx0+2000, fy0+2000, fx0+3000, fy0+3000))
	rivers := namedLayer(geom.NewLineString(geom.XY).MustSetCoords([]geom.Coord{
		{fx0 + 500, fy0 + 500}, {fx0 + 9000, fy0 + 9000}, {fx0 + 19000, fy0 + 4000},
	}))
	towns := namedLayer(
		geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{fx0 + 5000, fy0 + 5000}),
		geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{fx0 + 15000, fy0 + 7000}),
	)

	style := render.DefaultMosaicStyle()
	style.Figure = render.FigureOptions{Width: 4, Height: 4, DPI: 30}
	return mosaicOptions{
		MosaicPath: writeMosaic(t, dir),
		Layers: map[string]string{
			"outline":  writeLayer(t, dir, "outline", outline),
			"counties": writeLayer(t, dir, "counties", countiesLayer()),
			"water":    writeLayer(t, dir, "water", water),
			"rivers":   writeLayer(t, dir, "rivers", rivers),
			"towns":    writeLayer(t, dir, "towns", towns),
		},
		Extent:  "outline",
		Bands:   [3]int{0, 1, 2},
		Stretch: raster.StretchArgs{PMin: 2, PMax: 98},
		Style:   style,
		MapPath: filepath.Join(dir, "maps", "mosaic_map.png"),
	}
}

func TestRunMosaic(t *testing.T) {
	opts := testMosaicOptions(t)
	require.NoError(t, runMosaic(context.Background(), opts))

	f, err := os.Open(opts.MapPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 120, img.Bounds().Dx())
	assert.Equal(t, 120, img.Bounds().Dy())
}

func TestRunMosaic_DPIOverride(t *testing.T) {
	opts := testMosaicOptions(t)
	opts.DPI = 20
	require.NoError(t, runMosaic(context.Background(), opts))

	f, err := os.Open(opts.MapPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	pc, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 80, pc.Width)
}

func TestRunMosaic_Errors(t *testing.T) {
	t.Run("unknown dataset", func(t *testing.T) {
		opts := testMosaicOptions(t)
		opts.Style.Layers = append(opts.Style.Layers, render.LayerStyle{Name: "roads", Kind: render.KindFeature})
		err := runMosaic(context.Background(), opts)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"roads"`)
	})
	t.Run("band out of range", func(t *testing.T) {
		opts := testMosaicOptions(t)
		opts.Bands = [3]int{0, 1, 5}
		assert.Error(t, runMosaic(context.Background(), opts))
	})
	t.Run("missing mosaic", func(t *testing.T) {
		opts := testMosaicOptions(t)
		opts.MosaicPath = filepath.Join(t.TempDir(), "none.tif")
		assert.Error(t, runMosaic(context.Background(), opts))
	})
}

func TestFeatureHandles(t *testing.T) {
	counties := countiesLayer()
	counties.Features = append(counties.Features, vector.Feature{
		Geom:  rect(0, 0, 1, 1),
		Attrs: []vector.Value{vector.String("ANTRIM")},
	})
	ls := render.LayerStyle{
		Name: "counties", Kind: render.KindFeature, LabelFrom: "CountyName",
		Feature: render.FeatureStyle{Face: "none", Edge: "k", Colors: render.CountyColors, Alpha: 0.25},
	}

	handles, labels, err := featureHandles(counties, ls)
	require.NoError(t, err)
	assert.Equal(t, []string{"Antrim", "Down"}, labels)
	require.Len(t, handles, 2)
	assert.Equal(t, render.WithAlpha(render.MustColor("firebrick"), 0.25), handles[0].Face)
	assert.Equal(t, render.WithAlpha(render.MustColor("seagreen"), 0.25), handles[1].Face)

	rivers := render.LayerStyle{Name: "rivers", Label: "Rivers", Feature: render.FeatureStyle{Face: "none", Edge: "royalblue", LineWidth: 0.2}}
	handles, labels, err = featureHandles(namedLayer(), rivers)
	require.NoError(t, err)
	assert.Equal(t, []string{"Rivers"}, labels)
	assert.Equal(t, render.LineHandle, handles[0].Kind)

	water := render.LayerStyle{Name: "water", Feature: render.FeatureStyle{Face: "mediumblue", Edge: "mediumblue"}}
	handles, labels, err = featureHandles(namedLayer(), water)
	require.NoError(t, err)
	assert.Equal(t, []string{"Water"}, labels)
	assert.Equal(t, render.PatchHandle, handles[0].Kind)
}
