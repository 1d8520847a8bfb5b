package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/egm722/geomap-cli/internal/analysis"
	"github.com/egm722/geomap-cli/internal/crs"
	"github.com/egm722/geomap-cli/internal/raster"
	"github.com/egm722/geomap-cli/internal/render"
	"github.com/egm722/geomap-cli/internal/vector"
)

// mosaicOptions is the resolved input of the mosaic pipeline. Layers maps a
// style layer name to its shapefile.
type mosaicOptions struct {
	MosaicPath string
	Layers     map[string]string
	Extent     string
	Bands      [3]int
	Stretch    raster.StretchArgs
	Style      render.Style
	DPI        float64
	MapPath    string
}

var mosaicCmd = &cobra.Command{
	Use:   "mosaic",
	Short: "Render the satellite mosaic with vector overlays",
	Long: `Reads the GeoTIFF mosaic, percentile-stretches the selected bands into an
RGB composite and draws it in Web Mercator beneath the Northern Ireland
outline, counties, lakes, rivers and towns. The map extent follows the
outline's bounds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts, err := mosaicOptionsFromFlags(cmd)
		if err != nil {
			return err
		}
		return runMosaic(ctx, opts)
	},
}

func mosaicOptionsFromFlags(cmd *cobra.Command) (mosaicOptions, error) {
	f := cmd.Flags()
	opts := mosaicOptions{
		MosaicPath: cfg.Data.Path(cfg.Data.Mosaic),
		Layers: map[string]string{
			"outline":  cfg.Data.Path(cfg.Data.Outline),
			"counties": cfg.Data.Path(cfg.Data.Counties),
			"water":    cfg.Data.Path(cfg.Data.Water),
			"rivers":   cfg.Data.Path(cfg.Data.Rivers),
			"towns":    cfg.Data.Path(cfg.Data.Towns),
		},
		Extent:  "outline",
		Stretch: raster.StretchArgs{PMin: cfg.Stretch.PMin, PMax: cfg.Stretch.PMax},
		DPI:     cfg.Render.DPI,
	}

	if v, _ := f.GetString("mosaic"); v != "" {
		opts.MosaicPath = v
	}
	bands, _ := f.GetString("bands")
	var err error
	if opts.Bands, err = parseBands(bands); err != nil {
		return opts, err
	}
	if f.Changed("pmin") {
		opts.Stretch.PMin, _ = f.GetFloat64("pmin")
	}
	if f.Changed("pmax") {
		opts.Stretch.PMax, _ = f.GetFloat64("pmax")
	}
	if err := opts.Stretch.Validate(); err != nil {
		return opts, eris.Wrap(err, "mosaic")
	}
	if v, _ := f.GetFloat64("dpi"); v > 0 {
		opts.DPI = v
	}

	stylePath, _ := f.GetString("style")
	if stylePath == "" {
		stylePath = cfg.Render.Style
	}
	if stylePath != "" {
		if opts.Style, err = render.LoadStyle(stylePath); err != nil {
			return opts, err
		}
	} else {
		opts.Style = render.DefaultMosaicStyle()
		opts.Style.Figure.Width = cfg.Render.Width
		opts.Style.Figure.Height = cfg.Render.Height
		opts.Style.Grid.XLocs = cfg.Render.GridX
		opts.Style.Grid.YLocs = cfg.Render.GridY
	}

	out, _ := f.GetString("out")
	if out == "" {
		out = cfg.Output.Path("mosaic_map.png")
	}
	opts.MapPath = out
	return opts, nil
}

// runMosaic reads the mosaic and the vector layers named by the style
// concurrently, then draws them in style order.
func runMosaic(ctx context.Context, opts mosaicOptions) error {
	log := zap.L().With(zap.String("command", "mosaic"))

	needed := map[string]string{}
	needRaster := false
	for _, ls := range opts.Style.Layers {
		if ls.Kind == render.KindRaster {
			needRaster = true
			continue
		}
		path, ok := opts.Layers[ls.Name]
		if !ok {
			return eris.Errorf("mosaic: style layer %q has no dataset", ls.Name)
		}
		needed[ls.Name] = path
	}
	if _, ok := needed[opts.Extent]; !ok && opts.Extent != "" {
		path, ok := opts.Layers[opts.Extent]
		if !ok {
			return eris.Errorf("mosaic: extent layer %q has no dataset", opts.Extent)
		}
		needed[opts.Extent] = path
	}

	var (
		img    *raster.Image
		layers map[string]*vector.Layer
	)
	g, gctx := errgroup.WithContext(ctx)
	if needRaster {
		g.Go(func() error {
			var err error
			img, err = raster.ReadGeoTIFF(opts.MosaicPath)
			return err
		})
	}
	g.Go(func() error {
		var err error
		layers, err = loadLayers(gctx, needed, crs.CRS{})
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if img != nil {
		log.Info("mosaic loaded",
			zap.String("path", opts.MosaicPath),
			zap.Int("bands", img.NumBands()),
			zap.Int("width", img.Width()),
			zap.Int("height", img.Height()),
		)
	}

	figOpts := opts.Style.Figure
	if opts.DPI > 0 {
		figOpts.DPI = opts.DPI
	}
	figOpts.CRS = crs.Mercator()
	fig, err := render.NewFigure(figOpts)
	if err != nil {
		return err
	}
	ax := fig.Axes()

	var (
		handles []render.Handle
		labels  []string
	)
	for _, ls := range opts.Style.Layers {
		switch ls.Kind {
		case render.KindRaster:
			if err := addComposite(ax, img, opts); err != nil {
				return err
			}
		case render.KindFeature:
			l := layers[ls.Name]
			if err := ax.AddFeature(l, ls.Feature); err != nil {
				return eris.Wrapf(err, "mosaic: layer %s", ls.Name)
			}
			if !ls.Legend {
				continue
			}
			h, lb, err := featureHandles(l, ls)
			if err != nil {
				return eris.Wrapf(err, "mosaic: legend for %s", ls.Name)
			}
			handles = append(handles, h...)
			labels = append(labels, lb...)
		case render.KindPoints:
			if err := ax.AddPoints(layers[ls.Name], ls.Marker); err != nil {
				return eris.Wrapf(err, "mosaic: layer %s", ls.Name)
			}
			if !ls.Legend {
				continue
			}
			h, err := render.NewMarkerHandle(ls.Marker)
			if err != nil {
				return eris.Wrapf(err, "mosaic: legend for %s", ls.Name)
			}
			handles = append(handles, h)
			labels = append(labels, labelOr(ls))
		}
	}

	if ext, ok := layers[opts.Extent]; ok {
		b := ext.TotalBounds()
		if err := ax.SetExtent(b.MinX, b.MaxX, b.MinY, b.MaxY, ext.CRS); err != nil {
			return eris.Wrap(err, "mosaic: extent")
		}
	}
	ax.Gridlines(opts.Style.Grid)
	if len(handles) > 0 {
		if err := ax.Legend(handles, labels, opts.Style.Legend); err != nil {
			return err
		}
	}

	if dir := filepath.Dir(opts.MapPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "mosaic: create %s", dir)
		}
	}
	if err := fig.SavePNG(opts.MapPath); err != nil {
		return err
	}
	log.Info("map saved", zap.String("path", opts.MapPath))
	return nil
}

func addComposite(ax *render.Axes, img *raster.Image, opts mosaicOptions) error {
	rgb, err := raster.Composite(img, opts.Bands, opts.Stretch)
	if err != nil {
		return eris.Wrap(err, "mosaic: composite")
	}
	c := img.CRS
	if c.IsZero() {
		c = defaultCRS
	}
	return ax.AddRaster(rgb, img.Bounds(), c)
}

// featureHandles builds legend entries for a feature layer. With LabelFrom
// set there is one entry per distinct value, colored like the first feature
// carrying it.
func featureHandles(l *vector.Layer, ls render.LayerStyle) ([]render.Handle, []string, error) {
	fs := ls.Feature
	if ls.LabelFrom == "" {
		var (
			h   render.Handle
			err error
		)
		if len(fs.Colors) == 0 && isNone(fs.Face) {
			h, err = render.NewLineHandle(fs.Edge, fs.LineWidth)
		} else {
			face := fs.Face
			if len(fs.Colors) > 0 {
				face = fs.Colors[0]
			}
			h, err = render.NewPatchHandle(face, fs.Edge, fs.Alpha)
		}
		if err != nil {
			return nil, nil, err
		}
		return []render.Handle{h}, []string{labelOr(ls)}, nil
	}

	names, err := l.Strings(ls.LabelFrom)
	if err != nil {
		return nil, nil, err
	}
	var (
		labels []string
		colors []string
	)
	seen := map[string]bool{}
	for i, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		labels = append(labels, analysis.TitleCase(n))
		if len(fs.Colors) > 0 {
			colors = append(colors, fs.Colors[i%len(fs.Colors)])
		} else {
			colors = append(colors, fs.Face)
		}
	}
	handles, err := render.GenerateHandles(labels, colors, fs.Edge, fs.Alpha)
	if err != nil {
		return nil, nil, err
	}
	return handles, labels, nil
}

func labelOr(ls render.LayerStyle) string {
	if ls.Label != "" {
		return ls.Label
	}
	return analysis.TitleCase(ls.Name)
}

func isNone(c string) bool {
	return c == "" || c == "none"
}

func init() {
	f := mosaicCmd.Flags()
	f.String("mosaic", "", "GeoTIFF mosaic (default data.dir/data.mosaic)")
	f.String("bands", "1,2,3", "one-based bands to display as red,green,blue")
	f.Float64("pmin", 0, "lower stretch percentile (default stretch.pmin)")
	f.Float64("pmax", 100, "upper stretch percentile (default stretch.pmax)")
	f.Float64("dpi", 0, "figure resolution (default render.dpi)")
	f.String("style", "", "YAML map style (default render.style, or the built-in style)")
	f.String("out", "", "map output path (default output.dir/mosaic_map.png)")
	rootCmd.AddCommand(mosaicCmd)
}
