package main

import (
	"math"
	"strings"

	"github.com/fogleman/gg"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/egm722/geomap-cli/internal/raster"
)

type stretchOptions struct {
	Input   string
	Output  string
	Stretch raster.StretchArgs
	PNG     bool
	Bands   [3]int
	Deflate bool
}

var stretchCmd = &cobra.Command{
	Use:   "stretch <input.tif>",
	Short: "Percentile-stretch every band of a GeoTIFF",
	Long: `Rescales each band of a GeoTIFF to [0, 1] between the pmin and pmax
percentiles and writes a float32 GeoTIFF with the same georeferencing.
With --png the selected bands are written as an RGB PNG instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := stretchOptionsFromFlags(cmd, args[0])
		if err != nil {
			return err
		}
		return runStretch(opts)
	},
}

func stretchOptionsFromFlags(cmd *cobra.Command, input string) (stretchOptions, error) {
	f := cmd.Flags()
	opts := stretchOptions{
		Input:   input,
		Stretch: raster.StretchArgs{PMin: cfg.Stretch.PMin, PMax: cfg.Stretch.PMax},
	}
	if f.Changed("pmin") {
		opts.Stretch.PMin, _ = f.GetFloat64("pmin")
	}
	if f.Changed("pmax") {
		opts.Stretch.PMax, _ = f.GetFloat64("pmax")
	}
	if err := opts.Stretch.Validate(); err != nil {
		return opts, eris.Wrap(err, "stretch")
	}
	opts.PNG, _ = f.GetBool("png")
	opts.Deflate, _ = f.GetBool("deflate")
	bands, _ := f.GetString("bands")
	var err error
	if opts.Bands, err = parseBands(bands); err != nil {
		return opts, err
	}
	opts.Output, _ = f.GetString("out")
	if opts.Output == "" {
		opts.Output = stretchOutput(opts.Input, opts.PNG)
	}
	return opts, nil
}

// stretchOutput derives the default output name from the input, e.g.
// NI_Mosaic.tif becomes NI_Mosaic_stretched.tif.
func stretchOutput(input string, png bool) string {
	base := input
	if i := strings.LastIndex(base, "."); i > strings.LastIndexAny(base, `/\`) {
		base = base[:i]
	}
	if png {
		return base + "_stretched.png"
	}
	return base + "_stretched.tif"
}

func runStretch(opts stretchOptions) error {
	log := zap.L().With(zap.String("command", "stretch"))

	img, err := raster.ReadGeoTIFF(opts.Input)
	if err != nil {
		return err
	}

	if opts.PNG {
		rgb, err := raster.Composite(img, opts.Bands, opts.Stretch)
		if err != nil {
			return err
		}
		if err := gg.SavePNG(opts.Output, rgb); err != nil {
			return eris.Wrapf(err, "stretch: save %s", opts.Output)
		}
		log.Info("composite written", zap.String("path", opts.Output))
		return nil
	}

	st, err := raster.StretchBands(img, opts.Stretch)
	if err != nil {
		return err
	}
	nodata := math.NaN()
	out := &raster.Image{
		Pixels:    st,
		Transform: img.Transform,
		CRS:       img.CRS,
		NoData:    &nodata,
	}
	if err := raster.WriteGeoTIFF(opts.Output, out, raster.WriteOptions{
		Type:    raster.Float32,
		Deflate: opts.Deflate,
	}); err != nil {
		return err
	}
	log.Info("stretched raster written",
		zap.String("path", opts.Output),
		zap.Int("bands", out.NumBands()),
		zap.Float64("pmin", opts.Stretch.PMin),
		zap.Float64("pmax", opts.Stretch.PMax),
	)
	return nil
}

func init() {
	f := stretchCmd.Flags()
	f.String("out", "", "output path (default <input>_stretched.tif or .png)")
	f.Float64("pmin", 0, "lower percentile (default stretch.pmin)")
	f.Float64("pmax", 100, "upper percentile (default stretch.pmax)")
	f.Bool("png", false, "write an RGB PNG of --bands instead of a GeoTIFF")
	f.String("bands", "1,2,3", "one-based bands for --png as red,green,blue")
	f.Bool("deflate", false, "compress GeoTIFF strips with deflate")
	rootCmd.AddCommand(stretchCmd)
}
