package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/egm722/geomap-cli/internal/raster"
	"github.com/egm722/geomap-cli/internal/vector"
)

var infoCmd = &cobra.Command{
	Use:   "info <file.shp|file.tif>",
	Short: "Describe a shapefile or GeoTIFF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return describe(cmd.OutOrStdout(), args[0])
	},
}

func describe(w io.Writer, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		l, err := vector.ReadShapefile(path)
		if err != nil {
			return err
		}
		describeLayer(w, l)
		return nil
	case ".tif", ".tiff":
		img, err := raster.ReadGeoTIFF(path)
		if err != nil {
			return err
		}
		return describeImage(w, img)
	}
	return eris.Errorf("info: unsupported file type %q", filepath.Ext(path))
}

func describeLayer(out io.Writer, l *vector.Layer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Layer:\t%s\n", l.Name)
	_, _ = fmt.Fprintf(w, "CRS:\t%s\n", l.CRS)
	_, _ = fmt.Fprintf(w, "Features:\t%d\n", l.Len())
	if b := l.TotalBounds(); !b.Empty() {
		_, _ = fmt.Fprintf(w, "Bounds:\t%g, %g, %g, %g\n", b.MinX, b.MinY, b.MaxX, b.MaxY)
	}
	_ = w.Flush()

	if len(l.Fields) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FIELD\tTYPE\tSIZE")
	_, _ = fmt.Fprintln(w, "-----\t----\t----")
	for _, f := range l.Fields {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", f.Name, f.Kind, f.Size)
	}
	_ = w.Flush()
}

func describeImage(out io.Writer, img *raster.Image) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Size:\t%d x %d\n", img.Width(), img.Height())
	_, _ = fmt.Fprintf(w, "Bands:\t%d\n", img.NumBands())
	_, _ = fmt.Fprintf(w, "CRS:\t%s\n", img.CRS)
	b := img.Bounds()
	_, _ = fmt.Fprintf(w, "Bounds:\t%g, %g, %g, %g\n", b.MinX, b.MinY, b.MaxX, b.MaxY)
	dx, dy := img.Resolution()
	_, _ = fmt.Fprintf(w, "Resolution:\t%g, %g\n", dx, dy)
	if img.NoData != nil {
		_, _ = fmt.Fprintf(w, "NoData:\t%g\n", *img.NoData)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "BAND\tMIN\tMAX")
	_, _ = fmt.Fprintln(w, "----\t---\t---")
	for i := 0; i < img.NumBands(); i++ {
		band, err := img.Band(i)
		if err != nil {
			return err
		}
		lo, hi := raster.MinMax(band.Data)
		_, _ = fmt.Fprintf(w, "%d\t%g\t%g\n", i+1, lo, hi)
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
