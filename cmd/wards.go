package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/egm722/geomap-cli/internal/analysis"
	"github.com/egm722/geomap-cli/internal/crs"
	"github.com/egm722/geomap-cli/internal/db"
	"github.com/egm722/geomap-cli/internal/export"
	"github.com/egm722/geomap-cli/internal/render"
	"github.com/egm722/geomap-cli/internal/vector"
)

// Derived ward columns.
const (
	areaColumn    = "Area_KMsq"
	densityColumn = "PopDen"
)

// wardsOptions is the resolved input of the wards pipeline.
type wardsOptions struct {
	WardsPath    string
	CountiesPath string
	EPSG         int

	Column   string
	Colormap string
	VMin     float64
	VMax     float64
	Label    string
	Figure   render.FigureOptions
	Grid     render.GridOptions
	MapPath  string

	CSVDir      string
	XLSXPath    string
	GeoJSONPath string
	ShapePath   string
	SQLitePath  string

	PostGIS     bool
	DatabaseURL string
	Schema      string
}

// wardsResult is what a wards run produced.
type wardsResult struct {
	Summary  *analysis.CountySummary
	Wards    *vector.Layer
	Counties *vector.Layer
	RunID    string
}

var wardsCmd = &cobra.Command{
	Use:   "wards",
	Short: "Join wards to counties, summarise population and map density",
	Long: `Reads the ward and county shapefiles, reprojects them to the analysis CRS,
spatially joins counties to wards and prints per-county population totals,
the most and least populous counties and wards, and wards that straddle a
county boundary. Adds area and population density columns to the wards and
renders a density choropleth with county outlines.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts, err := wardsOptionsFromFlags(cmd)
		if err != nil {
			return err
		}
		_, err = runWards(ctx, cmd.OutOrStdout(), opts)
		return err
	},
}

func wardsOptionsFromFlags(cmd *cobra.Command) (wardsOptions, error) {
	f := cmd.Flags()
	opts := wardsOptions{
		WardsPath:    cfg.Data.Path(cfg.Data.Wards),
		CountiesPath: cfg.Data.Path(cfg.Data.Counties),
		EPSG:         cfg.CRS.EPSG,
		Colormap:     cfg.Render.Colormap,
		VMin:         cfg.Render.VMin,
		VMax:         cfg.Render.VMax,
		Figure: render.FigureOptions{
			Width:  cfg.Render.Width,
			Height: cfg.Render.Height,
			DPI:    cfg.Render.DPI,
		},
		Grid: render.GridOptions{
			XLocs:  cfg.Render.GridX,
			YLocs:  cfg.Render.GridY,
			Labels: true,
			Left:   true,
			Top:    true,
		},
		SQLitePath:  cfg.Export.SQLitePath,
		DatabaseURL: cfg.Export.DatabaseURL,
		Schema:      cfg.Export.Schema,
	}

	if v, _ := f.GetString("wards"); v != "" {
		opts.WardsPath = v
	}
	if v, _ := f.GetString("counties"); v != "" {
		opts.CountiesPath = v
	}

	column, _ := f.GetString("column")
	switch strings.ToLower(column) {
	case "", "popden", "density":
		opts.Column = densityColumn
		opts.Label = "Population Density (residents per sqkm)"
	case "population":
		opts.Column = "Population"
		opts.Label = "Resident Population"
		opts.VMin, opts.VMax = 1000, 8000
	default:
		return opts, eris.Errorf("wards: unknown column %q (want popden or population)", column)
	}

	if f.Changed("vmin") {
		opts.VMin, _ = f.GetFloat64("vmin")
	}
	if f.Changed("vmax") {
		opts.VMax, _ = f.GetFloat64("vmax")
	}
	if v, _ := f.GetFloat64("dpi"); v > 0 {
		opts.Figure.DPI = v
	}

	out, _ := f.GetString("out")
	if out == "" {
		out = cfg.Output.Path("sample_map.png")
	}
	opts.MapPath = out

	opts.CSVDir, _ = f.GetString("csv")
	opts.XLSXPath, _ = f.GetString("xlsx")
	opts.GeoJSONPath, _ = f.GetString("geojson")
	opts.ShapePath, _ = f.GetString("write-shp")
	if v, _ := f.GetString("sqlite"); v != "" {
		opts.SQLitePath = v
	}
	opts.PostGIS, _ = f.GetBool("postgis")
	return opts, nil
}

// runWards executes the ward/county pipeline and prints the summary to w.
func runWards(ctx context.Context, w io.Writer, opts wardsOptions) (*wardsResult, error) {
	log := zap.L().With(zap.String("command", "wards"))

	dst, err := crs.FromEPSG(opts.EPSG)
	if err != nil {
		return nil, eris.Wrap(err, "wards: analysis crs")
	}

	layers, err := loadLayers(ctx, map[string]string{
		"wards":    opts.WardsPath,
		"counties": opts.CountiesPath,
	}, dst)
	if err != nil {
		return nil, err
	}
	wards, counties := layers["wards"], layers["counties"]
	log.Info("layers loaded",
		zap.Int("wards", wards.Len()),
		zap.Int("counties", counties.Len()),
		zap.String("crs", dst.String()),
	)

	joined, err := analysis.SpatialJoin(counties, wards, analysis.JoinOptions{
		How:     analysis.Inner,
		LSuffix: "left",
		RSuffix: "right",
	})
	if err != nil {
		return nil, eris.Wrap(err, "wards: join")
	}
	sum, err := analysis.SummarizeWards(joined, wards, analysis.SummaryOptions{})
	if err != nil {
		return nil, eris.Wrap(err, "wards: summarise")
	}
	printSummary(w, sum)

	if err := analysis.AddAreaColumn(wards, areaColumn, analysis.SquareMetresPerKm2); err != nil {
		return nil, eris.Wrap(err, "wards: area")
	}
	if err := analysis.AddDensityColumn(wards, densityColumn, "Population", areaColumn); err != nil {
		return nil, eris.Wrap(err, "wards: density")
	}

	res := &wardsResult{Summary: sum, Wards: wards, Counties: counties}

	if err := renderWardsMap(wards, counties, dst, opts); err != nil {
		return nil, err
	}
	log.Info("map saved", zap.String("path", opts.MapPath))

	if err := writeWardsExports(ctx, res, opts, log); err != nil {
		return nil, err
	}
	return res, nil
}

// printSummary writes the population report.
func printSummary(out io.Writer, s *analysis.CountySummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COUNTY\tPOPULATION")
	_, _ = fmt.Fprintln(w, "------\t----------")
	for i, k := range s.Populations.Keys {
		_, _ = fmt.Fprintf(w, "%s\t%.0f\n", k, s.Populations.Values[i])
	}
	_ = w.Flush()
	_, _ = fmt.Fprintln(out)

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Most populous county:\t%s\t(%.0f)\n", s.MaxCounty.Key, s.MaxCounty.Value)
	_, _ = fmt.Fprintf(w, "Least populous county:\t%s\t(%.0f)\n", s.MinCounty.Key, s.MinCounty.Value)
	_, _ = fmt.Fprintf(w, "Most populous ward:\t%s\t(%.0f)\n", s.MaxWard.Key, s.MaxWard.Value)
	_, _ = fmt.Fprintf(w, "Least populous ward:\t%s\t(%.0f)\n", s.MinWard.Key, s.MinWard.Value)
	_ = w.Flush()
	_, _ = fmt.Fprintln(out)

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COLUMN\tMAX\tMIN")
	_, _ = fmt.Fprintln(w, "------\t---\t---")
	for i := range s.ColumnMax {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.ColumnMax[i].Field.Name, s.ColumnMax[i].Value, s.ColumnMin[i].Value)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintln(out)

	_, _ = fmt.Fprintf(out, "Wards in more than one county: %d\n", len(s.MultiCountyWards))
	for _, name := range s.MultiCountyWards {
		_, _ = fmt.Fprintf(out, "  %s\n", name)
	}
	_, _ = fmt.Fprintf(out, "Total population of those wards: %.0f\n", s.MultiCountyPopulation)
}

func renderWardsMap(wards, counties *vector.Layer, dst crs.CRS, opts wardsOptions) error {
	figOpts := opts.Figure
	figOpts.CRS = dst
	fig, err := render.NewFigure(figOpts)
	if err != nil {
		return err
	}
	ax := fig.Axes()
	ax.Gridlines(opts.Grid)

	norm, err := ax.AddChoropleth(wards, opts.Column, render.ChoroplethStyle{
		Colormap: opts.Colormap,
		VMin:     opts.VMin,
		VMax:     opts.VMax,
	})
	if err != nil {
		return eris.Wrap(err, "wards: choropleth")
	}
	if err := ax.Colorbar(norm, render.ColorbarOptions{Label: opts.Label, Size: 0.05, Pad: 0.1}); err != nil {
		return err
	}
	if err := ax.AddFeature(counties, render.FeatureStyle{Face: "none", Edge: "r"}); err != nil {
		return eris.Wrap(err, "wards: county outlines")
	}

	handles, err := render.GenerateHandles([]string{""}, []string{"none"}, "r", 1)
	if err != nil {
		return err
	}
	if err := ax.Legend(handles, []string{"County Boundaries"}, render.LegendOptions{
		Loc:        "upper left",
		FontSize:   12,
		FrameAlpha: 1,
	}); err != nil {
		return err
	}
	if dir := filepath.Dir(opts.MapPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "wards: create %s", dir)
		}
	}
	return fig.SavePNG(opts.MapPath)
}

func writeWardsExports(ctx context.Context, res *wardsResult, opts wardsOptions, log *zap.Logger) error {
	cols := export.WardColumns{Ward: "Ward", Population: "Population", Area: areaColumn, Density: densityColumn}

	if opts.CSVDir != "" {
		if err := export.WriteCSV(filepath.Join(opts.CSVDir, "county_population.csv"), export.PopulationRows(res.Summary)); err != nil {
			return err
		}
		rows, err := export.WardRows(res.Wards, cols)
		if err != nil {
			return err
		}
		if err := export.WriteCSV(filepath.Join(opts.CSVDir, "wards.csv"), rows); err != nil {
			return err
		}
	}

	if opts.XLSXPath != "" {
		rows, err := export.WardRows(res.Wards, cols)
		if err != nil {
			return err
		}
		if err := export.WriteXLSX(opts.XLSXPath,
			export.PopulationSheet(export.PopulationRows(res.Summary)),
			export.WardSheet(rows),
			export.ExtremesSheet(res.Summary),
		); err != nil {
			return err
		}
	}

	if opts.GeoJSONPath != "" {
		if err := export.WriteGeoJSON(opts.GeoJSONPath, res.Wards); err != nil {
			return err
		}
	}

	if opts.ShapePath != "" {
		if err := vector.WriteShapefile(opts.ShapePath, res.Wards); err != nil {
			return err
		}
		log.Info("wards shapefile written", zap.String("path", opts.ShapePath))
	}

	if opts.SQLitePath != "" {
		st, err := export.NewSQLite(opts.SQLitePath)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		run, err := st.SaveRun(ctx, "wards", opts.WardsPath, res.Summary)
		if err != nil {
			return err
		}
		res.RunID = run.ID
		log.Info("run recorded", zap.String("run_id", run.ID), zap.String("db", opts.SQLitePath))
	}

	if opts.PostGIS {
		pool, err := openPool(ctx, opts.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := loadWardsPostGIS(ctx, pool, res, opts.Schema); err != nil {
			return err
		}
	}
	return nil
}

// loadWardsPostGIS replaces the wards and counties tables and upserts the
// county totals under the run ID.
func loadWardsPostGIS(ctx context.Context, pool db.Pool, res *wardsResult, schema string) error {
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}
	if _, err := export.LoadPostGIS(ctx, pool, schema, "wards", res.Wards, true); err != nil {
		return eris.Wrap(err, "wards: postgis wards")
	}
	if _, err := export.LoadPostGIS(ctx, pool, schema, "counties", res.Counties, true); err != nil {
		return eris.Wrap(err, "wards: postgis counties")
	}
	if _, err := export.SavePopulations(ctx, pool, schema, res.RunID, res.Summary); err != nil {
		return eris.Wrap(err, "wards: postgis populations")
	}
	return nil
}

func init() {
	f := wardsCmd.Flags()
	f.String("wards", "", "ward shapefile (default data.dir/data.wards)")
	f.String("counties", "", "county shapefile (default data.dir/data.counties)")
	f.String("column", "popden", "column to map: popden or population")
	f.Float64("vmin", 0, "colormap minimum (default render.vmin, or 1000 for population)")
	f.Float64("vmax", 0, "colormap maximum (default render.vmax, or 8000 for population)")
	f.Float64("dpi", 0, "figure resolution (default render.dpi)")
	f.String("out", "", "map output path (default output.dir/sample_map.png)")
	f.String("csv", "", "directory for county_population.csv and wards.csv")
	f.String("xlsx", "", "write a workbook of populations, wards and extremes")
	f.String("geojson", "", "write the wards with derived columns as GeoJSON")
	f.String("write-shp", "", "write the wards with derived columns as a shapefile")
	f.String("sqlite", "", "record the run in a SQLite database (default export.sqlite_path)")
	f.Bool("postgis", false, "load wards, counties and county totals into PostGIS")
	rootCmd.AddCommand(wardsCmd)
}
