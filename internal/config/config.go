package config

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data    DataConfig    `yaml:"data" mapstructure:"data"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	CRS     CRSConfig     `yaml:"crs" mapstructure:"crs"`
	Render  RenderConfig  `yaml:"render" mapstructure:"render"`
	Stretch StretchConfig `yaml:"stretch" mapstructure:"stretch"`
	Export  ExportConfig  `yaml:"export" mapstructure:"export"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// DataConfig names the input datasets, relative to Dir unless absolute.
type DataConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Wards    string `yaml:"wards" mapstructure:"wards"`
	Counties string `yaml:"counties" mapstructure:"counties"`
	Outline  string `yaml:"outline" mapstructure:"outline"`
	Water    string `yaml:"water" mapstructure:"water"`
	Rivers   string `yaml:"rivers" mapstructure:"rivers"`
	Towns    string `yaml:"towns" mapstructure:"towns"`
	Mosaic   string `yaml:"mosaic" mapstructure:"mosaic"`
}

// Path resolves a dataset file name against Dir.
func (d DataConfig) Path(name string) string {
	if name == "" || filepath.IsAbs(name) || d.Dir == "" {
		return name
	}
	return filepath.Join(d.Dir, name)
}

// OutputConfig configures where figures and exports are written.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// Path resolves an output file name against Dir.
func (o OutputConfig) Path(name string) string {
	if name == "" || filepath.IsAbs(name) || o.Dir == "" {
		return name
	}
	return filepath.Join(o.Dir, name)
}

// CRSConfig selects the analysis CRS.
type CRSConfig struct {
	EPSG int `yaml:"epsg" mapstructure:"epsg"`
}

// RenderConfig configures map figures.
type RenderConfig struct {
	Width    float64   `yaml:"width" mapstructure:"width"`
	Height   float64   `yaml:"height" mapstructure:"height"`
	DPI      float64   `yaml:"dpi" mapstructure:"dpi"`
	Colormap string    `yaml:"colormap" mapstructure:"colormap"`
	VMin     float64   `yaml:"vmin" mapstructure:"vmin"`
	VMax     float64   `yaml:"vmax" mapstructure:"vmax"`
	GridX    []float64 `yaml:"grid_x" mapstructure:"grid_x"`
	GridY    []float64 `yaml:"grid_y" mapstructure:"grid_y"`
	Style    string    `yaml:"style" mapstructure:"style"`
}

// StretchConfig holds the default percentile range.
type StretchConfig struct {
	PMin float64 `yaml:"pmin" mapstructure:"pmin"`
	PMax float64 `yaml:"pmax" mapstructure:"pmax"`
}

// ExportConfig configures optional tabular and database outputs.
type ExportConfig struct {
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.dir", "data_files")
	v.SetDefault("data.wards", "NI_Wards.shp")
	v.SetDefault("data.counties", "Counties.shp")
	v.SetDefault("data.outline", "NI_outline.shp")
	v.SetDefault("data.water", "Water.shp")
	v.SetDefault("data.rivers", "Rivers.shp")
	v.SetDefault("data.towns", "Towns.shp")
	v.SetDefault("data.mosaic", "NI_Mosaic.tif")
	v.SetDefault("output.dir", ".")
	v.SetDefault("crs.epsg", 32629)
	v.SetDefault("render.width", 10)
	v.SetDefault("render.height", 10)
	v.SetDefault("render.dpi", 100)
	v.SetDefault("render.colormap", "viridis")
	v.SetDefault("render.vmin", 0)
	v.SetDefault("render.vmax", 12000)
	v.SetDefault("render.grid_x", []float64{-8, -7.5, -7, -6.5, -6, -5.5})
	v.SetDefault("render.grid_y", []float64{54, 54.5, 55, 55.5})
	v.SetDefault("stretch.pmin", 0)
	v.SetDefault("stretch.pmax", 100)
	v.SetDefault("export.sqlite_path", "")
	v.SetDefault("export.database_url", "")
	v.SetDefault("export.schema", "geomap")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate rejects inconsistent values.
func (c *Config) Validate() error {
	r := c.Render
	if r.DPI <= 0 {
		return eris.Errorf("config: render.dpi must be positive, got %g", r.DPI)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return eris.Errorf("config: render size must be positive, got %gx%g", r.Width, r.Height)
	}
	if r.VMin >= r.VMax {
		return eris.Errorf("config: render.vmin %g must be below render.vmax %g", r.VMin, r.VMax)
	}
	s := c.Stretch
	if s.PMin < 0 || s.PMax > 100 || s.PMin >= s.PMax {
		return eris.Errorf("config: stretch range [%g, %g] must satisfy 0 <= pmin < pmax <= 100", s.PMin, s.PMax)
	}
	if c.CRS.EPSG <= 0 {
		return eris.Errorf("config: crs.epsg must be a positive EPSG code, got %d", c.CRS.EPSG)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
