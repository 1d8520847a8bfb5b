package render

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Layer kinds in a Style document.
const (
	KindFeature = "feature"
	KindPoints  = "points"
	KindRaster  = "raster"
)

// LayerStyle describes one dataset drawn by the mosaic map. Name matches a
// dataset key (outline, counties, water, rivers, towns, mosaic).
type LayerStyle struct {
	Name      string       `yaml:"name"`
	Kind      string       `yaml:"kind"`
	Label     string       `yaml:"label"`
	LabelFrom string       `yaml:"label_from"`
	Feature   FeatureStyle `yaml:"feature"`
	Marker    MarkerStyle  `yaml:"marker"`
	Legend    bool         `yaml:"legend"`
}

// Style is a YAML map style document.
type Style struct {
	Figure FigureOptions `yaml:"figure"`
	Layers []LayerStyle  `yaml:"layers"`
	Legend LegendOptions `yaml:"legend"`
	Grid   GridOptions   `yaml:"gridlines"`
}

// CountyColors is the county palette.
var CountyColors = []string{"firebrick", "seagreen", "royalblue", "coral", "violet", "cornsilk"}

// NIGridXLocs and NIGridYLocs are the graticule positions over Northern
// Ireland.
var (
	NIGridXLocs = []float64{-8, -7.5, -7, -6.5, -6, -5.5}
	NIGridYLocs = []float64{54, 54.5, 55, 55.5}
)

// DefaultMosaicStyle is the layer stack drawn over the satellite mosaic.
func DefaultMosaicStyle() Style {
	return Style{
		Figure: FigureOptions{Width: 10, Height: 10, DPI: 100},
		Layers: []LayerStyle{
			{Name: "outline", Kind: KindFeature, Feature: FeatureStyle{Face: "w", Edge: "k", LineWidth: 0.5}},
			{Name: "mosaic", Kind: KindRaster},
			{
				Name: "counties", Kind: KindFeature, LabelFrom: "CountyName", Legend: true,
				Feature: FeatureStyle{Face: "none", Edge: "k", Colors: CountyColors, LineWidth: 1, Alpha: 0.25},
			},
			{
				Name: "water", Kind: KindFeature, Label: "Lakes", Legend: true,
				Feature: FeatureStyle{Face: "mediumblue", Edge: "mediumblue", LineWidth: 1},
			},
			{
				Name: "rivers", Kind: KindFeature, Label: "Rivers", Legend: true,
				Feature: FeatureStyle{Face: "none", Edge: "royalblue", LineWidth: 0.2},
			},
			{
				Name: "towns", Kind: KindPoints, Label: "Towns", Legend: true,
				Marker: MarkerStyle{Marker: "s", Color: "0.5", Size: 6},
			},
		},
		Legend: LegendOptions{Loc: "upper left", Title: "Legend", FontSize: 12, TitleSize: 14, FrameAlpha: 1},
		Grid:   GridOptions{XLocs: NIGridXLocs, YLocs: NIGridYLocs, Labels: true, Left: true, Top: true},
	}
}

// LoadStyle reads a YAML style document. Fields it omits keep the values
// of DefaultMosaicStyle; a non-empty layers list replaces the defaults.
func LoadStyle(path string) (Style, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Style{}, eris.Wrapf(err, "render: read style %s", path)
	}
	s := DefaultMosaicStyle()
	layers := s.Layers
	s.Layers = nil
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Style{}, eris.Wrapf(err, "render: parse style %s", path)
	}
	if len(s.Layers) == 0 {
		s.Layers = layers
	}
	if err := s.Validate(); err != nil {
		return Style{}, eris.Wrapf(err, "render: style %s", path)
	}
	return s, nil
}

// Validate checks layer kinds and colors.
func (s Style) Validate() error {
	for _, l := range s.Layers {
		if l.Name == "" {
			return eris.New("render: layer without a name")
		}
		switch l.Kind {
		case KindFeature:
			for _, c := range append([]string{l.Feature.Face, l.Feature.Edge}, l.Feature.Colors...) {
				if _, err := ParseColor(c); err != nil {
					return eris.Wrapf(err, "render: layer %q", l.Name)
				}
			}
		case KindPoints:
			if _, err := ParseColor(l.Marker.Color); err != nil {
				return eris.Wrapf(err, "render: layer %q", l.Name)
			}
		case KindRaster:
		default:
			return eris.Errorf("render: layer %q has unknown kind %q", l.Name, l.Kind)
		}
	}
	if _, _, err := legendAnchor(orDefault(s.Legend.Loc, "upper right")); err != nil {
		return err
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
