// Package render draws static maps: vector layers, choropleths and raster
// composites in a display CRS, with gridlines, a colorbar and a legend.
package render

import (
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/mazznoer/colorgrad"
	"github.com/rotisserie/eris"
	"golang.org/x/image/colornames"
)

// Transparent is the color of "none".
var Transparent = color.NRGBA{}

// Single-letter colors as matplotlib defines them.
var shortColors = map[string]color.NRGBA{
	"k": {R: 0, G: 0, B: 0, A: 255},
	"w": {R: 255, G: 255, B: 255, A: 255},
	"r": {R: 255, G: 0, B: 0, A: 255},
	"g": {R: 0, G: 128, B: 0, A: 255},
	"b": {R: 0, G: 0, B: 255, A: 255},
	"c": {R: 0, G: 191, B: 191, A: 255},
	"m": {R: 191, G: 0, B: 191, A: 255},
	"y": {R: 191, G: 191, B: 0, A: 255},
}

// ParseColor accepts CSS color names, matplotlib single letters, "#rgb",
// "#rrggbb", "#rrggbbaa", a grey level such as "0.75", or "none".
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "" || s == "none":
		return Transparent, nil
	case strings.HasPrefix(s, "#"):
		return parseHex(s)
	}
	if c, ok := shortColors[s]; ok {
		return c, nil
	}
	if c, ok := colornames.Map[strings.ReplaceAll(s, " ", "")]; ok {
		return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f <= 1 {
		v := uint8(math.Round(f * 255))
		return color.NRGBA{R: v, G: v, B: v, A: 255}, nil
	}
	return Transparent, eris.Errorf("render: unknown color %q", s)
}

func parseHex(s string) (color.NRGBA, error) {
	h := s[1:]
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return Transparent, eris.Errorf("render: bad hex color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Transparent, eris.Wrapf(err, "render: bad hex color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// MustColor parses a color known to be valid.
func MustColor(s string) color.NRGBA {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

// WithAlpha scales c's alpha by a in [0, 1].
func WithAlpha(c color.NRGBA, a float64) color.NRGBA {
	a = math.Max(0, math.Min(1, a))
	c.A = uint8(math.Round(float64(c.A) * a))
	return c
}

var colormaps = map[string]func() colorgrad.Gradient{
	"viridis":  colorgrad.Viridis,
	"plasma":   colorgrad.Plasma,
	"inferno":  colorgrad.Inferno,
	"magma":    colorgrad.Magma,
	"cividis":  colorgrad.Cividis,
	"turbo":    colorgrad.Turbo,
	"greys":    colorgrad.Greys,
	"blues":    colorgrad.Blues,
	"greens":   colorgrad.Greens,
	"reds":     colorgrad.Reds,
	"oranges":  colorgrad.Oranges,
	"purples":  colorgrad.Purples,
	"spectral": colorgrad.Spectral,
	"rdylgn":   colorgrad.RdYlGn,
}

// Colormap maps [0, 1] to colors.
type Colormap struct {
	Name     string
	grad     colorgrad.Gradient
	reversed bool
}

// NewColormap looks up a named colormap. A "_r" suffix reverses it.
func NewColormap(name string) (*Colormap, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	reversed := strings.HasSuffix(key, "_r")
	key = strings.TrimSuffix(key, "_r")
	if key == "gray" || key == "grey" {
		key = "greys"
		reversed = !reversed
	}
	mk, ok := colormaps[key]
	if !ok {
		return nil, eris.Errorf("render: unknown colormap %q", name)
	}
	return &Colormap{Name: name, grad: mk(), reversed: reversed}, nil
}

// At returns the color at t, clamped to [0, 1]. NaN is transparent.
func (c *Colormap) At(t float64) color.NRGBA {
	if math.IsNaN(t) {
		return Transparent
	}
	t = math.Max(0, math.Min(1, t))
	if c.reversed {
		t = 1 - t
	}
	return color.NRGBAModel.Convert(c.grad.At(t)).(color.NRGBA)
}

// Norm maps data values onto a colormap through a linear [VMin, VMax]
// normalisation, clipping outside values.
type Norm struct {
	Cmap *Colormap
	VMin float64
	VMax float64
}

// Scale returns the normalised position of v.
func (n Norm) Scale(v float64) float64 {
	if math.IsNaN(v) {
		return math.NaN()
	}
	if n.VMax == n.VMin {
		return 0
	}
	return math.Max(0, math.Min(1, (v-n.VMin)/(n.VMax-n.VMin)))
}

// Color returns the color of v.
func (n Norm) Color(v float64) color.NRGBA {
	return n.Cmap.At(n.Scale(v))
}
