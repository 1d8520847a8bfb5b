package render

import (
	"image"
	"image/color"
	"io"
	"math"

	"github.com/fogleman/gg"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/egm722/geomap-cli/internal/crs"
	"github.com/egm722/geomap-cli/internal/vector"
)

// Subplot box as fractions of the figure, matching matplotlib's defaults.
const (
	boxLeft   = 0.125
	boxRight  = 0.9
	boxBottom = 0.11
	boxTop    = 0.88
)

// FigureOptions configures NewFigure.
type FigureOptions struct {
	Width      float64 `mapstructure:"width" yaml:"width"`
	Height     float64 `mapstructure:"height" yaml:"height"`
	DPI        float64 `mapstructure:"dpi" yaml:"dpi"`
	FontSize   float64 `mapstructure:"font_size" yaml:"font_size"`
	Background string  `mapstructure:"background" yaml:"background"`
	Title      string  `mapstructure:"title" yaml:"title"`
	CRS        crs.CRS `mapstructure:"-" yaml:"-"`
}

func (o FigureOptions) withDefaults() FigureOptions {
	if o.Width <= 0 {
		o.Width = 10
	}
	if o.Height <= 0 {
		o.Height = 10
	}
	if o.DPI <= 0 {
		o.DPI = 100
	}
	if o.FontSize <= 0 {
		o.FontSize = 10
	}
	if o.Background == "" {
		o.Background = "white"
	}
	if o.CRS.IsZero() {
		o.CRS = crs.Mercator()
	}
	return o
}

// Figure is a page holding a single map axes.
type Figure struct {
	opts   FigureOptions
	width  int
	height int
	font   *opentype.Font
	ax     *Axes
	dc     *gg.Context
}

// NewFigure creates a figure of Width x Height inches at DPI.
func NewFigure(opts FigureOptions) (*Figure, error) {
	opts = opts.withDefaults()
	if _, err := ParseColor(opts.Background); err != nil {
		return nil, err
	}
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, eris.Wrap(err, "render: parse font")
	}
	fig := &Figure{
		opts:   opts,
		width:  int(math.Round(opts.Width * opts.DPI)),
		height: int(math.Round(opts.Height * opts.DPI)),
		font:   f,
	}
	fig.ax = &Axes{fig: fig, crs: opts.CRS}
	return fig, nil
}

// Axes returns the map axes.
func (f *Figure) Axes() *Axes { return f.ax }

// Size returns the figure size in pixels.
func (f *Figure) Size() (w, h int) { return f.width, f.height }

// pt converts points to pixels.
func (f *Figure) pt(v float64) float64 { return v * f.opts.DPI / 72 }

func (f *Figure) face(points float64) (font.Face, error) {
	face, err := opentype.NewFace(f.font, &opentype.FaceOptions{
		Size:    points,
		DPI:     f.opts.DPI,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, eris.Wrap(err, "render: font face")
	}
	return face, nil
}

func (f *Figure) setFont(dc *gg.Context, points float64) error {
	face, err := f.face(points)
	if err != nil {
		return err
	}
	dc.SetFontFace(face)
	return nil
}

// Render draws the figure. It is called implicitly by SavePNG, EncodePNG
// and Image.
func (f *Figure) Render() error {
	dc := gg.NewContext(f.width, f.height)
	dc.SetColor(MustColor(f.opts.Background))
	dc.Clear()
	if err := f.ax.draw(dc); err != nil {
		return err
	}
	if f.opts.Title != "" {
		if err := f.setFont(dc, f.opts.FontSize*1.2); err != nil {
			return err
		}
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(f.opts.Title, float64(f.width)/2, f.ax.box.y0-f.pt(f.opts.FontSize*2.5), 0.5, 1)
	}
	f.dc = dc
	return nil
}

// Image renders the figure and returns it.
func (f *Figure) Image() (image.Image, error) {
	if err := f.Render(); err != nil {
		return nil, err
	}
	return f.dc.Image(), nil
}

// EncodePNG renders the figure as PNG to w.
func (f *Figure) EncodePNG(w io.Writer) error {
	if err := f.Render(); err != nil {
		return err
	}
	return eris.Wrap(f.dc.EncodePNG(w), "render: encode png")
}

// SavePNG renders the figure to a PNG file.
func (f *Figure) SavePNG(path string) error {
	if err := f.Render(); err != nil {
		return err
	}
	if err := f.dc.SavePNG(path); err != nil {
		return eris.Wrapf(err, "render: save %s", path)
	}
	zap.L().Info("render: saved figure",
		zap.String("path", path),
		zap.Int("width", f.width),
		zap.Int("height", f.height),
	)
	return nil
}

// box is a pixel rectangle.
type box struct {
	x0, y0, x1, y1 float64
}

func (b box) w() float64 { return b.x1 - b.x0 }
func (b box) h() float64 { return b.y1 - b.y0 }

// mapper converts display CRS coordinates to pixels with equal aspect.
type mapper struct {
	ext   vector.Bounds
	box   box
	scale float64
}

func (m mapper) toPixel(x, y float64) (float64, float64) {
	return m.box.x0 + (x-m.ext.MinX)*m.scale, m.box.y0 + (m.ext.MaxY-y)*m.scale
}

func (m mapper) toWorld(px, py float64) (float64, float64) {
	return m.ext.MinX + (px-m.box.x0)/m.scale, m.ext.MaxY - (py-m.box.y0)/m.scale
}

// artist is one drawable layer, already in the display CRS.
type artist interface {
	bounds() vector.Bounds
	draw(dc *gg.Context, m mapper) error
}

// Axes is a map panel in a display CRS.
type Axes struct {
	fig     *Figure
	crs     crs.CRS
	extent  *vector.Bounds
	artists []artist

	grid     *GridOptions
	colorbar *colorbarSpec
	legend   *legendSpec

	box box
	m   mapper
}

// CRS returns the display CRS.
func (a *Axes) CRS() crs.CRS { return a.crs }

// SetExtent fixes the visible area. The extent is given in c and converted
// to the display CRS.
func (a *Axes) SetExtent(xmin, xmax, ymin, ymax float64, c crs.CRS) error {
	if xmin >= xmax || ymin >= ymax {
		return eris.Errorf("render: empty extent [%g, %g, %g, %g]", xmin, xmax, ymin, ymax)
	}
	tr, err := crs.Transform(sourceCRS(c, a.crs), a.crs)
	if err != nil {
		return eris.Wrap(err, "render: extent transform")
	}
	b, err := transformBounds(vector.Bounds{MinX: xmin, MinY: ymin, MaxX: xmax, MaxY: ymax}, tr)
	if err != nil {
		return err
	}
	a.extent = &b
	return nil
}

// Extent returns the explicit extent, or the union of layer bounds.
func (a *Axes) Extent() vector.Bounds {
	if a.extent != nil {
		return *a.extent
	}
	b := vector.EmptyBounds()
	for _, ar := range a.artists {
		b = b.Union(ar.bounds())
	}
	return b
}

func sourceCRS(c, display crs.CRS) crs.CRS {
	if c.IsZero() {
		return display
	}
	return c
}

// transformBounds projects an extent by sampling its edges.
func transformBounds(b vector.Bounds, tr crs.Transformer) (vector.Bounds, error) {
	const steps = 20
	out := vector.EmptyBounds()
	for i := 0; i <= steps; i++ {
		t := float64(i) / steps
		x := b.MinX + t*(b.MaxX-b.MinX)
		y := b.MinY + t*(b.MaxY-b.MinY)
		for _, p := range [][2]float64{{x, b.MinY}, {x, b.MaxY}, {b.MinX, y}, {b.MaxX, y}} {
			px, py, err := tr(p[0], p[1])
			if err != nil {
				return out, eris.Wrap(err, "render: transform bounds")
			}
			out = out.Union(vector.Bounds{MinX: px, MinY: py, MaxX: px, MaxY: py})
		}
	}
	return out, nil
}

// layout places the axes box inside the subplot area, reserving room for
// the colorbar, and fits the extent with equal aspect.
func (a *Axes) layout(ext vector.Bounds) {
	f := a.fig
	W, H := float64(f.width), float64(f.height)
	avail := box{x0: boxLeft * W, y0: (1 - boxTop) * H, x1: boxRight * W, y1: (1 - boxBottom) * H}
	if a.colorbar != nil {
		reserve := avail.w()*a.colorbar.opts.Size + f.pt(a.colorbar.opts.Pad*72) + f.pt(f.opts.FontSize*5)
		avail.x1 -= reserve
	}

	ew, eh := ext.MaxX-ext.MinX, ext.MaxY-ext.MinY
	scale := math.Min(avail.w()/ew, avail.h()/eh)
	bw, bh := ew*scale, eh*scale
	x0 := avail.x0 + (avail.w()-bw)/2
	y0 := avail.y0 + (avail.h()-bh)/2
	a.box = box{x0: x0, y0: y0, x1: x0 + bw, y1: y0 + bh}
	a.m = mapper{ext: ext, box: a.box, scale: scale}
}

func (a *Axes) draw(dc *gg.Context) error {
	ext := a.Extent()
	if ext.Empty() || ext.MaxX == ext.MinX || ext.MaxY == ext.MinY {
		return eris.New("render: axes have no extent; add a layer or call SetExtent")
	}
	a.layout(ext)

	dc.Push()
	dc.DrawRectangle(a.box.x0, a.box.y0, a.box.w(), a.box.h())
	dc.Clip()
	for _, ar := range a.artists {
		if err := ar.draw(dc, a.m); err != nil {
			dc.Pop()
			return err
		}
	}
	if a.grid != nil {
		if err := a.drawGridLines(dc); err != nil {
			dc.Pop()
			return err
		}
	}
	dc.ResetClip()
	dc.Pop()

	dc.SetColor(color.Black)
	dc.SetLineWidth(a.fig.pt(0.8))
	dc.DrawRectangle(a.box.x0, a.box.y0, a.box.w(), a.box.h())
	dc.Stroke()

	if a.grid != nil {
		if err := a.drawGridLabels(dc); err != nil {
			return err
		}
	}
	if a.colorbar != nil {
		if err := a.drawColorbar(dc); err != nil {
			return err
		}
	}
	if a.legend != nil {
		if err := a.drawLegend(dc); err != nil {
			return err
		}
	}
	return nil
}
