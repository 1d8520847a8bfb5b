package render

import (
	"image/color"
	"math"
	"strings"

	"github.com/fogleman/gg"
	"github.com/rotisserie/eris"
)

// HandleKind selects how a legend entry is drawn.
type HandleKind int

// Legend handle kinds.
const (
	PatchHandle HandleKind = iota
	MarkerHandle
	LineHandle
)

// Handle is the swatch drawn beside a legend label.
type Handle struct {
	Kind      HandleKind
	Face      color.NRGBA
	Edge      color.NRGBA
	Marker    string
	LineWidth float64
}

// LegendOptions configures Legend. Loc is a matplotlib location such as
// "upper left" or "lower right". FontSize is in points.
type LegendOptions struct {
	Loc        string  `mapstructure:"loc" yaml:"loc"`
	Title      string  `mapstructure:"title" yaml:"title"`
	FontSize   float64 `mapstructure:"fontsize" yaml:"fontsize"`
	TitleSize  float64 `mapstructure:"title_fontsize" yaml:"title_fontsize"`
	FrameAlpha float64 `mapstructure:"framealpha" yaml:"framealpha"`
}

type legendSpec struct {
	handles []Handle
	labels  []string
	opts    LegendOptions
}

// GenerateHandles returns one rectangular patch per label, cycling through
// colors.
func GenerateHandles(labels, colors []string, edge string, alpha float64) ([]Handle, error) {
	if len(colors) == 0 {
		return nil, eris.New("render: GenerateHandles needs at least one color")
	}
	e, err := ParseColor(edge)
	if err != nil {
		return nil, err
	}
	alpha = alphaOr(alpha)
	handles := make([]Handle, len(labels))
	for i := range labels {
		c, err := ParseColor(colors[i%len(colors)])
		if err != nil {
			return nil, err
		}
		handles[i] = Handle{Kind: PatchHandle, Face: WithAlpha(c, alpha), Edge: WithAlpha(e, alpha)}
	}
	return handles, nil
}

// NewPatchHandle builds a filled rectangle handle.
func NewPatchHandle(face, edge string, alpha float64) (Handle, error) {
	f, err := ParseColor(face)
	if err != nil {
		return Handle{}, err
	}
	e, err := ParseColor(edge)
	if err != nil {
		return Handle{}, err
	}
	alpha = alphaOr(alpha)
	return Handle{Kind: PatchHandle, Face: WithAlpha(f, alpha), Edge: WithAlpha(e, alpha)}, nil
}

// NewMarkerHandle builds a marker handle matching MarkerStyle.
func NewMarkerHandle(s MarkerStyle) (Handle, error) {
	f, err := ParseColor(s.Color)
	if err != nil {
		return Handle{}, err
	}
	e, err := ParseColor(s.Edge)
	if err != nil {
		return Handle{}, err
	}
	return Handle{Kind: MarkerHandle, Face: WithAlpha(f, alphaOr(s.Alpha)), Edge: e, Marker: s.Marker}, nil
}

// NewLineHandle builds a line handle.
func NewLineHandle(edge string, width float64) (Handle, error) {
	e, err := ParseColor(edge)
	if err != nil {
		return Handle{}, err
	}
	return Handle{Kind: LineHandle, Edge: e, LineWidth: widthOr(width, 1)}, nil
}

// Legend places a framed legend inside the axes.
func (a *Axes) Legend(handles []Handle, labels []string, opts LegendOptions) error {
	if len(handles) != len(labels) {
		return eris.Errorf("render: %d legend handles for %d labels", len(handles), len(labels))
	}
	if opts.Loc == "" {
		opts.Loc = "upper right"
	}
	if opts.FontSize <= 0 {
		opts.FontSize = a.fig.opts.FontSize
	}
	if opts.TitleSize <= 0 {
		opts.TitleSize = opts.FontSize
	}
	if opts.FrameAlpha <= 0 {
		opts.FrameAlpha = 0.8
	}
	if _, _, err := legendAnchor(opts.Loc); err != nil {
		return err
	}
	a.legend = &legendSpec{handles: handles, labels: labels, opts: opts}
	return nil
}

// legendAnchor returns the fractional axes position of the legend corner.
func legendAnchor(loc string) (fx, fy float64, err error) {
	switch strings.ToLower(strings.TrimSpace(loc)) {
	case "upper left":
		return 0, 0, nil
	case "upper right", "best":
		return 1, 0, nil
	case "lower left":
		return 0, 1, nil
	case "lower right":
		return 1, 1, nil
	case "upper center":
		return 0.5, 0, nil
	case "lower center":
		return 0.5, 1, nil
	case "center":
		return 0.5, 0.5, nil
	}
	return 0, 0, eris.Errorf("render: unknown legend location %q", loc)
}

func (a *Axes) drawLegend(dc *gg.Context) error {
	lg := a.legend
	f := a.fig
	em := f.pt(lg.opts.FontSize)
	pad := 0.4 * em
	swatchW, swatchH := 2*em, 0.7*em
	rowH := 1.2 * em

	if err := f.setFont(dc, lg.opts.FontSize); err != nil {
		return err
	}
	textW := 0.0
	for _, l := range lg.labels {
		w, _ := dc.MeasureString(l)
		textW = math.Max(textW, w)
	}
	titleH := 0.0
	if lg.opts.Title != "" {
		if err := f.setFont(dc, lg.opts.TitleSize); err != nil {
			return err
		}
		w, _ := dc.MeasureString(lg.opts.Title)
		textW = math.Max(textW, w-swatchW-0.8*em)
		titleH = 1.4 * f.pt(lg.opts.TitleSize)
	}

	boxW := pad*2 + swatchW + 0.8*em + textW
	boxH := pad*2 + titleH + rowH*float64(len(lg.labels))

	fx, fy, _ := legendAnchor(lg.opts.Loc)
	border := 0.5 * em
	bx := a.box.x0 + border + fx*(a.box.w()-2*border-boxW)
	by := a.box.y0 + border + fy*(a.box.h()-2*border-boxH)

	dc.SetColor(WithAlpha(color.NRGBA{R: 255, G: 255, B: 255, A: 255}, lg.opts.FrameAlpha))
	dc.DrawRoundedRectangle(bx, by, boxW, boxH, 0.2*em)
	dc.FillPreserve()
	dc.SetColor(WithAlpha(color.NRGBA{R: 204, G: 204, B: 204, A: 255}, lg.opts.FrameAlpha))
	dc.SetLineWidth(f.pt(0.8))
	dc.Stroke()

	y := by + pad
	if titleH > 0 {
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(lg.opts.Title, bx+boxW/2, y+titleH/2, 0.5, 0.5)
		y += titleH
		if err := f.setFont(dc, lg.opts.FontSize); err != nil {
			return err
		}
	}
	for i, h := range lg.handles {
		cy := y + rowH/2
		sx := bx + pad
		drawHandle(dc, f, h, sx, cy-swatchH/2, swatchW, swatchH)
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(lg.labels[i], sx+swatchW+0.8*em, cy, 0, 0.5)
		y += rowH
	}
	return nil
}

func drawHandle(dc *gg.Context, f *Figure, h Handle, x, y, w, ht float64) {
	switch h.Kind {
	case MarkerHandle:
		drawMarker(dc, h.Marker, x+w/2, y+ht/2, ht/2)
		dc.SetColor(h.Face)
		if h.Edge.A > 0 {
			dc.FillPreserve()
			dc.SetColor(h.Edge)
			dc.Stroke()
		} else {
			dc.Fill()
		}
	case LineHandle:
		dc.SetColor(h.Edge)
		dc.SetLineWidth(f.pt(h.LineWidth))
		dc.DrawLine(x, y+ht/2, x+w, y+ht/2)
		dc.Stroke()
	default:
		dc.DrawRectangle(x, y, w, ht)
		if h.Face.A > 0 {
			dc.SetColor(h.Face)
			dc.FillPreserve()
		}
		if h.Edge.A > 0 {
			dc.SetColor(h.Edge)
			dc.SetLineWidth(f.pt(0.8))
			dc.Stroke()
		} else {
			dc.ClearPath()
		}
	}
}
