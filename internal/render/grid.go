package render

import (
	"math"
	"strconv"

	"github.com/fogleman/gg"
	"github.com/rotisserie/eris"

	"github.com/egm722/geomap-cli/internal/crs"
)

// GridOptions places a lon/lat graticule. Label sides default to left and
// top when Labels is set and no side is chosen.
type GridOptions struct {
	XLocs     []float64 `mapstructure:"xlocs" yaml:"xlocs"`
	YLocs     []float64 `mapstructure:"ylocs" yaml:"ylocs"`
	Labels    bool      `mapstructure:"labels" yaml:"labels"`
	Left      bool      `mapstructure:"left" yaml:"left"`
	Right     bool      `mapstructure:"right" yaml:"right"`
	Top       bool      `mapstructure:"top" yaml:"top"`
	Bottom    bool      `mapstructure:"bottom" yaml:"bottom"`
	Color     string    `mapstructure:"color" yaml:"color"`
	LineWidth float64   `mapstructure:"linewidth" yaml:"linewidth"`
	Alpha     float64   `mapstructure:"alpha" yaml:"alpha"`
}

// Gridlines draws meridians at XLocs and parallels at YLocs.
func (a *Axes) Gridlines(opts GridOptions) {
	if opts.Labels && !opts.Left && !opts.Right && !opts.Top && !opts.Bottom {
		opts.Left, opts.Top = true, true
	}
	if opts.Color == "" {
		opts.Color = "0.5"
	}
	if opts.Alpha <= 0 {
		opts.Alpha = 0.5
	}
	a.grid = &opts
}

const gridSteps = 64

// graticuleLine is a lon/lat line sampled in pixel space.
type graticuleLine struct {
	value    float64
	meridian bool
	pts      [][2]float64
}

// graticule samples the configured lines across the lon/lat range of the
// visible extent.
func (a *Axes) graticule() ([]graticuleLine, error) {
	geo := crs.Geographic()
	toGeo, err := crs.Transform(a.crs, geo)
	if err != nil {
		return nil, eris.Wrap(err, "render: graticule transform")
	}
	fromGeo, err := crs.Transform(geo, a.crs)
	if err != nil {
		return nil, eris.Wrap(err, "render: graticule transform")
	}
	ll, err := transformBounds(a.m.ext, toGeo)
	if err != nil {
		return nil, err
	}
	lonPad, latPad := (ll.MaxX-ll.MinX)*0.1, (ll.MaxY-ll.MinY)*0.1
	ll.MinX, ll.MaxX = ll.MinX-lonPad, ll.MaxX+lonPad
	ll.MinY, ll.MaxY = math.Max(-89.9, ll.MinY-latPad), math.Min(89.9, ll.MaxY+latPad)

	var lines []graticuleLine
	sample := func(value float64, meridian bool) error {
		gl := graticuleLine{value: value, meridian: meridian}
		for i := 0; i <= gridSteps; i++ {
			t := float64(i) / gridSteps
			lon, lat := value, ll.MinY+t*(ll.MaxY-ll.MinY)
			if !meridian {
				lon, lat = ll.MinX+t*(ll.MaxX-ll.MinX), value
			}
			x, y, err := fromGeo(lon, lat)
			if err != nil {
				return eris.Wrap(err, "render: graticule point")
			}
			px, py := a.m.toPixel(x, y)
			gl.pts = append(gl.pts, [2]float64{px, py})
		}
		lines = append(lines, gl)
		return nil
	}
	for _, lon := range a.grid.XLocs {
		if err := sample(lon, true); err != nil {
			return nil, err
		}
	}
	for _, lat := range a.grid.YLocs {
		if err := sample(lat, false); err != nil {
			return nil, err
		}
	}
	return lines, nil
}

func (a *Axes) drawGridLines(dc *gg.Context) error {
	lines, err := a.graticule()
	if err != nil {
		return err
	}
	c, err := ParseColor(a.grid.Color)
	if err != nil {
		return err
	}
	dc.SetColor(WithAlpha(c, a.grid.Alpha))
	dc.SetLineWidth(a.fig.pt(widthOr(a.grid.LineWidth, 0.8)))
	dc.SetDash(a.fig.pt(3), a.fig.pt(2))
	for _, gl := range lines {
		dc.NewSubPath()
		for i, p := range gl.pts {
			if i == 0 {
				dc.MoveTo(p[0], p[1])
			} else {
				dc.LineTo(p[0], p[1])
			}
		}
		dc.Stroke()
	}
	dc.SetDash()
	return nil
}

// crossing returns where a sampled line crosses the horizontal (vertical
// when vertical is true) line at pos inside the axes.
func crossing(pts [][2]float64, pos float64, vertical bool) (float64, bool) {
	a, b := 1, 0
	if vertical {
		a, b = 0, 1
	}
	for i := 1; i < len(pts); i++ {
		p, q := pts[i-1], pts[i]
		if (p[a]-pos)*(q[a]-pos) > 0 || p[a] == q[a] {
			continue
		}
		t := (pos - p[a]) / (q[a] - p[a])
		return p[b] + t*(q[b]-p[b]), true
	}
	return 0, false
}

func (a *Axes) drawGridLabels(dc *gg.Context) error {
	g := a.grid
	if !g.Labels {
		return nil
	}
	lines, err := a.graticule()
	if err != nil {
		return err
	}
	if err := a.fig.setFont(dc, a.fig.opts.FontSize*0.9); err != nil {
		return err
	}
	dc.SetRGB(0, 0, 0)
	pad := a.fig.pt(4)
	bx := a.box
	inside := func(v, lo, hi float64) bool { return v >= lo-0.5 && v <= hi+0.5 }

	for _, gl := range lines {
		label := degreeLabel(gl.value, gl.meridian)
		if gl.meridian {
			if x, ok := crossing(gl.pts, bx.y0, false); ok && g.Top && inside(x, bx.x0, bx.x1) {
				dc.DrawStringAnchored(label, x, bx.y0-pad, 0.5, 0)
			}
			if x, ok := crossing(gl.pts, bx.y1, false); ok && g.Bottom && inside(x, bx.x0, bx.x1) {
				dc.DrawStringAnchored(label, x, bx.y1+pad, 0.5, 1)
			}
			continue
		}
		if y, ok := crossing(gl.pts, bx.x0, true); ok && g.Left && inside(y, bx.y0, bx.y1) {
			dc.DrawStringAnchored(label, bx.x0-pad, y, 1, 0.5)
		}
		if y, ok := crossing(gl.pts, bx.x1, true); ok && g.Right && inside(y, bx.y0, bx.y1) {
			dc.DrawStringAnchored(label, bx.x1+pad, y, 0, 0.5)
		}
	}
	return nil
}

// degreeLabel formats a longitude (meridian) or latitude as 6.5°W / 54°N.
func degreeLabel(v float64, lon bool) string {
	hemi := ""
	switch {
	case lon && v < 0:
		hemi = "W"
	case lon && v > 0 && v < 180:
		hemi = "E"
	case !lon && v < 0:
		hemi = "S"
	case !lon && v > 0:
		hemi = "N"
	}
	return strconv.FormatFloat(math.Abs(v), 'f', -1, 64) + "°" + hemi
}
