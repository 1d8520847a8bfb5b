package render

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/egm722/geomap-cli/internal/crs"
	"github.com/egm722/geomap-cli/internal/vector"
)

// FeatureStyle styles polygons and lines. Colors, when set, gives each
// feature a face color, cycling through the list.
type FeatureStyle struct {
	Face      string   `yaml:"face"`
	Edge      string   `yaml:"edge"`
	Colors    []string `yaml:"colors"`
	LineWidth float64  `yaml:"linewidth"`
	Alpha     float64  `yaml:"alpha"`
}

// ChoroplethStyle styles a column-colored polygon layer.
type ChoroplethStyle struct {
	Colormap  string  `yaml:"colormap"`
	VMin      float64 `yaml:"vmin"`
	VMax      float64 `yaml:"vmax"`
	Edge      string  `yaml:"edge"`
	LineWidth float64 `yaml:"linewidth"`
}

// MarkerStyle styles point layers. Size is the marker width in points.
type MarkerStyle struct {
	Marker string  `yaml:"marker"`
	Color  string  `yaml:"color"`
	Edge   string  `yaml:"edge"`
	Size   float64 `yaml:"size"`
	Alpha  float64 `yaml:"alpha"`
}

func alphaOr(a float64) float64 {
	if a <= 0 {
		return 1
	}
	return a
}

// project returns the layer's geometries in the display CRS.
func (a *Axes) project(l *vector.Layer) ([]geom.T, error) {
	tr, err := crs.Transform(sourceCRS(l.CRS, a.crs), a.crs)
	if err != nil {
		return nil, eris.Wrapf(err, "render: project layer %q", l.Name)
	}
	out := make([]geom.T, len(l.Features))
	for i, f := range l.Features {
		if f.Geom == nil {
			continue
		}
		g, err := vector.TransformGeom(f.Geom, tr)
		if err != nil {
			return nil, eris.Wrapf(err, "render: project layer %q feature %d", l.Name, i)
		}
		out[i] = g
	}
	return out, nil
}

type featureArtist struct {
	geoms []geom.T
	faces []color.NRGBA
	edge  color.NRGBA
	width float64
}

func (fa *featureArtist) bounds() vector.Bounds {
	b := vector.EmptyBounds()
	for _, g := range fa.geoms {
		b = b.Union(vector.GeomBounds(g))
	}
	return b
}

func (fa *featureArtist) draw(dc *gg.Context, m mapper) error {
	dc.SetFillRule(gg.FillRuleEvenOdd)
	dc.SetLineJoin(gg.LineJoinRound)
	for i, g := range fa.geoms {
		if g == nil {
			continue
		}
		areal := tracePath(dc, m, g)
		if areal && fa.faces[i].A > 0 {
			dc.SetColor(fa.faces[i])
			dc.FillPreserve()
		}
		if fa.edge.A > 0 && fa.width > 0 {
			dc.SetColor(fa.edge)
			dc.SetLineWidth(fa.width)
			dc.Stroke()
		} else {
			dc.ClearPath()
		}
	}
	return nil
}

// tracePath adds g to the current path and reports whether it is areal.
func tracePath(dc *gg.Context, m mapper, g geom.T) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		tracePolygon(dc, m, t)
		return true
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			tracePolygon(dc, m, t.Polygon(i))
		}
		return true
	case *geom.LineString:
		traceLine(dc, m, t.FlatCoords(), t.Stride(), false)
	case *geom.MultiLineString:
		for i := 0; i < t.NumLineStrings(); i++ {
			ls := t.LineString(i)
			traceLine(dc, m, ls.FlatCoords(), ls.Stride(), false)
		}
	}
	return false
}

func tracePolygon(dc *gg.Context, m mapper, p *geom.Polygon) {
	for r := 0; r < p.NumLinearRings(); r++ {
		ring := p.LinearRing(r)
		traceLine(dc, m, ring.FlatCoords(), ring.Stride(), true)
	}
}

func traceLine(dc *gg.Context, m mapper, flat []float64, stride int, closed bool) {
	if len(flat) < 2*stride {
		return
	}
	dc.NewSubPath()
	for i := 0; i+1 < len(flat); i += stride {
		x, y := m.toPixel(flat[i], flat[i+1])
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	if closed {
		dc.ClosePath()
	}
}

// AddFeature draws a layer's polygons and lines.
func (a *Axes) AddFeature(l *vector.Layer, s FeatureStyle) error {
	geoms, err := a.project(l)
	if err != nil {
		return err
	}
	face, err := ParseColor(s.Face)
	if err != nil {
		return err
	}
	edge, err := ParseColor(s.Edge)
	if err != nil {
		return err
	}
	alpha := alphaOr(s.Alpha)

	palette := make([]color.NRGBA, len(s.Colors))
	for i, c := range s.Colors {
		if palette[i], err = ParseColor(c); err != nil {
			return err
		}
	}
	faces := make([]color.NRGBA, len(geoms))
	for i := range faces {
		c := face
		if len(palette) > 0 {
			c = palette[i%len(palette)]
		}
		faces[i] = WithAlpha(c, alpha)
	}

	a.artists = append(a.artists, &featureArtist{
		geoms: geoms,
		faces: faces,
		edge:  WithAlpha(edge, alpha),
		width: a.fig.pt(widthOr(s.LineWidth, 1)),
	})
	return nil
}

func widthOr(w, def float64) float64 {
	if w <= 0 {
		return def
	}
	return w
}

// AddChoropleth colors each polygon by column through a colormap clipped to
// [VMin, VMax]. Features with a null value are outlined only. The returned
// Norm feeds Colorbar.
func (a *Axes) AddChoropleth(l *vector.Layer, column string, s ChoroplethStyle) (*Norm, error) {
	if s.VMin >= s.VMax {
		return nil, eris.Errorf("render: vmin %g must be below vmax %g", s.VMin, s.VMax)
	}
	vals, err := l.Numbers(column)
	if err != nil {
		return nil, err
	}
	name := s.Colormap
	if name == "" {
		name = "viridis"
	}
	cmap, err := NewColormap(name)
	if err != nil {
		return nil, err
	}
	geoms, err := a.project(l)
	if err != nil {
		return nil, err
	}
	edge, err := ParseColor(s.Edge)
	if err != nil {
		return nil, err
	}

	norm := &Norm{Cmap: cmap, VMin: s.VMin, VMax: s.VMax}
	faces := make([]color.NRGBA, len(vals))
	nulls := 0
	for i, v := range vals {
		if math.IsNaN(v) {
			nulls++
		}
		faces[i] = norm.Color(v)
	}
	if nulls > 0 {
		zap.L().Debug("render: choropleth features without a value", zap.String("column", column), zap.Int("count", nulls))
	}
	width := 0.0
	if edge.A > 0 {
		width = a.fig.pt(widthOr(s.LineWidth, 0.5))
	}
	a.artists = append(a.artists, &featureArtist{geoms: geoms, faces: faces, edge: edge, width: width})
	return norm, nil
}

type pointArtist struct {
	xy     [][2]float64
	marker string
	face   color.NRGBA
	edge   color.NRGBA
	radius float64
}

func (pa *pointArtist) bounds() vector.Bounds {
	b := vector.EmptyBounds()
	for _, p := range pa.xy {
		b = b.Union(vector.Bounds{MinX: p[0], MinY: p[1], MaxX: p[0], MaxY: p[1]})
	}
	return b
}

func (pa *pointArtist) draw(dc *gg.Context, m mapper) error {
	for _, p := range pa.xy {
		x, y := m.toPixel(p[0], p[1])
		drawMarker(dc, pa.marker, x, y, pa.radius)
		dc.SetColor(pa.face)
		if pa.edge.A > 0 {
			dc.FillPreserve()
			dc.SetColor(pa.edge)
			dc.SetLineWidth(math.Max(1, pa.radius/4))
			dc.Stroke()
		} else {
			dc.Fill()
		}
	}
	return nil
}

func drawMarker(dc *gg.Context, marker string, x, y, r float64) {
	switch marker {
	case "s":
		dc.DrawRectangle(x-r, y-r, 2*r, 2*r)
	case "^":
		dc.DrawRegularPolygon(3, x, y, r*1.2, 0)
	case "D", "d":
		dc.DrawRegularPolygon(4, x, y, r*1.2, 0)
	default:
		dc.DrawCircle(x, y, r)
	}
}

// AddPoints draws every vertex of a layer as a marker.
func (a *Axes) AddPoints(l *vector.Layer, s MarkerStyle) error {
	geoms, err := a.project(l)
	if err != nil {
		return err
	}
	face, err := ParseColor(s.Color)
	if err != nil {
		return err
	}
	if face.A == 0 {
		face = MustColor("k")
	}
	edge, err := ParseColor(s.Edge)
	if err != nil {
		return err
	}
	pa := &pointArtist{
		marker: s.Marker,
		face:   WithAlpha(face, alphaOr(s.Alpha)),
		edge:   edge,
		radius: a.fig.pt(widthOr(s.Size, 6)) / 2,
	}
	for _, g := range geoms {
		if g == nil {
			continue
		}
		flat, stride := g.FlatCoords(), g.Stride()
		for i := 0; i+1 < len(flat); i += stride {
			pa.xy = append(pa.xy, [2]float64{flat[i], flat[i+1]})
		}
	}
	a.artists = append(a.artists, pa)
	return nil
}

type rasterArtist struct {
	img     *image.NRGBA
	src     vector.Bounds
	display vector.Bounds
	inverse crs.Transformer
}

func (ra *rasterArtist) bounds() vector.Bounds { return ra.display }

// draw warps the image into the axes by inverse mapping each output pixel
// centre to the source grid (nearest neighbour).
func (ra *rasterArtist) draw(dc *gg.Context, m mapper) error {
	x0, y0 := int(math.Floor(m.box.x0)), int(math.Floor(m.box.y0))
	x1, y1 := int(math.Ceil(m.box.x1)), int(math.Ceil(m.box.y1))
	out := image.NewNRGBA(image.Rect(0, 0, x1-x0, y1-y0))

	sw, sh := ra.img.Bounds().Dx(), ra.img.Bounds().Dy()
	sx := float64(sw) / (ra.src.MaxX - ra.src.MinX)
	sy := float64(sh) / (ra.src.MaxY - ra.src.MinY)
	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			wx, wy := m.toWorld(float64(px)+0.5, float64(py)+0.5)
			rx, ry, err := ra.inverse(wx, wy)
			if err != nil || math.IsNaN(rx) || math.IsNaN(ry) {
				continue
			}
			col := int(math.Floor((rx - ra.src.MinX) * sx))
			row := int(math.Floor((ra.src.MaxY - ry) * sy))
			if col < 0 || row < 0 || col >= sw || row >= sh {
				continue
			}
			out.SetNRGBA(px-x0, py-y0, ra.img.NRGBAAt(ra.img.Bounds().Min.X+col, ra.img.Bounds().Min.Y+row))
		}
	}
	dc.DrawImage(out, x0, y0)
	return nil
}

// AddRaster draws a north-up image covering b in CRS c.
func (a *Axes) AddRaster(img *image.NRGBA, b vector.Bounds, c crs.CRS) error {
	if img == nil || img.Bounds().Empty() {
		return eris.New("render: empty raster")
	}
	if b.Empty() || b.MaxX == b.MinX || b.MaxY == b.MinY {
		return eris.New("render: raster bounds are empty")
	}
	src := sourceCRS(c, a.crs)
	fwd, err := crs.Transform(src, a.crs)
	if err != nil {
		return eris.Wrap(err, "render: raster transform")
	}
	inv, err := crs.Transform(a.crs, src)
	if err != nil {
		return eris.Wrap(err, "render: raster transform")
	}
	display, err := transformBounds(b, fwd)
	if err != nil {
		return err
	}
	a.artists = append(a.artists, &rasterArtist{img: img, src: b, display: display, inverse: inv})
	return nil
}
