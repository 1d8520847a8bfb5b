package render

import (
	"math"
	"strconv"

	"github.com/fogleman/gg"
	"github.com/rotisserie/eris"
)

// ColorbarOptions configures the vertical colorbar beside the axes. Size is
// a fraction of the axes width; Pad is in inches.
type ColorbarOptions struct {
	Label string  `mapstructure:"label" yaml:"label"`
	Size  float64 `mapstructure:"size" yaml:"size"`
	Pad   float64 `mapstructure:"pad" yaml:"pad"`
}

type colorbarSpec struct {
	norm *Norm
	opts ColorbarOptions
}

// Colorbar attaches a colorbar for norm to the right of the axes.
func (a *Axes) Colorbar(norm *Norm, opts ColorbarOptions) error {
	if norm == nil || norm.Cmap == nil {
		return eris.New("render: colorbar needs a colormap")
	}
	if opts.Size <= 0 {
		opts.Size = 0.05
	}
	if opts.Pad <= 0 {
		opts.Pad = 0.1
	}
	a.colorbar = &colorbarSpec{norm: norm, opts: opts}
	return nil
}

func (a *Axes) drawColorbar(dc *gg.Context) error {
	cb := a.colorbar
	f := a.fig
	x0 := a.box.x1 + f.pt(cb.opts.Pad*72)
	w := math.Max(2, a.box.w()*cb.opts.Size)
	y0, y1 := a.box.y0, a.box.y1
	h := y1 - y0

	for py := 0; py < int(math.Ceil(h)); py++ {
		t := 1 - (float64(py)+0.5)/h
		dc.SetColor(cb.norm.Cmap.At(t))
		dc.DrawRectangle(x0, y0+float64(py), w, 1)
		dc.Fill()
	}
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(f.pt(0.8))
	dc.DrawRectangle(x0, y0, w, h)
	dc.Stroke()

	if err := f.setFont(dc, f.opts.FontSize*0.9); err != nil {
		return err
	}
	tick := f.pt(3.5)
	maxLabel := 0.0
	for _, v := range niceTicks(cb.norm.VMin, cb.norm.VMax, 6) {
		y := y1 - (v-cb.norm.VMin)/(cb.norm.VMax-cb.norm.VMin)*h
		dc.DrawLine(x0+w, y, x0+w+tick, y)
		dc.Stroke()
		label := formatTick(v)
		lw, _ := dc.MeasureString(label)
		maxLabel = math.Max(maxLabel, lw)
		dc.DrawStringAnchored(label, x0+w+tick+f.pt(2), y, 0, 0.5)
	}

	if cb.opts.Label != "" {
		if err := f.setFont(dc, f.opts.FontSize); err != nil {
			return err
		}
		lx := x0 + w + tick + f.pt(2) + maxLabel + f.pt(f.opts.FontSize)
		dc.Push()
		dc.RotateAbout(gg.Radians(-90), lx, y0+h/2)
		dc.DrawStringAnchored(cb.opts.Label, lx, y0+h/2, 0.5, 0.5)
		dc.Pop()
	}
	return nil
}

// niceTicks returns round tick values covering [lo, hi].
func niceTicks(lo, hi float64, n int) []float64 {
	if hi <= lo || n < 2 {
		return []float64{lo}
	}
	raw := (hi - lo) / float64(n-1)
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	step := mag
	for _, m := range []float64{1, 2, 2.5, 5, 10} {
		step = m * mag
		if step >= raw {
			break
		}
	}
	var ticks []float64
	start := math.Ceil(lo/step-1e-9) * step
	for v := start; v <= hi+step*1e-9; v += step {
		ticks = append(ticks, math.Round(v/step)*step)
	}
	return ticks
}

func formatTick(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}
