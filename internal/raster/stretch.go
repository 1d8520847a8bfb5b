package raster

import (
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

var (
	// ErrPercentileRange is returned unless 0 <= pmin < pmax <= 100.
	ErrPercentileRange = eris.New("raster: percentiles must satisfy 0 <= pmin < pmax <= 100")
	// ErrNotTwoDimensional is returned when a single-band stretch receives
	// anything other than a (row, column) array.
	ErrNotTwoDimensional = eris.New("raster: image can only have two dimensions (row, column)")
)

// Percentile returns the p-th percentile (0-100) of the non-NaN values,
// interpolating linearly between closest ranks. It returns NaN when no
// value is present.
func Percentile(data []float64, p float64) float64 {
	vals := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	return percentileSorted(vals, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	h := float64(len(sorted)-1) * p / 100
	lo := int(math.Floor(h))
	if lo < 0 {
		return sorted[0]
	}
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// PercentileStretch rescales a 2-D image so that the pmin percentile maps
// to 0 and the pmax percentile maps to 1, clipping values outside that
// range. NaN pixels stay NaN. When both percentiles are equal every
// non-NaN pixel becomes 0.
func PercentileStretch(img *Array, pmin, pmax float64) (*Array, error) {
	if err := (StretchArgs{PMin: pmin, PMax: pmax}).Validate(); err != nil {
		return nil, err
	}
	if img == nil || img.Dims() != 2 {
		dims := 0
		if img != nil {
			dims = img.Dims()
		}
		return nil, eris.Wrapf(ErrNotTwoDimensional, "raster: got %d dimensions", dims)
	}

	vals := make([]float64, 0, img.Len())
	for _, v := range img.Data {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	out := img.Clone()
	if len(vals) == 0 {
		return out, nil
	}
	sort.Float64s(vals)
	lo := percentileSorted(vals, pmin)
	hi := percentileSorted(vals, pmax)
	span := hi - lo

	for i, v := range out.Data {
		switch {
		case math.IsNaN(v):
		case span == 0, v <= lo:
			out.Data[i] = 0
		case v >= hi:
			out.Data[i] = 1
		default:
			out.Data[i] = math.Min(1, math.Max(0, (v-lo)/span))
		}
	}
	return out, nil
}

// StretchArgs are the percentile bounds applied to every band.
type StretchArgs struct {
	PMin float64 `mapstructure:"pmin" yaml:"pmin"`
	PMax float64 `mapstructure:"pmax" yaml:"pmax"`
}

// Validate returns ErrPercentileRange unless 0 <= PMin < PMax <= 100.
func (a StretchArgs) Validate() error {
	if !(0 <= a.PMin && a.PMin < a.PMax && a.PMax <= 100) {
		return eris.Wrapf(ErrPercentileRange, "raster: got pmin=%g pmax=%g", a.PMin, a.PMax)
	}
	return nil
}

// StretchBands stretches every band of img independently, treating nodata
// as NaN, and returns a (band, row, column) array.
func StretchBands(img *Image, args StretchArgs) (*Array, error) {
	out := NewArray(img.Pixels.Shape...)
	for b := 0; b < img.NumBands(); b++ {
		band, err := img.Band(b)
		if err != nil {
			return nil, err
		}
		st, err := PercentileStretch(band, args.PMin, args.PMax)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: stretch band %d", b+1)
		}
		if err := out.SetBand(b, st); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Composite stretches img and assembles the three zero-based bands into an
// RGB image. Pixels with a NaN in any selected band are transparent.
func Composite(img *Image, bands [3]int, args StretchArgs) (*image.NRGBA, error) {
	for _, b := range bands {
		if b < 0 || b >= img.NumBands() {
			return nil, eris.Errorf("raster: band %d out of range [1, %d]", b+1, img.NumBands())
		}
	}
	st, err := StretchBands(img, args)
	if err != nil {
		return nil, err
	}
	return ToNRGBA(st, bands)
}

// ToNRGBA converts a stretched (band, row, column) array with values in
// [0, 1] to an image, sampling the given bands as red, green and blue.
func ToNRGBA(st *Array, bands [3]int) (*image.NRGBA, error) {
	if st.Dims() != 3 {
		return nil, eris.Errorf("raster: composite of a %d-dimensional array", st.Dims())
	}
	rows, cols := st.Shape[1], st.Shape[2]
	plane := rows * cols
	out := image.NewNRGBA(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			var rgb [3]uint8
			transparent := false
			for k, b := range bands {
				v := st.Data[b*plane+y*cols+x]
				if math.IsNaN(v) {
					transparent = true
					break
				}
				rgb[k] = uint8(math.Round(math.Min(1, math.Max(0, v)) * 255))
			}
			if transparent {
				continue
			}
			out.SetNRGBA(x, y, color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255})
		}
	}
	return out, nil
}
