// Package raster reads and writes GeoTIFF rasters and prepares them for
// display: per-band percentile stretching and true-color composites.
package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// Array is a dense row-major n-dimensional float64 array.
type Array struct {
	Shape []int
	Data  []float64
}

// NewArray allocates a zero-filled array.
func NewArray(shape ...int) *Array {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return &Array{Shape: append([]int(nil), shape...), Data: make([]float64, n)}
}

// FromRows builds a 2-D array from equal-length rows.
func FromRows(rows [][]float64) (*Array, error) {
	if len(rows) == 0 {
		return NewArray(0, 0), nil
	}
	cols := len(rows[0])
	a := NewArray(len(rows), cols)
	for r, row := range rows {
		if len(row) != cols {
			return nil, eris.Errorf("raster: row %d has %d columns, want %d", r, len(row), cols)
		}
		copy(a.Data[r*cols:], row)
	}
	return a, nil
}

// Dims returns the number of dimensions.
func (a *Array) Dims() int { return len(a.Shape) }

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.Data) }

func (a *Array) offset(idx []int) int {
	if len(idx) != len(a.Shape) {
		panic("raster: index rank does not match array rank")
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= a.Shape[i] {
			panic("raster: index out of range")
		}
		off = off*a.Shape[i] + v
	}
	return off
}

// At returns the element at idx.
func (a *Array) At(idx ...int) float64 { return a.Data[a.offset(idx)] }

// Set stores v at idx.
func (a *Array) Set(v float64, idx ...int) { a.Data[a.offset(idx)] = v }

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{Shape: append([]int(nil), a.Shape...), Data: append([]float64(nil), a.Data...)}
}

// Band copies plane i of a 3-D (band, row, column) array into a 2-D array.
func (a *Array) Band(i int) (*Array, error) {
	if a.Dims() != 3 {
		return nil, eris.Errorf("raster: band of a %d-dimensional array", a.Dims())
	}
	if i < 0 || i >= a.Shape[0] {
		return nil, eris.Errorf("raster: band %d out of range [0, %d)", i, a.Shape[0])
	}
	rows, cols := a.Shape[1], a.Shape[2]
	plane := rows * cols
	out := NewArray(rows, cols)
	copy(out.Data, a.Data[i*plane:(i+1)*plane])
	return out, nil
}

// SetBand overwrites plane i of a 3-D array with a 2-D array of the same
// row and column count.
func (a *Array) SetBand(i int, b *Array) error {
	if a.Dims() != 3 || b.Dims() != 2 {
		return eris.New("raster: SetBand needs a 3-D target and a 2-D band")
	}
	if b.Shape[0] != a.Shape[1] || b.Shape[1] != a.Shape[2] {
		return eris.Errorf("raster: band shape %v does not match %v", b.Shape, a.Shape[1:])
	}
	if i < 0 || i >= a.Shape[0] {
		return eris.Errorf("raster: band %d out of range [0, %d)", i, a.Shape[0])
	}
	plane := b.Len()
	copy(a.Data[i*plane:(i+1)*plane], b.Data)
	return nil
}

// MinMax returns the smallest and largest non-NaN values. Both are NaN when
// every value is NaN.
func MinMax(data []float64) (lo, hi float64) {
	lo, hi = math.NaN(), math.NaN()
	for _, v := range data {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(lo) || v < lo {
			lo = v
		}
		if math.IsNaN(hi) || v > hi {
			hi = v
		}
	}
	return lo, hi
}
