package raster

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/egm722/geomap-cli/internal/crs"
	"github.com/egm722/geomap-cli/internal/vector"
)

// GeoTransform maps pixel (col, row) to world coordinates, in the GDAL
// order: x0, pixel width, row rotation, y0, column rotation, pixel height.
type GeoTransform [6]float64

// Apply maps a pixel position to world coordinates.
func (g GeoTransform) Apply(col, row float64) (x, y float64) {
	return g[0] + col*g[1] + row*g[2], g[3] + col*g[4] + row*g[5]
}

// Invert maps world coordinates back to a fractional pixel position.
func (g GeoTransform) Invert(x, y float64) (col, row float64, err error) {
	det := g[1]*g[5] - g[2]*g[4]
	if det == 0 {
		return 0, 0, eris.New("raster: geotransform is not invertible")
	}
	dx, dy := x-g[0], y-g[3]
	col = (g[5]*dx - g[2]*dy) / det
	row = (-g[4]*dx + g[1]*dy) / det
	return col, row, nil
}

// Image is a georeferenced multi-band raster. Pixels holds a
// (band, row, column) array.
type Image struct {
	Pixels    *Array
	Transform GeoTransform
	CRS       crs.CRS
	NoData    *float64
}

// NewImage allocates an image of the given size with an identity
// transform.
func NewImage(bands, rows, cols int) *Image {
	return &Image{
		Pixels:    NewArray(bands, rows, cols),
		Transform: GeoTransform{0, 1, 0, 0, 0, 1},
	}
}

// NumBands returns the band count.
func (im *Image) NumBands() int { return im.Pixels.Shape[0] }

// Height returns the row count.
func (im *Image) Height() int { return im.Pixels.Shape[1] }

// Width returns the column count.
func (im *Image) Width() int { return im.Pixels.Shape[2] }

// PixelToWorld returns the world coordinates of a pixel position. Integer
// positions are pixel corners; add 0.5 for centres.
func (im *Image) PixelToWorld(col, row float64) (x, y float64) {
	return im.Transform.Apply(col, row)
}

// WorldToPixel returns the fractional pixel position of a world coordinate.
func (im *Image) WorldToPixel(x, y float64) (col, row float64, err error) {
	return im.Transform.Invert(x, y)
}

// Bounds returns the world extent covered by the image.
func (im *Image) Bounds() vector.Bounds {
	b := vector.EmptyBounds()
	w, h := float64(im.Width()), float64(im.Height())
	for _, c := range [][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		x, y := im.PixelToWorld(c[0], c[1])
		b.MinX = math.Min(b.MinX, x)
		b.MinY = math.Min(b.MinY, y)
		b.MaxX = math.Max(b.MaxX, x)
		b.MaxY = math.Max(b.MaxY, y)
	}
	return b
}

// Resolution returns the absolute pixel width and height in CRS units.
func (im *Image) Resolution() (dx, dy float64) {
	return math.Hypot(im.Transform[1], im.Transform[4]), math.Hypot(im.Transform[2], im.Transform[5])
}

// Band returns band i as a 2-D array with nodata pixels replaced by NaN.
func (im *Image) Band(i int) (*Array, error) {
	b, err := im.Pixels.Band(i)
	if err != nil {
		return nil, err
	}
	if im.NoData != nil {
		nd := *im.NoData
		for j, v := range b.Data {
			if v == nd || (math.IsNaN(nd) && math.IsNaN(v)) {
				b.Data[j] = math.NaN()
			}
		}
	}
	return b, nil
}

// SetGeoBounds sets a north-up transform that spans b.
func (im *Image) SetGeoBounds(b vector.Bounds) {
	w, h := float64(im.Width()), float64(im.Height())
	im.Transform = GeoTransform{b.MinX, (b.MaxX - b.MinX) / w, 0, b.MaxY, 0, -(b.MaxY - b.MinY) / h}
}
