package raster

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/klauspost/compress/zlib"
	"github.com/rotisserie/eris"
)

// SampleType selects the on-disk sample encoding.
type SampleType string

// Supported output sample types.
const (
	Float32 SampleType = "float32"
	Uint8   SampleType = "uint8"
)

// WriteOptions configures WriteGeoTIFF.
type WriteOptions struct {
	Type         SampleType
	Deflate      bool
	RowsPerStrip int
}

func (o WriteOptions) withDefaults() WriteOptions {
	if o.Type == "" {
		o.Type = Float32
	}
	if o.RowsPerStrip <= 0 {
		o.RowsPerStrip = 16
	}
	return o
}

// WriteGeoTIFF writes img as a little-endian, pixel-interleaved GeoTIFF.
func WriteGeoTIFF(path string, img *Image, opts WriteOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "raster: create %s", path)
	}
	bw := bufio.NewWriter(f)
	if err := EncodeGeoTIFF(bw, img, opts); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "raster: encode %s", path)
	}
	if err := bw.Flush(); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "raster: flush %s", path)
	}
	return eris.Wrapf(f.Close(), "raster: close %s", path)
}

type field struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

var le = binary.LittleEndian

func shortField(tag uint16, vals ...uint16) field {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		le.PutUint16(b[2*i:], v)
	}
	return field{tag: tag, typ: dtShort, count: uint32(len(vals)), data: b}
}

func longField(tag uint16, vals ...uint32) field {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		le.PutUint32(b[4*i:], v)
	}
	return field{tag: tag, typ: dtLong, count: uint32(len(vals)), data: b}
}

func doubleField(tag uint16, vals ...float64) field {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		le.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return field{tag: tag, typ: dtDouble, count: uint32(len(vals)), data: b}
}

func asciiField(tag uint16, s string) field {
	b := append([]byte(s), 0)
	return field{tag: tag, typ: dtASCII, count: uint32(len(b)), data: b}
}

// EncodeGeoTIFF writes img to w. Layout: header, strips, IFD, then the
// out-of-line tag values.
func EncodeGeoTIFF(w io.Writer, img *Image, opts WriteOptions) error {
	opts = opts.withDefaults()
	if img == nil || img.Pixels == nil || img.Pixels.Dims() != 3 {
		return eris.New("raster: image must be a 3-D (band, row, column) array")
	}
	bands, height, width := img.NumBands(), img.Height(), img.Width()
	if bands == 0 || height == 0 || width == 0 {
		return eris.New("raster: empty image")
	}

	var bytesPer, format int
	switch opts.Type {
	case Float32:
		bytesPer, format = 4, sfFloat
	case Uint8:
		bytesPer, format = 1, sfUint
	default:
		return eris.Errorf("raster: unsupported sample type %q", opts.Type)
	}

	rowBytes := width * bands * bytesPer
	plane := height * width
	var strips [][]byte
	for y0 := 0; y0 < height; y0 += opts.RowsPerStrip {
		rows := min(opts.RowsPerStrip, height-y0)
		buf := make([]byte, rows*rowBytes)
		for r := 0; r < rows; r++ {
			for x := 0; x < width; x++ {
				for b := 0; b < bands; b++ {
					v := img.Pixels.Data[b*plane+(y0+r)*width+x]
					at := r*rowBytes + (x*bands+b)*bytesPer
					if opts.Type == Float32 {
						le.PutUint32(buf[at:], math.Float32bits(float32(v)))
					} else {
						buf[at] = toUint8(v)
					}
				}
			}
		}
		if opts.Deflate {
			var zb bytes.Buffer
			zw := zlib.NewWriter(&zb)
			if _, err := zw.Write(buf); err != nil {
				return eris.Wrap(err, "raster: deflate strip")
			}
			if err := zw.Close(); err != nil {
				return eris.Wrap(err, "raster: deflate strip")
			}
			buf = zb.Bytes()
		}
		strips = append(strips, buf)
	}

	offsets := make([]uint32, len(strips))
	counts := make([]uint32, len(strips))
	pos := uint32(8)
	for i, s := range strips {
		offsets[i] = pos
		counts[i] = uint32(len(s))
		pos += uint32(len(s))
		if pos%2 == 1 {
			pos++
		}
	}

	bps := make([]uint16, bands)
	sfs := make([]uint16, bands)
	for i := range bps {
		bps[i] = uint16(bytesPer * 8)
		sfs[i] = uint16(format)
	}
	compression := uint16(compNone)
	if opts.Deflate {
		compression = compDeflate
	}
	photometric := uint16(1)
	if opts.Type == Uint8 && bands == 3 {
		photometric = 2
	}

	fields := []field{
		longField(tagImageWidth, uint32(width)),
		longField(tagImageLength, uint32(height)),
		shortField(tagBitsPerSample, bps...),
		shortField(tagCompression, compression),
		shortField(tagPhotometric, photometric),
		longField(tagStripOffsets, offsets...),
		shortField(tagSamplesPerPixel, uint16(bands)),
		longField(tagRowsPerStrip, uint32(opts.RowsPerStrip)),
		longField(tagStripByteCounts, counts...),
		shortField(tagPlanarConfig, 1),
		shortField(tagSampleFormat, sfs...),
	}
	extra := bands - 1
	if photometric == 2 {
		extra = bands - 3
	}
	if extra > 0 {
		fields = append(fields, shortField(tagExtraSamples, make([]uint16, extra)...))
	}
	fields = append(fields, geoFields(img)...)
	if img.NoData != nil {
		fields = append(fields, asciiField(tagGDALNoData, strconv.FormatFloat(*img.NoData, 'g', -1, 64)))
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].tag < fields[j].tag })

	ifdOffset := pos
	dataOffset := ifdOffset + 2 + 12*uint32(len(fields)) + 4

	var out bytes.Buffer
	out.WriteString("II")
	_ = binary.Write(&out, le, uint16(42))
	_ = binary.Write(&out, le, ifdOffset)
	for _, s := range strips {
		out.Write(s)
		if out.Len()%2 == 1 {
			out.WriteByte(0)
		}
	}

	_ = binary.Write(&out, le, uint16(len(fields)))
	var tail bytes.Buffer
	for _, f := range fields {
		_ = binary.Write(&out, le, f.tag)
		_ = binary.Write(&out, le, f.typ)
		_ = binary.Write(&out, le, f.count)
		if len(f.data) <= 4 {
			var v [4]byte
			copy(v[:], f.data)
			out.Write(v[:])
			continue
		}
		_ = binary.Write(&out, le, dataOffset+uint32(tail.Len()))
		tail.Write(f.data)
		if tail.Len()%2 == 1 {
			tail.WriteByte(0)
		}
	}
	_ = binary.Write(&out, le, uint32(0))
	out.Write(tail.Bytes())

	_, err := w.Write(out.Bytes())
	return eris.Wrap(err, "raster: write geotiff")
}

func geoFields(img *Image) []field {
	g := img.Transform
	var fields []field
	if g[2] == 0 && g[4] == 0 {
		fields = append(fields,
			doubleField(tagModelPixelScale, g[1], -g[5], 0),
			doubleField(tagModelTiepoint, 0, 0, 0, g[0], g[3], 0),
		)
	} else {
		fields = append(fields, doubleField(tagModelTransformation,
			g[1], g[2], 0, g[0],
			g[4], g[5], 0, g[3],
			0, 0, 0, 0,
			0, 0, 0, 1,
		))
	}

	if img.CRS.EPSG == 0 {
		return fields
	}
	model, key := uint16(modelProjected), uint16(keyProjectedType)
	if img.CRS.IsGeographic() {
		model, key = modelGeographic, keyGeographicType
	}
	fields = append(fields, shortField(tagGeoKeyDirectory,
		1, 1, 0, 3,
		keyModelType, 0, 1, model,
		keyRasterType, 0, 1, rasterPixelArea,
		key, 0, 1, uint16(img.CRS.EPSG),
	))
	return fields
}

func toUint8(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}
