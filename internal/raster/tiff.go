package raster

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/image/tiff/lzw"

	"github.com/egm722/geomap-cli/internal/crs"
)

// TIFF tags read or written by this package.
const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagPhotometric         = 262
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagPlanarConfig        = 284
	tagPredictor           = 317
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagExtraSamples        = 338
	tagSampleFormat        = 339
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGDALNoData          = 42113
)

// Field types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndefined = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
)

var typeSizes = map[uint16]uint32{
	dtByte: 1, dtASCII: 1, dtShort: 2, dtLong: 4, dtRational: 8,
	dtSByte: 1, dtUndefined: 1, dtSShort: 2, dtSLong: 4, dtSRational: 8,
	dtFloat: 4, dtDouble: 8,
}

// Compression schemes.
const (
	compNone       = 1
	compLZW        = 5
	compDeflate    = 8
	compDeflateOld = 32946
	compPackBits   = 32773
)

// Sample formats.
const (
	sfUint  = 1
	sfInt   = 2
	sfFloat = 3
)

// GeoKeys.
const (
	keyModelType      = 1024
	keyRasterType     = 1025
	keyGeographicType = 2048
	keyProjectedType  = 3072

	modelProjected  = 1
	modelGeographic = 2
	rasterPixelArea = 1
	rasterPixelPt   = 2
	userDefined     = 32767
)

type entry struct {
	typ   uint16
	count uint32
	raw   []byte
}

// Upper bounds for malformed files whose size is not known up front.
const (
	maxTagBytes   = 64 << 20
	maxBlockBytes = 256 << 20
	maxSamples    = 1 << 28
)

// fits reports whether e holds count values of n bytes each.
func (e entry) fits(n int) bool {
	return uint64(len(e.raw)) >= uint64(e.count)*uint64(n)
}

type ifd struct {
	order   binary.ByteOrder
	entries map[uint16]entry
}

func (d *ifd) has(tag uint16) bool {
	_, ok := d.entries[tag]
	return ok
}

// uints returns an integer-typed field.
func (d *ifd) uints(tag uint16) []uint64 {
	e, ok := d.entries[tag]
	if !ok {
		return nil
	}
	var n int
	switch e.typ {
	case dtByte, dtUndefined:
		n = 1
	case dtShort:
		n = 2
	case dtLong:
		n = 4
	default:
		return nil
	}
	if !e.fits(n) {
		return nil
	}
	out := make([]uint64, e.count)
	for i := range out {
		switch e.typ {
		case dtByte, dtUndefined:
			out[i] = uint64(e.raw[i])
		case dtShort:
			out[i] = uint64(d.order.Uint16(e.raw[2*i:]))
		case dtLong:
			out[i] = uint64(d.order.Uint32(e.raw[4*i:]))
		default:
			return nil
		}
	}
	return out
}

func (d *ifd) uint(tag uint16, def uint64) uint64 {
	v := d.uints(tag)
	if len(v) == 0 {
		return def
	}
	return v[0]
}

// floats returns a floating-point or integer field as float64.
func (d *ifd) floats(tag uint16) []float64 {
	e, ok := d.entries[tag]
	if !ok {
		return nil
	}
	switch e.typ {
	case dtDouble:
		if !e.fits(8) {
			return nil
		}
		out := make([]float64, e.count)
		for i := range out {
			out[i] = math.Float64frombits(d.order.Uint64(e.raw[8*i:]))
		}
		return out
	case dtFloat:
		if !e.fits(4) {
			return nil
		}
		out := make([]float64, e.count)
		for i := range out {
			out[i] = float64(math.Float32frombits(d.order.Uint32(e.raw[4*i:])))
		}
		return out
	}
	u := d.uints(tag)
	out := make([]float64, len(u))
	for i, v := range u {
		out[i] = float64(v)
	}
	return out
}

func (d *ifd) ascii(tag uint16) string {
	e, ok := d.entries[tag]
	if !ok || e.typ != dtASCII {
		return ""
	}
	return strings.TrimRight(string(e.raw), "\x00 ")
}

// ReadGeoTIFF opens and decodes a GeoTIFF file.
func ReadGeoTIFF(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	st, err := f.Stat()
	if err != nil {
		return nil, eris.Wrapf(err, "raster: stat %s", path)
	}

	img, err := DecodeGeoTIFF(io.NewSectionReader(f, 0, st.Size()))
	if err != nil {
		return nil, eris.Wrapf(err, "raster: decode %s", path)
	}
	zap.L().Debug("raster: read geotiff",
		zap.String("path", path),
		zap.Int("bands", img.NumBands()),
		zap.Int("width", img.Width()),
		zap.Int("height", img.Height()),
		zap.String("crs", img.CRS.String()),
	)
	return img, nil
}

// DecodeGeoTIFF decodes the first image of a classic TIFF. When r has a
// Size method, tag and block lengths are checked against it.
func DecodeGeoTIFF(r io.ReaderAt) (*Image, error) {
	limit := readerSize(r)
	d, err := readIFD(r, limit)
	if err != nil {
		return nil, err
	}

	width := int(d.uint(tagImageWidth, 0))
	height := int(d.uint(tagImageLength, 0))
	if width <= 0 || height <= 0 {
		return nil, eris.Errorf("raster: invalid image size %dx%d", width, height)
	}
	spp := int(d.uint(tagSamplesPerPixel, 1))
	if spp < 1 {
		return nil, eris.New("raster: samples per pixel must be positive")
	}
	if uint64(width)*uint64(height)*uint64(spp) > maxSamples {
		return nil, eris.Errorf("raster: image too large: %dx%d with %d bands", width, height, spp)
	}

	bps := d.uints(tagBitsPerSample)
	if len(bps) == 0 {
		bps = []uint64{1}
	}
	for _, b := range bps {
		if b != bps[0] {
			return nil, eris.New("raster: mixed bits per sample are not supported")
		}
	}
	bits := int(bps[0])
	format := int(d.uint(tagSampleFormat, sfUint))
	if err := checkSampleType(bits, format); err != nil {
		return nil, err
	}

	dec := &decoder{
		r:           r,
		d:           d,
		width:       width,
		height:      height,
		spp:         spp,
		bytesPer:    bits / 8,
		format:      format,
		compression: int(d.uint(tagCompression, compNone)),
		predictor:   int(d.uint(tagPredictor, 1)),
		planar:      int(d.uint(tagPlanarConfig, 1)) == 2,
		out:         NewImage(spp, height, width),
		limit:       limit,
	}
	if dec.predictor != 1 && dec.predictor != 2 {
		return nil, eris.Errorf("raster: unsupported predictor %d", dec.predictor)
	}
	if err := dec.decodeBlocks(); err != nil {
		return nil, err
	}

	img := dec.out
	if err := georeference(d, img); err != nil {
		return nil, err
	}
	if s := d.ascii(tagGDALNoData); s != "" {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			img.NoData = &v
		}
	}
	return img, nil
}

func checkSampleType(bits, format int) error {
	switch format {
	case sfUint, sfInt:
		if bits == 8 || bits == 16 || bits == 32 {
			return nil
		}
	case sfFloat:
		if bits == 32 || bits == 64 {
			return nil
		}
	}
	return eris.Errorf("raster: unsupported sample type: %d-bit format %d", bits, format)
}

// readerSize returns the byte length of r, or 0 when unknown.
func readerSize(r io.ReaderAt) uint64 {
	if s, ok := r.(interface{ Size() int64 }); ok && s.Size() > 0 {
		return uint64(s.Size())
	}
	return 0
}

// withinLimit reports whether n bytes at off fit in a reader of the given
// size, falling back to ceiling when the size is unknown.
func withinLimit(off, n, size, ceiling uint64) bool {
	if size == 0 {
		return n <= ceiling
	}
	return n <= size && off <= size-n
}

func readIFD(r io.ReaderAt, size uint64) (*ifd, error) {
	var hdr [8]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, eris.Wrap(err, "raster: read header")
	}
	d := &ifd{entries: make(map[uint16]entry)}
	switch string(hdr[:2]) {
	case "II":
		d.order = binary.LittleEndian
	case "MM":
		d.order = binary.BigEndian
	default:
		return nil, eris.New("raster: not a TIFF file")
	}
	switch d.order.Uint16(hdr[2:]) {
	case 42:
	case 43:
		return nil, eris.New("raster: BigTIFF is not supported")
	default:
		return nil, eris.New("raster: bad TIFF magic number")
	}

	off := int64(d.order.Uint32(hdr[4:]))
	var cnt [2]byte
	if _, err := r.ReadAt(cnt[:], off); err != nil {
		return nil, eris.Wrap(err, "raster: read IFD")
	}
	n := int(d.order.Uint16(cnt[:]))
	buf := make([]byte, 12*n)
	if _, err := r.ReadAt(buf, off+2); err != nil {
		return nil, eris.Wrap(err, "raster: read IFD entries")
	}
	for i := 0; i < n; i++ {
		p := buf[12*i : 12*i+12]
		tag := d.order.Uint16(p[0:])
		typ := d.order.Uint16(p[2:])
		count := d.order.Uint32(p[4:])
		unit, ok := typeSizes[typ]
		if !ok {
			continue
		}
		total := uint64(unit) * uint64(count)
		var raw []byte
		if total <= 4 {
			raw = append([]byte(nil), p[8:8+total]...)
		} else {
			at := uint64(d.order.Uint32(p[8:]))
			if !withinLimit(at, total, size, maxTagBytes) {
				return nil, eris.Errorf("raster: tag %d overruns file (%d bytes at %d)", tag, total, at)
			}
			raw = make([]byte, total)
			if _, err := r.ReadAt(raw, int64(at)); err != nil {
				return nil, eris.Wrapf(err, "raster: read tag %d", tag)
			}
		}
		d.entries[tag] = entry{typ: typ, count: count, raw: raw}
	}
	return d, nil
}

type decoder struct {
	r           io.ReaderAt
	d           *ifd
	width       int
	height      int
	spp         int
	bytesPer    int
	format      int
	compression int
	predictor   int
	planar      bool
	out         *Image
	limit       uint64
}

// decodeBlocks walks strips or tiles. A strip is treated as a tile as wide
// as the image.
func (dec *decoder) decodeBlocks() error {
	d := dec.d
	var blockW, blockH int
	var offsets, counts []uint64
	if d.has(tagTileWidth) {
		blockW = int(d.uint(tagTileWidth, 0))
		blockH = int(d.uint(tagTileLength, 0))
		offsets = d.uints(tagTileOffsets)
		counts = d.uints(tagTileByteCounts)
	} else {
		blockW = dec.width
		blockH = int(d.uint(tagRowsPerStrip, uint64(dec.height)))
		if blockH > dec.height {
			blockH = dec.height
		}
		offsets = d.uints(tagStripOffsets)
		counts = d.uints(tagStripByteCounts)
	}
	if blockW <= 0 || blockH <= 0 {
		return eris.New("raster: invalid block size")
	}

	across := (dec.width + blockW - 1) / blockW
	down := (dec.height + blockH - 1) / blockH
	planes := 1
	if dec.planar {
		planes = dec.spp
	}
	if len(offsets) < across*down*planes || len(counts) < len(offsets) {
		return eris.Errorf("raster: expected %d blocks, found %d offsets", across*down*planes, len(offsets))
	}

	for p := 0; p < planes; p++ {
		for by := 0; by < down; by++ {
			for bx := 0; bx < across; bx++ {
				i := p*across*down + by*across + bx
				if err := dec.decodeBlock(p, bx*blockW, by*blockH, blockW, blockH, offsets[i], counts[i]); err != nil {
					return eris.Wrapf(err, "raster: block %d", i)
				}
			}
		}
	}
	return nil
}

func (dec *decoder) decodeBlock(plane, x0, y0, bw, bh int, offset, count uint64) error {
	if !withinLimit(offset, count, dec.limit, maxBlockBytes) {
		return eris.Errorf("block of %d bytes at %d overruns file", count, offset)
	}
	raw := make([]byte, count)
	if _, err := dec.r.ReadAt(raw, int64(offset)); err != nil && err != io.EOF {
		return eris.Wrap(err, "read")
	}
	buf, err := dec.decompress(raw)
	if err != nil {
		return err
	}

	samples := dec.spp
	if dec.planar {
		samples = 1
	}
	rowBytes := bw * samples * dec.bytesPer
	rows := bh
	// Strips at the bottom of the image may be short.
	if !dec.d.has(tagTileWidth) && y0+rows > dec.height {
		rows = dec.height - y0
	}
	if len(buf) < rows*rowBytes {
		return eris.Errorf("short block: %d bytes, want %d", len(buf), rows*rowBytes)
	}
	if dec.predictor == 2 {
		undoHorizontal(buf[:rows*rowBytes], dec.d.order, dec.bytesPer, samples, bw, rows)
	}

	px := dec.out.Pixels
	plane2 := dec.height * dec.width
	for r := 0; r < rows; r++ {
		y := y0 + r
		if y >= dec.height {
			break
		}
		for c := 0; c < bw; c++ {
			x := x0 + c
			if x >= dec.width {
				break
			}
			for s := 0; s < samples; s++ {
				band := s
				if dec.planar {
					band = plane
				}
				at := r*rowBytes + (c*samples+s)*dec.bytesPer
				px.Data[band*plane2+y*dec.width+x] = dec.sample(buf[at:])
			}
		}
	}
	return nil
}

func (dec *decoder) decompress(raw []byte) ([]byte, error) {
	switch dec.compression {
	case compNone:
		return raw, nil
	case compLZW:
		rc := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer rc.Close() //nolint:errcheck
		out, err := io.ReadAll(rc)
		if err != nil && len(out) == 0 {
			return nil, eris.Wrap(err, "lzw")
		}
		return out, nil
	case compDeflate, compDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, eris.Wrap(err, "deflate")
		}
		defer zr.Close() //nolint:errcheck
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, eris.Wrap(err, "deflate")
		}
		return out, nil
	case compPackBits:
		return unpackBits(raw)
	}
	return nil, eris.Errorf("unsupported compression %d", dec.compression)
}

func (dec *decoder) sample(b []byte) float64 {
	o := dec.d.order
	switch dec.bytesPer {
	case 1:
		if dec.format == sfInt {
			return float64(int8(b[0]))
		}
		return float64(b[0])
	case 2:
		if dec.format == sfInt {
			return float64(int16(o.Uint16(b)))
		}
		return float64(o.Uint16(b))
	case 4:
		switch dec.format {
		case sfInt:
			return float64(int32(o.Uint32(b)))
		case sfFloat:
			return float64(math.Float32frombits(o.Uint32(b)))
		}
		return float64(o.Uint32(b))
	case 8:
		return math.Float64frombits(o.Uint64(b))
	}
	return math.NaN()
}

// undoHorizontal reverses predictor 2: each sample is stored as the
// difference from the same sample of the previous pixel in the row.
func undoHorizontal(buf []byte, order binary.ByteOrder, bytesPer, samples, width, rows int) {
	rowBytes := width * samples * bytesPer
	for r := 0; r < rows; r++ {
		row := buf[r*rowBytes : (r+1)*rowBytes]
		for i := samples; i < width*samples; i++ {
			cur := row[i*bytesPer:]
			prev := row[(i-samples)*bytesPer:]
			switch bytesPer {
			case 1:
				cur[0] += prev[0]
			case 2:
				order.PutUint16(cur, order.Uint16(cur)+order.Uint16(prev))
			case 4:
				order.PutUint32(cur, order.Uint32(cur)+order.Uint32(prev))
			case 8:
				order.PutUint64(cur, order.Uint64(cur)+order.Uint64(prev))
			}
		}
	}
}

func unpackBits(src []byte) ([]byte, error) {
	var out []byte
	for i := 0; i < len(src); {
		n := int(int8(src[i]))
		i++
		switch {
		case n >= 0:
			if i+n+1 > len(src) {
				return nil, eris.New("packbits: literal run overflows input")
			}
			out = append(out, src[i:i+n+1]...)
			i += n + 1
		case n != -128:
			if i >= len(src) {
				return nil, eris.New("packbits: repeat run overflows input")
			}
			for k := 0; k < 1-n; k++ {
				out = append(out, src[i])
			}
			i++
		}
	}
	return out, nil
}

// georeference fills the transform and CRS from GeoTIFF tags. Images
// without georeferencing keep the identity transform.
func georeference(d *ifd, img *Image) error {
	keys := geoKeys(d)

	switch {
	case d.has(tagModelTransformation):
		m := d.floats(tagModelTransformation)
		if len(m) < 16 {
			return eris.New("raster: ModelTransformation needs 16 values")
		}
		img.Transform = GeoTransform{m[3], m[0], m[1], m[7], m[4], m[5]}
	case d.has(tagModelPixelScale) && d.has(tagModelTiepoint):
		s := d.floats(tagModelPixelScale)
		t := d.floats(tagModelTiepoint)
		if len(s) < 2 || len(t) < 6 {
			return eris.New("raster: malformed pixel scale or tiepoint")
		}
		img.Transform = GeoTransform{t[3] - t[0]*s[0], s[0], 0, t[4] + t[1]*s[1], 0, -s[1]}
	default:
		return nil
	}

	if keys[keyRasterType] == rasterPixelPt {
		g := img.Transform
		img.Transform[0] = g[0] - 0.5*g[1] - 0.5*g[2]
		img.Transform[3] = g[3] - 0.5*g[4] - 0.5*g[5]
	}

	code := 0
	if v := keys[keyProjectedType]; v != 0 && v != userDefined {
		code = v
	} else if v := keys[keyGeographicType]; v != 0 && v != userDefined && keys[keyModelType] != modelProjected {
		code = v
	}
	if code != 0 {
		c, err := crs.FromEPSG(code)
		if err != nil {
			zap.L().Warn("raster: unsupported EPSG code in GeoKeys", zap.Int("epsg", code))
			c = crs.CRS{EPSG: code, Name: "EPSG:" + strconv.Itoa(code)}
		}
		img.CRS = c
	}
	return nil
}

// geoKeys returns the inline SHORT-valued keys of the GeoKey directory.
func geoKeys(d *ifd) map[int]int {
	keys := make(map[int]int)
	dir := d.uints(tagGeoKeyDirectory)
	if len(dir) < 4 {
		return keys
	}
	n := int(dir[3])
	for i := 0; i < n && 4+4*i+3 < len(dir); i++ {
		e := dir[4+4*i:]
		if e[1] == 0 {
			keys[int(e[0])] = int(e[3])
		}
	}
	return keys
}
