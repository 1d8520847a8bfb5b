// Package vector holds in-memory vector layers read from shapefiles: a
// go-geom geometry per feature plus typed attribute columns.
package vector

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/egm722/geomap-cli/internal/crs"
)

// Kind is the type of an attribute column.
type Kind int

// Attribute kinds.
const (
	KindString Kind = iota
	KindNumber
)

func (k Kind) String() string {
	if k == KindNumber {
		return "number"
	}
	return "string"
}

// Field describes an attribute column.
type Field struct {
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	Size      uint8  `json:"size,omitempty"`
	Precision uint8  `json:"precision,omitempty"`
}

// Value is a single attribute value. The zero Value is null.
type Value struct {
	Kind  Kind
	Str   string
	Num   float64
	Valid bool
}

// String constructs a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s, Valid: true} }

// Number constructs a numeric value. NaN is stored as null.
func Number(f float64) Value {
	if math.IsNaN(f) {
		return Value{Kind: KindNumber}
	}
	return Value{Kind: KindNumber, Num: f, Valid: true}
}

// Null constructs a null value of the given kind.
func Null(k Kind) Value { return Value{Kind: k} }

// Float returns the numeric value; ok is false for nulls and strings that
// do not parse as numbers.
func (v Value) Float() (float64, bool) {
	if !v.Valid {
		return 0, false
	}
	if v.Kind == KindNumber {
		return v.Num, true
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// String renders the value for display; nulls render as "".
func (v Value) String() string {
	if !v.Valid {
		return ""
	}
	if v.Kind == KindNumber {
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return v.Str
}

// Less orders values: nulls first, numbers numerically, strings lexically.
func (v Value) Less(o Value) bool {
	if !v.Valid || !o.Valid {
		return !v.Valid && o.Valid
	}
	if v.Kind == KindNumber && o.Kind == KindNumber {
		return v.Num < o.Num
	}
	return v.String() < o.String()
}

// Feature is a geometry plus attribute values aligned with Layer.Fields.
type Feature struct {
	Geom  geom.T
	Attrs []Value
}

// Layer is a table of features sharing a schema and CRS.
type Layer struct {
	Name     string
	CRS      crs.CRS
	Fields   []Field
	Features []Feature
}

// Len returns the number of features.
func (l *Layer) Len() int { return len(l.Features) }

// FieldIndex returns the index of the named column, or -1. Matching is
// case-insensitive, like DBF field names.
func (l *Layer) FieldIndex(name string) int {
	for i, f := range l.Fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// Field returns the named column definition.
func (l *Layer) Field(name string) (Field, bool) {
	i := l.FieldIndex(name)
	if i < 0 {
		return Field{}, false
	}
	return l.Fields[i], true
}

// Column returns every value of the named column.
func (l *Layer) Column(name string) ([]Value, error) {
	i := l.FieldIndex(name)
	if i < 0 {
		return nil, eris.Errorf("vector: layer %q has no column %q", l.Name, name)
	}
	vals := make([]Value, len(l.Features))
	for j, f := range l.Features {
		vals[j] = f.Attrs[i]
	}
	return vals, nil
}

// Numbers returns the named column as floats; nulls become NaN.
func (l *Layer) Numbers(name string) ([]float64, error) {
	vals, err := l.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		f, ok := v.Float()
		if !ok {
			f = math.NaN()
		}
		out[i] = f
	}
	return out, nil
}

// Strings returns the named column rendered as strings.
func (l *Layer) Strings(name string) ([]string, error) {
	vals, err := l.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.String()
	}
	return out, nil
}

// Value returns the value of column name for feature i.
func (l *Layer) Value(i int, name string) (Value, error) {
	idx := l.FieldIndex(name)
	if idx < 0 {
		return Value{}, eris.Errorf("vector: layer %q has no column %q", l.Name, name)
	}
	return l.Features[i].Attrs[idx], nil
}

// AddColumn appends a column, or replaces an existing column with the same
// name. len(vals) must equal the number of features.
func (l *Layer) AddColumn(f Field, vals []Value) error {
	if len(vals) != len(l.Features) {
		return eris.Errorf("vector: column %q has %d values for %d features", f.Name, len(vals), len(l.Features))
	}
	if i := l.FieldIndex(f.Name); i >= 0 {
		l.Fields[i] = f
		for j := range l.Features {
			l.Features[j].Attrs[i] = vals[j]
		}
		return nil
	}
	l.Fields = append(l.Fields, f)
	for j := range l.Features {
		l.Features[j].Attrs = append(l.Features[j].Attrs, vals[j])
	}
	return nil
}

// Area returns the planar area of feature i in squared CRS units. Non-areal
// geometries have zero area.
func (l *Layer) Area(i int) float64 {
	return Area(l.Features[i].Geom)
}

// Area returns the unsigned planar area of a polygonal geometry: the
// exterior ring less its holes, whatever the ring winding.
func Area(g geom.T) float64 {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonArea(t)
	case *geom.MultiPolygon:
		var a float64
		for i := 0; i < t.NumPolygons(); i++ {
			a += polygonArea(t.Polygon(i))
		}
		return a
	}
	return 0
}

func polygonArea(p *geom.Polygon) float64 {
	n := p.NumLinearRings()
	if n == 0 {
		return 0
	}
	a := math.Abs(p.LinearRing(0).Area())
	for i := 1; i < n; i++ {
		a -= math.Abs(p.LinearRing(i).Area())
	}
	return a
}

// Bounds is an axis-aligned extent.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Empty reports whether no coordinate has been added.
func (b Bounds) Empty() bool {
	return b.MinX > b.MaxX || b.MinY > b.MaxY
}

// Overlaps reports whether two extents share at least one point.
func (b Bounds) Overlaps(o Bounds) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// Union returns the smallest extent covering both.
func (b Bounds) Union(o Bounds) Bounds {
	if b.Empty() {
		return o
	}
	if o.Empty() {
		return b
	}
	return Bounds{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

// EmptyBounds returns an extent that any Union replaces.
func EmptyBounds() Bounds {
	return Bounds{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
}

// GeomBounds returns the extent of a geometry.
func GeomBounds(g geom.T) Bounds {
	if g == nil {
		return EmptyBounds()
	}
	flat := g.FlatCoords()
	stride := g.Stride()
	if len(flat) == 0 || stride < 2 {
		return EmptyBounds()
	}
	b := EmptyBounds()
	for i := 0; i+1 < len(flat); i += stride {
		x, y := flat[i], flat[i+1]
		b.MinX = math.Min(b.MinX, x)
		b.MinY = math.Min(b.MinY, y)
		b.MaxX = math.Max(b.MaxX, x)
		b.MaxY = math.Max(b.MaxY, y)
	}
	return b
}

// TotalBounds returns the extent of every feature, like GeoSeries.total_bounds.
func (l *Layer) TotalBounds() Bounds {
	b := EmptyBounds()
	for _, f := range l.Features {
		b = b.Union(GeomBounds(f.Geom))
	}
	return b
}

// Clone returns a deep copy of the layer's attributes. Geometries are shared;
// they are never mutated in place.
func (l *Layer) Clone() *Layer {
	out := &Layer{
		Name:     l.Name,
		CRS:      l.CRS,
		Fields:   append([]Field(nil), l.Fields...),
		Features: make([]Feature, len(l.Features)),
	}
	for i, f := range l.Features {
		out.Features[i] = Feature{Geom: f.Geom, Attrs: append([]Value(nil), f.Attrs...)}
	}
	return out
}
