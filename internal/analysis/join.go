// Package analysis computes the tabular results of the ward/county pipeline:
// spatial joins, grouped sums, extremes, duplicate membership and density.
package analysis

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/egm722/geomap-cli/internal/crs"
	"github.com/egm722/geomap-cli/internal/vector"
)

// IndexRight is the join column holding the matched right feature index.
const IndexRight = "index_right"

// How selects the join type.
type How string

// Supported join types.
const (
	Inner How = "inner"
	Left  How = "left"
)

// JoinOptions configures SpatialJoin.
type JoinOptions struct {
	How     How
	LSuffix string
	RSuffix string
}

func (o JoinOptions) withDefaults() JoinOptions {
	if o.How == "" {
		o.How = Inner
	}
	if o.LSuffix == "" {
		o.LSuffix = "left"
	}
	if o.RSuffix == "" {
		o.RSuffix = "right"
	}
	return o
}

// Table is the ephemeral result of a join: the left geometry per row plus
// the combined attribute columns.
type Table struct {
	CRS     crs.CRS
	Columns []vector.Field
	Rows    [][]vector.Value
	Geoms   []geom.T
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// ColumnIndex finds a column by exact name, falling back to the suffixed
// names a join produces for colliding columns.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	for _, suffix := range []string{"_right", "_left"} {
		for i, c := range t.Columns {
			if strings.EqualFold(c.Name, name+suffix) {
				return i
			}
		}
	}
	return -1
}

// Column returns the values of the named column.
func (t *Table) Column(name string) ([]vector.Value, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, eris.Errorf("analysis: table has no column %q", name)
	}
	out := make([]vector.Value, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[idx]
	}
	return out, nil
}

// Strings returns the named column rendered as strings.
func (t *Table) Strings(name string) ([]string, error) {
	vals, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.String()
	}
	return out, nil
}

// Numbers returns the named column as floats; nulls become NaN.
func (t *Table) Numbers(name string) ([]float64, error) {
	vals, err := t.Column(name)
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

// SpatialJoin pairs every left feature with every right feature it
// intersects. Columns present on both sides are suffixed with
// "_"+LSuffix / "_"+RSuffix. Rows are ordered by left then right index.
// Left joins keep unmatched left rows with null right columns.
func SpatialJoin(left, right *vector.Layer, opts JoinOptions) (*Table, error) {
	opts = opts.withDefaults()
	if opts.How != Inner && opts.How != Left {
		return nil, eris.Errorf("analysis: unsupported join type %q", opts.How)
	}
	if !left.CRS.IsZero() && !right.CRS.IsZero() && !left.CRS.Equal(right.CRS) {
		return nil, eris.Errorf("analysis: CRS mismatch between %q (%s) and %q (%s)",
			left.Name, left.CRS, right.Name, right.CRS)
	}

	t := &Table{CRS: left.CRS}
	t.Columns = joinColumns(left.Fields, right.Fields, opts)

	ix := vector.NewIndex(right)
	var candidates, matched int
	for _, lf := range left.Features {
		hits := 0
		for _, j := range ix.Search(vector.GeomBounds(lf.Geom)) {
			candidates++
			rf := right.Features[j]
			if !vector.Intersects(lf.Geom, rf.Geom) {
				continue
			}
			row := make([]vector.Value, 0, len(t.Columns))
			row = append(row, lf.Attrs...)
			row = append(row, vector.Number(float64(j)))
			row = append(row, rf.Attrs...)
			t.Rows = append(t.Rows, row)
			t.Geoms = append(t.Geoms, lf.Geom)
			hits++
		}
		if hits == 0 && opts.How == Left {
			row := make([]vector.Value, 0, len(t.Columns))
			row = append(row, lf.Attrs...)
			row = append(row, vector.Null(vector.KindNumber))
			for _, f := range right.Fields {
				row = append(row, vector.Null(f.Kind))
			}
			t.Rows = append(t.Rows, row)
			t.Geoms = append(t.Geoms, lf.Geom)
		}
		matched += hits
	}

	zap.L().Debug("analysis: spatial join complete",
		zap.String("left", left.Name),
		zap.String("right", right.Name),
		zap.Int("candidates", candidates),
		zap.Int("matches", matched),
		zap.Int("rows", len(t.Rows)),
	)
	return t, nil
}

func joinColumns(left, right []vector.Field, opts JoinOptions) []vector.Field {
	collides := func(name string, others []vector.Field) bool {
		for _, o := range others {
			if strings.EqualFold(o.Name, name) {
				return true
			}
		}
		return false
	}

	cols := make([]vector.Field, 0, len(left)+len(right)+1)
	for _, f := range left {
		if collides(f.Name, right) {
			f.Name = f.Name + "_" + opts.LSuffix
		}
		cols = append(cols, f)
	}
	cols = append(cols, vector.Field{Name: IndexRight, Kind: vector.KindNumber})
	for _, f := range right {
		if collides(f.Name, left) {
			f.Name = f.Name + "_" + opts.RSuffix
		}
		cols = append(cols, f)
	}
	return cols
}
