package analysis

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"

	"github.com/egm722/geomap-cli/internal/vector"
)

// Series is a keyed numeric column, ordered by key.
type Series struct {
	Name   string
	Keys   []string
	Values []float64
}

// Len returns the number of entries.
func (s *Series) Len() int { return len(s.Keys) }

// Get returns the value for key.
func (s *Series) Get(key string) (float64, bool) {
	i := sort.SearchStrings(s.Keys, key)
	if i < len(s.Keys) && s.Keys[i] == key {
		return s.Values[i], true
	}
	return 0, false
}

// IdxMax returns the key with the largest value; ties go to the first key.
func (s *Series) IdxMax() (string, float64, error) {
	if s.Len() == 0 {
		return "", 0, eris.Errorf("analysis: idxmax of empty series %q", s.Name)
	}
	i := floats.MaxIdx(s.Values)
	return s.Keys[i], s.Values[i], nil
}

// IdxMin returns the key with the smallest value; ties go to the first key.
func (s *Series) IdxMin() (string, float64, error) {
	if s.Len() == 0 {
		return "", 0, eris.Errorf("analysis: idxmin of empty series %q", s.Name)
	}
	i := floats.MinIdx(s.Values)
	return s.Keys[i], s.Values[i], nil
}

// GroupSum sums col per distinct value of by. Null values of col are
// skipped; rows with a null key are dropped. Keys are sorted.
func GroupSum(t *Table, by, col string) (*Series, error) {
	keys, err := t.Column(by)
	if err != nil {
		return nil, err
	}
	vals, err := t.Numbers(col)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]float64)
	for i, k := range keys {
		if !k.Valid {
			continue
		}
		key := k.String()
		if _, ok := groups[key]; !ok {
			groups[key] = nil
		}
		if !math.IsNaN(vals[i]) {
			groups[key] = append(groups[key], vals[i])
		}
	}

	s := &Series{Name: col, Keys: make([]string, 0, len(groups))}
	for k := range groups {
		s.Keys = append(s.Keys, k)
	}
	sort.Strings(s.Keys)
	s.Values = make([]float64, len(s.Keys))
	for i, k := range s.Keys {
		s.Values[i] = floats.Sum(groups[k])
	}
	return s, nil
}

// Extreme is the maximum or minimum of one column.
type Extreme struct {
	Field vector.Field
	Value vector.Value
}

// ColumnExtremes returns the per-column maximum and minimum over every
// attribute column, skipping nulls. Strings compare lexically.
func ColumnExtremes(l *vector.Layer) (maxes, mins []Extreme) {
	maxes = make([]Extreme, len(l.Fields))
	mins = make([]Extreme, len(l.Fields))
	for c, f := range l.Fields {
		maxes[c] = Extreme{Field: f, Value: vector.Null(f.Kind)}
		mins[c] = Extreme{Field: f, Value: vector.Null(f.Kind)}
		for _, feat := range l.Features {
			v := feat.Attrs[c]
			if !v.Valid {
				continue
			}
			if !maxes[c].Value.Valid || maxes[c].Value.Less(v) {
				maxes[c].Value = v
			}
			if !mins[c].Value.Valid || v.Less(mins[c].Value) {
				mins[c].Value = v
			}
		}
	}
	return maxes, mins
}

// RowWithMax returns the index of the feature with the largest value of col.
func RowWithMax(l *vector.Layer, col string) (int, error) {
	return rowWith(l, col, func(a, b float64) bool { return a > b })
}

// RowWithMin returns the index of the feature with the smallest value of col.
func RowWithMin(l *vector.Layer, col string) (int, error) {
	return rowWith(l, col, func(a, b float64) bool { return a < b })
}

func rowWith(l *vector.Layer, col string, better func(a, b float64) bool) (int, error) {
	vals, err := l.Numbers(col)
	if err != nil {
		return -1, err
	}
	best := -1
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || better(v, vals[best]) {
			best = i
		}
	}
	if best < 0 {
		return -1, eris.Errorf("analysis: column %q has no non-null values", col)
	}
	return best, nil
}
