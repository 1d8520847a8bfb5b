package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Duplicated marks every row whose col value already appeared on an earlier
// row. The first occurrence is never marked.
func Duplicated(t *Table, col string) ([]bool, error) {
	vals, err := t.Strings(col)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(vals))
	out := make([]bool, len(vals))
	for i, v := range vals {
		if _, ok := seen[v]; ok {
			out[i] = true
			continue
		}
		seen[v] = struct{}{}
	}
	return out, nil
}

// DuplicateValues returns the distinct col values that occur on more than
// one row, in order of their second occurrence.
func DuplicateValues(t *Table, col string) ([]string, error) {
	dup, err := Duplicated(t, col)
	if err != nil {
		return nil, err
	}
	vals, err := t.Strings(col)
	if err != nil {
		return nil, err
	}
	var out []string
	added := make(map[string]struct{})
	for i, d := range dup {
		if !d {
			continue
		}
		if _, ok := added[vals[i]]; ok {
			continue
		}
		added[vals[i]] = struct{}{}
		out = append(out, vals[i])
	}
	return out, nil
}

// SumWhereIn sums sumCol over every row whose keyCol value is in keys.
// Repeated rows are all counted, so a ward joined to two counties
// contributes its population twice.
func SumWhereIn(t *Table, keyCol string, keys []string, sumCol string) (float64, error) {
	names, err := t.Strings(keyCol)
	if err != nil {
		return 0, err
	}
	vals, err := t.Numbers(sumCol)
	if err != nil {
		return 0, err
	}
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	var picked []float64
	for i, n := range names {
		if _, ok := want[n]; ok && !math.IsNaN(vals[i]) {
			picked = append(picked, vals[i])
		}
	}
	return floats.Sum(picked), nil
}
