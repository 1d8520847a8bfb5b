package analysis

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/egm722/geomap-cli/internal/vector"
)

// SummaryOptions names the columns SummarizeWards reads.
type SummaryOptions struct {
	CountyCol     string
	WardCol       string
	PopulationCol string
}

func (o SummaryOptions) withDefaults() SummaryOptions {
	if o.CountyCol == "" {
		o.CountyCol = "CountyName"
	}
	if o.WardCol == "" {
		o.WardCol = "Ward"
	}
	if o.PopulationCol == "" {
		o.PopulationCol = "Population"
	}
	return o
}

// KeyedValue is a labelled number, such as a county and its population.
type KeyedValue struct {
	Key   string  `json:"key" csv:"key"`
	Value float64 `json:"value" csv:"value"`
}

// CountySummary is the set of figures the wards command reports.
type CountySummary struct {
	Populations *Series

	MaxCounty KeyedValue
	MinCounty KeyedValue
	MaxWard   KeyedValue
	MinWard   KeyedValue

	ColumnMax []Extreme
	ColumnMin []Extreme

	MultiCountyWards      []string
	MultiCountyPopulation float64
}

// SummarizeWards computes the per-county populations from a ward/county
// join, the most and least populous ward from the ward layer itself, and
// the wards that fall in more than one county.
func SummarizeWards(joined *Table, wards *vector.Layer, opts SummaryOptions) (*CountySummary, error) {
	opts = opts.withDefaults()
	s := &CountySummary{}

	pops, err := GroupSum(joined, opts.CountyCol, opts.PopulationCol)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: county populations")
	}
	s.Populations = pops

	if s.MaxCounty.Key, s.MaxCounty.Value, err = pops.IdxMax(); err != nil {
		return nil, err
	}
	if s.MinCounty.Key, s.MinCounty.Value, err = pops.IdxMin(); err != nil {
		return nil, err
	}

	if s.MaxWard, err = wardAt(wards, opts, RowWithMax); err != nil {
		return nil, err
	}
	if s.MinWard, err = wardAt(wards, opts, RowWithMin); err != nil {
		return nil, err
	}

	s.ColumnMax, s.ColumnMin = ColumnExtremes(wards)

	if s.MultiCountyWards, err = DuplicateValues(joined, opts.WardCol); err != nil {
		return nil, err
	}
	if s.MultiCountyPopulation, err = SumWhereIn(joined, opts.WardCol, s.MultiCountyWards, opts.PopulationCol); err != nil {
		return nil, err
	}
	return s, nil
}

func wardAt(wards *vector.Layer, opts SummaryOptions, pick func(*vector.Layer, string) (int, error)) (KeyedValue, error) {
	i, err := pick(wards, opts.PopulationCol)
	if err != nil {
		return KeyedValue{}, err
	}
	name, err := wards.Value(i, opts.WardCol)
	if err != nil {
		return KeyedValue{}, err
	}
	pop, _ := wards.Value(i, opts.PopulationCol)
	f, _ := pop.Float()
	return KeyedValue{Key: name.String(), Value: f}, nil
}

// TitleCase renders an upper-case label such as "ANTRIM" as "Antrim".
func TitleCase(s string) string {
	return cases.Title(language.BritishEnglish).String(strings.ToLower(s))
}
