package analysis

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/egm722/geomap-cli/internal/vector"
)

// SquareMetresPerKm2 converts a planar area in m² to km².
const SquareMetresPerKm2 = 1e6

// AddAreaColumn stores each feature's planar area divided by divisor. The
// layer must be in a projected CRS for the result to mean anything.
func AddAreaColumn(l *vector.Layer, name string, divisor float64) error {
	if divisor == 0 {
		return eris.New("analysis: area divisor must be non-zero")
	}
	if l.CRS.IsGeographic() {
		return eris.Errorf("analysis: layer %q is in geographic coordinates; reproject before computing area", l.Name)
	}
	vals := make([]vector.Value, l.Len())
	for i := range l.Features {
		if l.Features[i].Geom == nil {
			vals[i] = vector.Null(vector.KindNumber)
			continue
		}
		vals[i] = vector.Number(l.Area(i) / divisor)
	}
	return l.AddColumn(vector.Field{Name: name, Kind: vector.KindNumber, Size: 19, Precision: 6}, vals)
}

// AddDensityColumn stores popCol / areaCol. A zero or null area yields null.
func AddDensityColumn(l *vector.Layer, name, popCol, areaCol string) error {
	pops, err := l.Numbers(popCol)
	if err != nil {
		return err
	}
	areas, err := l.Numbers(areaCol)
	if err != nil {
		return err
	}
	vals := make([]vector.Value, l.Len())
	for i := range vals {
		if math.IsNaN(pops[i]) || math.IsNaN(areas[i]) || areas[i] == 0 {
			vals[i] = vector.Null(vector.KindNumber)
			continue
		}
		vals[i] = vector.Number(pops[i] / areas[i])
	}
	return l.AddColumn(vector.Field{Name: name, Kind: vector.KindNumber, Size: 19, Precision: 6}, vals)
}
