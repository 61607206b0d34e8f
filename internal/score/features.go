package score

import (
	"fmt"
	"math"

	"github.com/ppiankov/freightaudit/internal/model"
)

// Feature extracts one numeric column for the detector
type Feature struct {
	Name    string
	Extract func(s model.Shipment, expected model.ExpectedCharge) float64
}

// AllFeatures is the default feature set, in column order
var AllFeatures = []Feature{
	{"distance_miles", func(s model.Shipment, _ model.ExpectedCharge) float64 { return s.DistanceMiles }},
	{"weight_lb", func(s model.Shipment, _ model.ExpectedCharge) float64 { return s.WeightLb }},
	{"expected_linehaul", func(_ model.Shipment, e model.ExpectedCharge) float64 { return e.Linehaul }},
	{"expected_fuel", func(_ model.Shipment, e model.ExpectedCharge) float64 { return e.Fuel }},
	{"expected_accessorial", func(_ model.Shipment, e model.ExpectedCharge) float64 { return e.Liftgate }},
	{"expected_total", func(_ model.Shipment, e model.ExpectedCharge) float64 { return e.Total }},
	{"billed_linehaul", func(s model.Shipment, _ model.ExpectedCharge) float64 { return s.Billed.Linehaul }},
	{"billed_fuel", func(s model.Shipment, _ model.ExpectedCharge) float64 { return s.Billed.Fuel }},
	{"billed_accessorial", func(s model.Shipment, _ model.ExpectedCharge) float64 { return s.Billed.Accessorial }},
	{"billed_total", func(s model.Shipment, _ model.ExpectedCharge) float64 { return s.Billed.Total }},
}

// SelectFeatures returns the named features in the order given.
// An empty list selects AllFeatures.
func SelectFeatures(names []string) ([]Feature, error) {
	if len(names) == 0 {
		return AllFeatures, nil
	}

	byName := make(map[string]Feature, len(AllFeatures))
	for _, f := range AllFeatures {
		byName[f.Name] = f
	}

	selected := make([]Feature, 0, len(names))
	for _, name := range names {
		f, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown anomaly feature %q", name)
		}
		selected = append(selected, f)
	}
	return selected, nil
}

// FeatureNames returns the names of fs
func FeatureNames(fs []Feature) []string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.Name
	}
	return names
}

// Matrix builds one row per shipment. Non-finite values become 0.0.
func Matrix(shipments []model.Shipment, expected []model.ExpectedCharge, fs []Feature) [][]float64 {
	rows := make([][]float64, len(shipments))
	for i, s := range shipments {
		row := make([]float64, len(fs))
		for j, f := range fs {
			v := f.Extract(s, expected[i])
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			row[j] = v
		}
		rows[i] = row
	}
	return rows
}
