// Package rating estimates what a shipment should cost under the tariff.
package rating

import (
	"github.com/ppiankov/freightaudit/internal/model"
)

// Band is a distance band of the tariff
type Band string

const (
	BandLocal    Band = "local"
	BandRegional Band = "regional"
	BandLonghaul Band = "longhaul"
)

// Model computes expected linehaul, fuel and liftgate charges.
// It holds no mutable state and is safe for concurrent use.
type Model struct {
	tariff model.TariffConfig
}

// NewModel creates a rate model for the given tariff
func NewModel(tariff model.TariffConfig) *Model {
	return &Model{tariff: tariff}
}

// NewDefaultModel creates a rate model using the standard tariff
func NewDefaultModel() *Model {
	return NewModel(model.DefaultTariff())
}

// BandFor classifies a distance into a band
func (m *Model) BandFor(miles float64) Band {
	switch {
	case miles <= m.tariff.LocalMaxMiles:
		return BandLocal
	case miles <= m.tariff.RegionalMaxMiles:
		return BandRegional
	default:
		return BandLonghaul
	}
}

// PerPoundRate returns the base rate per pound for a band
func (m *Model) PerPoundRate(band Band) float64 {
	return bandValue(m.tariff.PerPound, band)
}

// FuelPct returns the expected fuel surcharge share of linehaul for a band
func (m *Model) FuelPct(band Band) float64 {
	return bandValue(m.tariff.FuelPct, band)
}

// ClassMultiplier returns the multiplier for an ordinal freight class.
// Tiers are checked in order; classes above every tier use the default.
func (m *Model) ClassMultiplier(freightClass float64) float64 {
	for _, tier := range m.tariff.ClassTiers {
		if freightClass <= tier.MaxClass {
			return tier.Multiplier
		}
	}
	return m.tariff.DefaultClassMultiplier
}

// Estimate returns the expected charges for one shipment.
// Total is always the exact sum of its parts.
func (m *Model) Estimate(s model.Shipment) model.ExpectedCharge {
	band := m.BandFor(s.DistanceMiles)
	weight := s.WeightLb
	if weight < 0 {
		weight = 0
	}

	linehaul := m.PerPoundRate(band) * m.ClassMultiplier(s.FreightClass) * weight
	fuel := m.FuelPct(band) * linehaul

	liftgate := 0.0
	if s.LiftgateRequired {
		liftgate = m.tariff.LiftgateFee
	}

	return model.NewExpectedCharge(linehaul, fuel, liftgate)
}

// EstimateBatch maps Estimate over a batch, preserving order
func (m *Model) EstimateBatch(shipments []model.Shipment) []model.ExpectedCharge {
	out := make([]model.ExpectedCharge, len(shipments))
	for i, s := range shipments {
		out[i] = m.Estimate(s)
	}
	return out
}

// Expected returns the source-quoted charges when present, otherwise the estimate
func (m *Model) Expected(s model.Shipment) model.ExpectedCharge {
	if s.Quoted != nil {
		return model.ExpectedFromQuote(*s.Quoted)
	}
	return m.Estimate(s)
}

func bandValue(v model.BandValues, band Band) float64 {
	switch band {
	case BandLocal:
		return v.Local
	case BandRegional:
		return v.Regional
	default:
		return v.Longhaul
	}
}
