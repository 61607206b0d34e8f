package model

import (
	"math"
	"time"
)

// AccessorialBasis describes what the billed accessorial amount of a shipment covers
type AccessorialBasis string

const (
	BasisLiftgateFee      AccessorialBasis = "liftgate_fee"      // single liftgate fee column
	BasisAccessorialTotal AccessorialBasis = "accessorial_total" // sum of all accessorial services
)

// Charges is a linehaul/fuel/accessorial split with its billed or expected total
type Charges struct {
	Linehaul    float64 `json:"linehaul" yaml:"linehaul"`
	Fuel        float64 `json:"fuel" yaml:"fuel"`
	Accessorial float64 `json:"accessorial" yaml:"accessorial"`
	Total       float64 `json:"total" yaml:"total"`
}

// Shipment is the canonical freight movement record consumed by the audit core.
// It is produced by an ingest adapter and never mutated afterwards.
type Shipment struct {
	ShipmentID       string    `json:"shipment_id" validate:"required"`
	CustomerID       string    `json:"customer_id"`
	Carrier          string    `json:"carrier,omitempty"`
	ShipDate         time.Time `json:"ship_date"`
	OriginZip        string    `json:"origin_zip"`
	DestinationZip   string    `json:"destination_zip"`
	DistanceMiles    float64   `json:"distance_miles" validate:"gte=0"`
	WeightLb         float64   `json:"weight_lb" validate:"gte=0"`
	FreightClass     float64   `json:"freight_class"`
	LiftgateRequired bool      `json:"liftgate_required"`

	// Billed holds what the carrier actually invoiced
	Billed Charges `json:"billed"`

	// Quoted holds expected charges supplied by the source system.
	// When nil the rate model estimates them.
	Quoted *Charges `json:"quoted,omitempty"`

	AccessorialBasis AccessorialBasis `json:"accessorial_basis"`
}

// ExpectedCharge is what a shipment should have cost
type ExpectedCharge struct {
	Linehaul float64 `json:"expected_linehaul_amount"`
	Fuel     float64 `json:"expected_fuel_amount"`
	Liftgate float64 `json:"expected_liftgate_fee"`
	Total    float64 `json:"expected_billed_total"`
}

// NewExpectedCharge builds an ExpectedCharge whose total is the exact sum of its parts
func NewExpectedCharge(linehaul, fuel, liftgate float64) ExpectedCharge {
	return ExpectedCharge{
		Linehaul: linehaul,
		Fuel:     fuel,
		Liftgate: liftgate,
		Total:    linehaul + fuel + liftgate,
	}
}

// ExpectedFromQuote converts source-supplied charges into an ExpectedCharge.
// The quoted total is kept as-is since it is what the source system expected.
func ExpectedFromQuote(q Charges) ExpectedCharge {
	return ExpectedCharge{
		Linehaul: q.Linehaul,
		Fuel:     q.Fuel,
		Liftgate: q.Accessorial,
		Total:    q.Total,
	}
}

// Consistent reports whether Total equals the sum of the components within tol
func (e ExpectedCharge) Consistent(tol float64) bool {
	return math.Abs(e.Total-(e.Linehaul+e.Fuel+e.Liftgate)) <= tol
}
