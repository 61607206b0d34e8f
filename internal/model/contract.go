package model

// RateContract is one negotiated lane in the immutable contract table
type RateContract struct {
	Origin                  string  `json:"origin" yaml:"origin" validate:"required"`
	Destination             string  `json:"destination" yaml:"destination" validate:"required"`
	ContractRatePerMile     float64 `json:"contract_rate_per_mile" yaml:"contract_rate_per_mile" validate:"gte=0"`
	AllowedFuelSurchargePct float64 `json:"allowed_fuel_surcharge_pct" yaml:"allowed_fuel_surcharge_pct" validate:"gte=0"`
	AllowedAccessorialDesc  string  `json:"allowed_accessorial_desc" yaml:"allowed_accessorial_desc"`
	AllowedAccessorialCap   float64 `json:"allowed_accessorial_cap" yaml:"allowed_accessorial_cap" validate:"gte=0"`
}

// Lane returns the raw "origin->destination" lane string
func (c RateContract) Lane() string {
	return c.Origin + "->" + c.Destination
}

// Invoice is a carrier invoice reconciled against the contract table
type Invoice struct {
	InvoiceID         string  `json:"invoice_id" validate:"required"`
	LoadID            string  `json:"load_id"`
	Origin            string  `json:"origin"`
	Destination       string  `json:"destination"`
	RateBilledPerMile float64 `json:"rate_billed_per_mile"`
	MilesBilled       float64 `json:"miles_billed"`
	FuelSurchargePct  float64 `json:"fuel_surcharge_pct"`
	AccessorialDesc   string  `json:"accessorial_desc"`
	AccessorialAmount float64 `json:"accessorial_amount"`
}

// Lane returns the raw "origin->destination" lane string
func (i Invoice) Lane() string {
	return i.Origin + "->" + i.Destination
}
