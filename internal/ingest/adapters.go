package ingest

import (
	"strings"

	"github.com/ppiankov/freightaudit/internal/model"
)

// Schema names a known external shipment layout
const (
	SchemaAuto          = "auto"
	SchemaStandard      = "standard"
	SchemaCarrierExport = "carrier_export"
)

// Adapter maps rows of one external schema onto model.Shipment
type Adapter interface {
	Name() string
	Required() []string
	Map(r *record) model.Shipment
}

// Adapters lists the known schemas in detection order
var Adapters = []Adapter{standardAdapter{}, carrierExportAdapter{}}

// AdapterFor returns the adapter for a schema name
func AdapterFor(name string) (Adapter, bool) {
	for _, a := range Adapters {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// detect picks the first adapter whose required columns are all present.
// When none fits, the error lists what the standard schema is missing.
func detect(h header) (Adapter, error) {
	for _, a := range Adapters {
		if len(h.missing(a.Required())) == 0 {
			return a, nil
		}
	}
	return nil, h.require(SchemaStandard, standardAdapter{}.Required())
}

// standardAdapter reads the native shipment export: one liftgate fee column
// and no source-side expected charges
type standardAdapter struct{}

func (standardAdapter) Name() string { return SchemaStandard }

func (standardAdapter) Required() []string {
	return []string{
		"shipment_id",
		"customer_id",
		"ship_date",
		"origin_zip",
		"destination_zip",
		"distance_miles",
		"weight_lb",
		"freight_class",
		"liftgate_required",
		"liftgate_fee_charged",
		"fuel_surcharge_amount",
		"base_linehaul_amount",
		"actual_billed_total",
	}
}

func (standardAdapter) Map(r *record) model.Shipment {
	return model.Shipment{
		ShipmentID:       r.str("shipment_id"),
		CustomerID:       r.str("customer_id"),
		Carrier:          r.str("carrier"),
		ShipDate:         r.date("ship_date"),
		OriginZip:        r.str("origin_zip"),
		DestinationZip:   r.str("destination_zip"),
		DistanceMiles:    r.float("distance_miles"),
		WeightLb:         r.float("weight_lb"),
		FreightClass:     r.float("freight_class"),
		LiftgateRequired: r.bool("liftgate_required"),
		Billed: model.Charges{
			Linehaul:    r.float("base_linehaul_amount"),
			Fuel:        r.float("fuel_surcharge_amount"),
			Accessorial: r.float("liftgate_fee_charged"),
			Total:       r.float("actual_billed_total"),
		},
		AccessorialBasis: model.BasisLiftgateFee,
	}
}

// carrierExportAdapter reads carrier invoice exports that carry the expected
// charges next to the billed ones and bill accessorials as a single total
type carrierExportAdapter struct{}

func (carrierExportAdapter) Name() string { return SchemaCarrierExport }

func (carrierExportAdapter) Required() []string {
	return []string{
		"invoice_id",
		"shipment_date",
		"carrier",
		"origin_zip",
		"dest_zip",
		"distance_miles",
		"weight_lbs",
		"accessorial_services",
		"expected_linehaul",
		"expected_fuel_surcharge",
		"expected_accessorials",
		"expected_total",
		"actual_billed_linehaul",
		"actual_billed_fuel",
		"actual_billed_accessorials",
		"actual_total_billed",
	}
}

func (carrierExportAdapter) Map(r *record) model.Shipment {
	customer := r.str("customer_id")
	if customer == "" {
		customer = r.str("carrier")
	}

	services := strings.ToLower(r.str("accessorial_services"))

	return model.Shipment{
		ShipmentID:       r.str("invoice_id"),
		CustomerID:       customer,
		Carrier:          r.str("carrier"),
		ShipDate:         r.date("shipment_date"),
		OriginZip:        r.str("origin_zip"),
		DestinationZip:   r.str("dest_zip"),
		DistanceMiles:    r.float("distance_miles"),
		WeightLb:         r.float("weight_lbs"),
		FreightClass:     r.optFloat("freight_class"),
		LiftgateRequired: strings.Contains(services, "liftgate"),
		Billed: model.Charges{
			Linehaul:    r.float("actual_billed_linehaul"),
			Fuel:        r.float("actual_billed_fuel"),
			Accessorial: r.float("actual_billed_accessorials"),
			Total:       r.float("actual_total_billed"),
		},
		Quoted: &model.Charges{
			Linehaul:    r.float("expected_linehaul"),
			Fuel:        r.float("expected_fuel_surcharge"),
			Accessorial: r.float("expected_accessorials"),
			Total:       r.float("expected_total"),
		},
		AccessorialBasis: model.BasisAccessorialTotal,
	}
}
