package synth

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/freightaudit/internal/ingest"
	"github.com/ppiankov/freightaudit/internal/model"
)

// ShipmentColumns is the standard schema plus carrier and the injected error
var ShipmentColumns = []string{
	"shipment_id",
	"customer_id",
	"carrier",
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
	"error_injected",
}

// WriteShipments writes rows as a standard-schema CSV
func WriteShipments(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ShipmentColumns); err != nil {
		return err
	}
	for _, r := range rows {
		s := r.Shipment
		liftgate := "no"
		if s.LiftgateRequired {
			liftgate = "yes"
		}
		record := []string{
			s.ShipmentID,
			s.CustomerID,
			s.Carrier,
			s.ShipDate.Format("2006-01-02"),
			s.OriginZip,
			s.DestinationZip,
			num(s.DistanceMiles),
			num(s.WeightLb),
			num(s.FreightClass),
			liftgate,
			money(s.Billed.Accessorial),
			money(s.Billed.Fuel),
			money(s.Billed.Linehaul),
			money(s.Billed.Total),
			string(r.Injected),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteContractsCSV writes a contract table
func WriteContractsCSV(w io.Writer, contracts []model.RateContract) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ingest.ContractColumns); err != nil {
		return err
	}
	for _, c := range contracts {
		record := []string{
			c.Origin,
			c.Destination,
			money(c.ContractRatePerMile),
			num(c.AllowedFuelSurchargePct),
			c.AllowedAccessorialDesc,
			money(c.AllowedAccessorialCap),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteContractsYAML writes contracts under a top-level "contracts" key
func WriteContractsYAML(w io.Writer, contracts []model.RateContract) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string][]model.RateContract{"contracts": contracts}); err != nil {
		return fmt.Errorf("encode contracts: %w", err)
	}
	return enc.Close()
}

// WriteInvoices writes invoices plus the injected deviation
func WriteInvoices(w io.Writer, rows []InvoiceRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, ingest.InvoiceColumns...), "error_injected")); err != nil {
		return err
	}
	for _, r := range rows {
		inv := r.Invoice
		record := []string{
			inv.InvoiceID,
			inv.LoadID,
			inv.Origin,
			inv.Destination,
			money(inv.RateBilledPerMile),
			num(inv.MilesBilled),
			num(inv.FuelSurchargePct),
			inv.AccessorialDesc,
			money(inv.AccessorialAmount),
			string(r.Injected),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
