// Package synth generates seeded demo data: shipment batches with injected
// billing errors, and contract tables with matching carrier invoices.
package synth

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/ppiankov/freightaudit/internal/model"
	"github.com/ppiankov/freightaudit/internal/rating"
	"github.com/ppiankov/freightaudit/internal/report"
)

// ErrorKind names the billing error injected into a generated row
type ErrorKind string

const (
	ErrorNone                ErrorKind = "none"
	ErrorUnderbilledLinehaul ErrorKind = "underbilled_linehaul"
	ErrorMissingFuel         ErrorKind = "missing_fuel_surcharge"
	ErrorDroppedLiftgate     ErrorKind = "dropped_liftgate"
	ErrorDuplicateID         ErrorKind = "duplicate_id"

	ErrorRateOverContract ErrorKind = "rate_over_contract"
	ErrorFuelOverContract ErrorKind = "fuel_over_contract"
	ErrorUnlistedCharge   ErrorKind = "unlisted_accessorial"
	ErrorAccessorialOver  ErrorKind = "accessorial_over_cap"
)

type weighted struct {
	kind   ErrorKind
	weight float64
}

var shipmentErrors = []weighted{
	{ErrorUnderbilledLinehaul, 0.40},
	{ErrorMissingFuel, 0.30},
	{ErrorDroppedLiftgate, 0.20},
	{ErrorDuplicateID, 0.10},
}

var invoiceErrors = []weighted{
	{ErrorRateOverContract, 0.45},
	{ErrorFuelOverContract, 0.25},
	{ErrorUnlistedCharge, 0.15},
	{ErrorAccessorialOver, 0.15},
}

type metro struct {
	name string
	zips []string
}

var metros = []metro{
	{"New York, NY", []string{"10001", "10002", "10003", "10011", "10013"}},
	{"Los Angeles, CA", []string{"90001", "90002", "90005", "90011", "90013"}},
	{"Chicago, IL", []string{"60601", "60602", "60603", "60604", "60605"}},
	{"Houston, TX", []string{"77001", "77002", "77003", "77004", "77005"}},
	{"Phoenix, AZ", []string{"85001", "85003", "85004", "85006", "85007"}},
	{"Philadelphia, PA", []string{"19101", "19102", "19103", "19104", "19106"}},
	{"San Antonio, TX", []string{"78201", "78202", "78203", "78204", "78205"}},
	{"San Diego, CA", []string{"92101", "92102", "92103", "92104", "92105"}},
	{"Dallas, TX", []string{"75201", "75202", "75203", "75204", "75205"}},
	{"Miami, FL", []string{"33101", "33125", "33126", "33127", "33128"}},
}

// approximate road miles between metros, keyed by metros index
var distances = map[[2]int]float64{
	{0, 1}: 2789, {0, 2}: 789, {0, 3}: 1628, {1, 4}: 373, {2, 8}: 967,
	{3, 9}: 1187, {5, 7}: 2707, {6, 4}: 842, {8, 9}: 1302, {0, 9}: 1280,
	{8, 3}: 239, {6, 3}: 197, {1, 7}: 120, {0, 5}: 95,
}

var carriers = []string{"FedEx Freight", "UPS Freight", "XPO Logistics", "Old Dominion", "YRC Freight"}

var freightClasses = []float64{50, 55, 60, 65, 70, 77.5, 85, 92.5, 100, 125}

var accessorialDescs = []string{"Liftgate", "Residential Delivery", "Inside Delivery", "Appointment Delivery"}

var unlistedDescs = []string{"Detention", "Storage", "Reconsignment"}

// Options controls generation
type Options struct {
	Rows      int
	ErrorRate float64 // share of rows carrying an injected error
	Seed      int64
	Start     time.Time
	End       time.Time
	Customers int
	Tariff    model.TariffConfig
}

// DefaultOptions returns a year of 2024 shipments with an 8% error rate
func DefaultOptions() Options {
	return Options{
		Rows:      1000,
		ErrorRate: 0.08,
		Seed:      42,
		Start:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Customers: 40,
		Tariff:    model.DefaultTariff(),
	}
}

// Row is a generated shipment and the error injected into it
type Row struct {
	Shipment model.Shipment
	Injected ErrorKind
}

// InvoiceRow is a generated invoice and the deviation injected into it
type InvoiceRow struct {
	Invoice  model.Invoice
	Injected ErrorKind
}

// Generator produces deterministic data for a seed
type Generator struct {
	opts  Options
	rng   *rand.Rand
	rates *rating.Model
}

// New creates a generator. Zero fields of opts take their defaults.
func New(opts Options) *Generator {
	def := DefaultOptions()
	if opts.Rows <= 0 {
		opts.Rows = def.Rows
	}
	if opts.ErrorRate < 0 {
		opts.ErrorRate = 0
	}
	if opts.Start.IsZero() {
		opts.Start = def.Start
	}
	if opts.End.Before(opts.Start) {
		opts.End = opts.Start
	}
	if opts.Customers <= 0 {
		opts.Customers = def.Customers
	}
	if opts.Tariff.ClassTiers == nil && opts.Tariff.LiftgateFee == 0 {
		opts.Tariff = def.Tariff
	}

	return &Generator{
		opts:  opts,
		rng:   rand.New(rand.NewPCG(uint64(opts.Seed), 0x9e3779b97f4a7c15)),
		rates: rating.NewModel(opts.Tariff),
	}
}

// Shipments generates opts.Rows shipments in the standard schema
func (g *Generator) Shipments() []Row {
	rows := make([]Row, 0, g.opts.Rows)
	for i := 0; i < g.opts.Rows; i++ {
		s := g.shipment(i)
		kind := ErrorNone
		if g.rng.Float64() < g.opts.ErrorRate {
			kind = g.pick(shipmentErrors)
		}
		if kind == ErrorDuplicateID && len(rows) == 0 {
			kind = ErrorNone
		}
		g.inject(&s, kind, rows)
		rows = append(rows, Row{Shipment: s, Injected: kind})
	}
	return rows
}

func (g *Generator) shipment(i int) model.Shipment {
	o, d := g.lane()
	s := model.Shipment{
		ShipmentID:       fmt.Sprintf("SHP-%06d", i+1),
		CustomerID:       fmt.Sprintf("CUST-%03d", g.rng.IntN(g.opts.Customers)+1),
		Carrier:          carriers[g.rng.IntN(len(carriers))],
		ShipDate:         g.date(),
		OriginZip:        metros[o].zips[g.rng.IntN(len(metros[o].zips))],
		DestinationZip:   metros[d].zips[g.rng.IntN(len(metros[d].zips))],
		DistanceMiles:    g.distance(o, d),
		WeightLb:         float64(150 + g.rng.IntN(4851)),
		FreightClass:     freightClasses[g.rng.IntN(len(freightClasses))],
		LiftgateRequired: g.rng.Float64() < 0.2,
		AccessorialBasis: model.BasisLiftgateFee,
	}
	s.Billed = g.billed(s)
	return s
}

// billed returns charges equal to the expected ones, rounded to cents
func (g *Generator) billed(s model.Shipment) model.Charges {
	e := g.rates.Estimate(s)
	c := model.Charges{
		Linehaul:    report.Round(e.Linehaul, 2),
		Fuel:        report.Round(e.Fuel, 2),
		Accessorial: report.Round(e.Liftgate, 2),
	}
	c.Total = report.Round(c.Linehaul+c.Fuel+c.Accessorial, 2)
	return c
}

func (g *Generator) inject(s *model.Shipment, kind ErrorKind, prior []Row) {
	switch kind {
	case ErrorUnderbilledLinehaul:
		s.Billed.Linehaul = report.Round(s.Billed.Linehaul*(1-g.uniform(0.10, 0.30)), 2)
	case ErrorMissingFuel:
		s.Billed.Fuel = 0
	case ErrorDroppedLiftgate:
		s.LiftgateRequired = true
		s.Billed = g.billed(*s)
		s.Billed.Accessorial = 0
	case ErrorDuplicateID:
		s.ShipmentID = prior[g.rng.IntN(len(prior))].Shipment.ShipmentID
		return
	default:
		return
	}
	s.Billed.Total = report.Round(s.Billed.Linehaul+s.Billed.Fuel+s.Billed.Accessorial, 2)
}

// Contracts returns one contract per known lane
func (g *Generator) Contracts() []model.RateContract {
	out := make([]model.RateContract, 0, len(distances))
	for _, lane := range sortedLanes() {
		out = append(out, model.RateContract{
			Origin:                  metros[lane[0]].name,
			Destination:             metros[lane[1]].name,
			ContractRatePerMile:     report.Round(g.uniform(2.0, 3.5), 2),
			AllowedFuelSurchargePct: report.Round(g.uniform(8, 15), 1),
			AllowedAccessorialDesc:  accessorialDescs[g.rng.IntN(len(accessorialDescs))],
			AllowedAccessorialCap:   float64(50 + 5*g.rng.IntN(21)),
		})
	}
	return out
}

// Invoices bills n loads against contracts. Lane names are sometimes
// written without the comma to exercise fuzzy matching.
func (g *Generator) Invoices(contracts []model.RateContract, n int) []InvoiceRow {
	if len(contracts) == 0 {
		return nil
	}
	out := make([]InvoiceRow, 0, n)
	for i := 0; i < n; i++ {
		c := contracts[g.rng.IntN(len(contracts))]
		inv := model.Invoice{
			InvoiceID:         fmt.Sprintf("INV-%06d", i+1),
			LoadID:            fmt.Sprintf("LD-%06d", i+1),
			Origin:            g.spelling(c.Origin),
			Destination:       g.spelling(c.Destination),
			RateBilledPerMile: c.ContractRatePerMile,
			MilesBilled:       float64(100 + g.rng.IntN(2700)),
			FuelSurchargePct:  c.AllowedFuelSurchargePct,
			AccessorialDesc:   c.AllowedAccessorialDesc,
			AccessorialAmount: report.Round(c.AllowedAccessorialCap*g.uniform(0.5, 1.0), 2),
		}

		kind := ErrorNone
		if g.rng.Float64() < g.opts.ErrorRate {
			kind = g.pick(invoiceErrors)
		}
		switch kind {
		case ErrorRateOverContract:
			inv.RateBilledPerMile = report.Round(c.ContractRatePerMile*(1+g.uniform(0.05, 0.25)), 2)
		case ErrorFuelOverContract:
			inv.FuelSurchargePct = report.Round(c.AllowedFuelSurchargePct+g.uniform(1, 4), 1)
		case ErrorUnlistedCharge:
			inv.AccessorialDesc = unlistedDescs[g.rng.IntN(len(unlistedDescs))]
		case ErrorAccessorialOver:
			inv.AccessorialAmount = report.Round(c.AllowedAccessorialCap+g.uniform(10, 60), 2)
		}
		out = append(out, InvoiceRow{Invoice: inv, Injected: kind})
	}
	return out
}

func (g *Generator) lane() (int, int) {
	o := g.rng.IntN(len(metros))
	d := g.rng.IntN(len(metros) - 1)
	if d >= o {
		d++
	}
	return o, d
}

// distance is the table distance, or a random one for unknown pairs, with 5% jitter
func (g *Generator) distance(o, d int) float64 {
	base, ok := distances[[2]int{o, d}]
	if !ok {
		base, ok = distances[[2]int{d, o}]
	}
	if !ok {
		base = float64(300 + g.rng.IntN(2201))
	}
	return float64(int(base * g.uniform(0.95, 1.05)))
}

// date picks a day in range, moving most weekend dates to the next Monday
func (g *Generator) date() time.Time {
	days := int(g.opts.End.Sub(g.opts.Start).Hours() / 24)
	d := g.opts.Start.AddDate(0, 0, g.rng.IntN(days+1))
	switch d.Weekday() {
	case time.Saturday:
		if g.rng.Float64() < 0.7 {
			d = d.AddDate(0, 0, 2)
		}
	case time.Sunday:
		if g.rng.Float64() < 0.7 {
			d = d.AddDate(0, 0, 1)
		}
	}
	return d
}

func (g *Generator) spelling(place string) string {
	if g.rng.Float64() < 0.25 {
		return strings.Replace(place, ",", "", 1)
	}
	return place
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

func (g *Generator) pick(choices []weighted) ErrorKind {
	total := 0.0
	for _, c := range choices {
		total += c.weight
	}
	x := g.rng.Float64() * total
	for _, c := range choices {
		x -= c.weight
		if x < 0 {
			return c.kind
		}
	}
	return choices[len(choices)-1].kind
}

// sortedLanes returns the distance table keys in a fixed order
func sortedLanes() [][2]int {
	lanes := make([][2]int, 0, len(distances))
	for k := range distances {
		lanes = append(lanes, k)
	}
	slices.SortFunc(lanes, func(a, b [2]int) int {
		return cmp.Or(cmp.Compare(a[0], b[0]), cmp.Compare(a[1], b[1]))
	})
	return lanes
}
