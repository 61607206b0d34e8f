// Package ingest turns external shipment, invoice and contract files into the
// canonical records consumed by the audit core.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/freightaudit/internal/model"
)

// ShipmentBatch is a parsed shipment file
type ShipmentBatch struct {
	Shipments []model.Shipment
	Stats     model.IngestStats
}

// Reader parses input files with a fixed schema choice and numeric policy
type Reader struct {
	schema   string
	policy   NumericPolicy
	validate *validator.Validate
	logger   *zap.Logger
}

// NewReader creates a reader from ingest configuration
func NewReader(cfg model.IngestConfig, logger *zap.Logger) (*Reader, error) {
	policy, err := ParsePolicy(cfg.NumericPolicy)
	if err != nil {
		return nil, err
	}

	schema := cfg.Schema
	if schema == "" {
		schema = SchemaAuto
	}
	if schema != SchemaAuto {
		if _, ok := AdapterFor(schema); !ok {
			return nil, fmt.Errorf("unknown shipment schema %q", schema)
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reader{
		schema:   schema,
		policy:   policy,
		validate: validator.New(),
		logger:   logger,
	}, nil
}

// Policy returns the numeric policy in effect
func (r *Reader) Policy() NumericPolicy {
	return r.policy
}

// ReadShipments parses a shipment CSV. A missing required column yields a
// *SchemaError; under Strict an unparsable number yields a *ParseError.
func (r *Reader) ReadShipments(src io.Reader) (*ShipmentBatch, error) {
	cr := newCSVReader(src)

	columns, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &SchemaError{Schema: r.schema, Missing: standardAdapter{}.Required()}
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := newHeader(columns)

	var adapter Adapter
	if r.schema == SchemaAuto {
		adapter, err = detect(h)
	} else {
		adapter, _ = AdapterFor(r.schema)
		err = h.require(adapter.Name(), adapter.Required())
	}
	if err != nil {
		return nil, err
	}

	batch := &ShipmentBatch{Stats: model.IngestStats{Schema: adapter.Name()}}
	row := 0
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+1, err)
		}
		row++
		if blank(fields) {
			continue
		}

		rec := &record{header: h, fields: fields, row: row, policy: r.policy, stats: &batch.Stats}
		s := adapter.Map(rec)
		if rec.err != nil {
			return nil, rec.err
		}
		if err := r.checkRecord(row, s, &batch.Stats); err != nil {
			return nil, err
		}
		batch.Shipments = append(batch.Shipments, s)
	}
	batch.Stats.Rows = len(batch.Shipments)

	r.logCoercions("shipments", batch.Stats)
	return batch, nil
}

// checkRecord validates struct tags. Invalid rows are kept and counted under
// Lenient and rejected under Strict.
func (r *Reader) checkRecord(row int, v any, stats *model.IngestStats) error {
	err := r.validate.Struct(v)
	if err == nil {
		return nil
	}
	if r.policy == Strict {
		return fmt.Errorf("row %d: %w", row, err)
	}
	stats.InvalidRows++
	r.logger.Warn("row failed validation", zap.Int("row", row), zap.Error(err))
	return nil
}

// InvoiceColumns is the invoice schema
var InvoiceColumns = []string{
	"invoice_id",
	"load_id",
	"origin",
	"destination",
	"rate_billed_per_mile",
	"miles_billed",
	"fuel_surcharge_pct",
	"accessorial_desc",
	"accessorial_amount",
}

// ReadInvoices parses an invoice CSV
func (r *Reader) ReadInvoices(src io.Reader) ([]model.Invoice, model.IngestStats, error) {
	stats := model.IngestStats{Schema: "invoices"}
	cr := newCSVReader(src)

	columns, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, &SchemaError{Schema: "invoices", Missing: InvoiceColumns}
		}
		return nil, stats, fmt.Errorf("read header: %w", err)
	}
	h := newHeader(columns)
	if err := h.require("invoices", InvoiceColumns); err != nil {
		return nil, stats, err
	}

	var invoices []model.Invoice
	row := 0
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read row %d: %w", row+1, err)
		}
		row++
		if blank(fields) {
			continue
		}

		rec := &record{header: h, fields: fields, row: row, policy: r.policy, stats: &stats}
		inv := model.Invoice{
			InvoiceID:         rec.str("invoice_id"),
			LoadID:            rec.str("load_id"),
			Origin:            rec.str("origin"),
			Destination:       rec.str("destination"),
			RateBilledPerMile: rec.float("rate_billed_per_mile"),
			MilesBilled:       rec.float("miles_billed"),
			FuelSurchargePct:  rec.float("fuel_surcharge_pct"),
			AccessorialDesc:   rec.str("accessorial_desc"),
			AccessorialAmount: rec.float("accessorial_amount"),
		}
		if rec.err != nil {
			return nil, stats, rec.err
		}
		if err := r.checkRecord(row, inv, &stats); err != nil {
			return nil, stats, err
		}
		invoices = append(invoices, inv)
	}
	stats.Rows = len(invoices)

	r.logCoercions("invoices", stats)
	return invoices, stats, nil
}

// ContractColumns is the contract table schema
var ContractColumns = []string{
	"origin",
	"destination",
	"contract_rate_per_mile",
	"allowed_fuel_surcharge_pct",
	"allowed_accessorial_desc",
	"allowed_accessorial_cap",
}

// ContractFormat selects the contract file encoding
type ContractFormat string

const (
	ContractCSV  ContractFormat = "csv"
	ContractYAML ContractFormat = "yaml"
)

// ContractFormatFor guesses the format from a file name
func ContractFormatFor(name string) ContractFormat {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return ContractYAML
	}
	return ContractCSV
}

// ReadContracts parses a contract table in CSV or YAML
func (r *Reader) ReadContracts(src io.Reader, format ContractFormat) ([]model.RateContract, error) {
	var contracts []model.RateContract
	var err error

	switch format {
	case ContractYAML:
		contracts, err = readContractsYAML(src)
	default:
		contracts, err = r.readContractsCSV(src)
	}
	if err != nil {
		return nil, err
	}

	for i, c := range contracts {
		if err := r.validate.Struct(c); err != nil {
			return nil, fmt.Errorf("contract %d (%s): %w", i+1, c.Lane(), err)
		}
	}
	return contracts, nil
}

func (r *Reader) readContractsCSV(src io.Reader) ([]model.RateContract, error) {
	stats := model.IngestStats{Schema: "contracts"}
	cr := newCSVReader(src)

	columns, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &SchemaError{Schema: "contracts", Missing: ContractColumns}
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := newHeader(columns)
	if err := h.require("contracts", ContractColumns); err != nil {
		return nil, err
	}

	var contracts []model.RateContract
	row := 0
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+1, err)
		}
		row++
		if blank(fields) {
			continue
		}

		rec := &record{header: h, fields: fields, row: row, policy: r.policy, stats: &stats}
		c := model.RateContract{
			Origin:                  rec.str("origin"),
			Destination:             rec.str("destination"),
			ContractRatePerMile:     rec.float("contract_rate_per_mile"),
			AllowedFuelSurchargePct: rec.float("allowed_fuel_surcharge_pct"),
			AllowedAccessorialDesc:  rec.str("allowed_accessorial_desc"),
			AllowedAccessorialCap:   rec.float("allowed_accessorial_cap"),
		}
		if rec.err != nil {
			return nil, rec.err
		}
		contracts = append(contracts, c)
	}

	r.logCoercions("contracts", stats)
	return contracts, nil
}

type contractFile struct {
	Contracts []model.RateContract `yaml:"contracts"`
}

// readContractsYAML accepts either a top-level list or a "contracts:" key
func readContractsYAML(src io.Reader) ([]model.RateContract, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read contracts: %w", err)
	}

	var list []model.RateContract
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var file contractFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse contracts yaml: %w", err)
	}
	return file.Contracts, nil
}

func (r *Reader) logCoercions(kind string, stats model.IngestStats) {
	for column, n := range stats.Coercions {
		r.logger.Warn("unparsable values defaulted to 0.0",
			zap.String("input", kind),
			zap.String("column", column),
			zap.Int("count", n),
			zap.String("policy", r.policy.String()))
	}
}

func newCSVReader(src io.Reader) *csv.Reader {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false
	return cr
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

