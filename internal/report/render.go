package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ppiankov/freightaudit/internal/model"
)

// Output formats understood by WriteAll
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "md"
)

// Renderer writes audit reports to disk
type Renderer struct {
	includeFooter bool
	topAnomalies  int
}

// NewRenderer creates a renderer. topAnomalies bounds the anomaly table in
// Markdown output, 0 lists every flagged row.
func NewRenderer(includeFooter bool, topAnomalies int) *Renderer {
	return &Renderer{includeFooter: includeFooter, topAnomalies: topAnomalies}
}

// WriteAll renders report in each format into dir and returns the written paths.
// CSV output produces one file per view present in the report.
func (r *Renderer) WriteAll(report *model.AuditReport, dir string, formats []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	base := filepath.Join(dir, Slug(report))
	var written []string

	for _, format := range formats {
		switch format {
		case FormatJSON:
			path := base + ".json"
			if err := r.RenderJSON(report, path); err != nil {
				return written, fmt.Errorf("render JSON: %w", err)
			}
			written = append(written, path)

		case FormatCSV:
			paths, err := r.renderCSVFiles(report, base)
			written = append(written, paths...)
			if err != nil {
				return written, fmt.Errorf("render CSV: %w", err)
			}

		case FormatMarkdown:
			path := base + ".md"
			if err := r.RenderMarkdown(report, path); err != nil {
				return written, fmt.Errorf("render markdown: %w", err)
			}
			written = append(written, path)

		default:
			return written, fmt.Errorf("unknown output format %q", format)
		}
	}

	return written, nil
}

func (r *Renderer) renderCSVFiles(report *model.AuditReport, base string) ([]string, error) {
	var written []string
	write := func(suffix string, render func(io.Writer) error) error {
		path := base + suffix
		if err := writeFile(path, render); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	if report.Leakage != nil {
		if err := write(".leakage.csv", func(w io.Writer) error { return WriteLeakageCSV(w, report.Leakage) }); err != nil {
			return written, err
		}
	}
	if report.Reconciliation != nil {
		if err := write(".reconciliation.csv", func(w io.Writer) error { return WriteReconciliationCSV(w, report.Reconciliation) }); err != nil {
			return written, err
		}
	}
	if report.Anomaly != nil && report.Anomaly.Status == model.AnomalyCompleted {
		if err := write(".anomaly.csv", func(w io.Writer) error { return WriteAnomalyCSV(w, report.Anomaly) }); err != nil {
			return written, err
		}
	}
	return written, nil
}

// RenderJSON writes the full report as indented JSON
func (r *Renderer) RenderJSON(report *model.AuditReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// RenderMarkdown writes a human-readable overview of the report
func (r *Renderer) RenderMarkdown(report *model.AuditReport, path string) error {
	return writeFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, r.Markdown(report))
		return err
	})
}

func writeFile(path string, render func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	return render(f)
}

// LeakageColumns is the header of the leakage CSV
var LeakageColumns = []string{
	"shipment_id", "customer_id", "carrier",
	"expected_linehaul_amount", "expected_fuel_amount", "expected_liftgate_fee", "expected_billed_total",
	"actual_billed_total", "underbilled_amount", "flag_reason",
}

// WriteLeakageCSV writes one row per shipment
func WriteLeakageCSV(w io.Writer, r *model.LeakageReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LeakageColumns); err != nil {
		return err
	}
	for _, row := range r.Rows {
		rec := []string{
			row.ShipmentID,
			row.CustomerID,
			row.Carrier,
			money(row.Expected.Linehaul),
			money(row.Expected.Fuel),
			money(row.Expected.Liftgate),
			money(row.Expected.Total),
			money(row.BilledTotal),
			money(row.UnderbilledAmount),
			row.FlagReason,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReconciliationColumns is the header of the reconciliation CSV
var ReconciliationColumns = []string{
	"invoice_id", "load_id", "origin", "destination",
	"rate_diff_pct", "fuel_diff_pct_points", "accessorial_similarity",
	"flags", "confidence_score", "recoverable_amount_est",
}

// WriteReconciliationCSV writes one row per invoice. An unmatched invoice has
// an empty rate_diff_pct.
func WriteReconciliationCSV(w io.Writer, r *model.ReconciliationReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReconciliationColumns); err != nil {
		return err
	}
	for _, row := range r.Rows {
		rateDiff := ""
		if row.RateDiffPct != nil {
			rateDiff = number(*row.RateDiffPct, 2)
		}
		rec := []string{
			row.InvoiceID,
			row.LoadID,
			row.Origin,
			row.Destination,
			rateDiff,
			number(row.FuelDiffPctPoints, 2),
			number(row.AccessorialSimilarity, 3),
			row.FlagString(),
			number(row.ConfidenceScore, 3),
			money(row.RecoverableAmount),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// AnomalyColumns is the header of the anomaly CSV
var AnomalyColumns = []string{
	"shipment_id", "customer_id", "carrier", "actual_billed_total", "anomaly_flag", "anomaly_score",
}

// WriteAnomalyCSV writes scored rows in report order
func WriteAnomalyCSV(w io.Writer, r *model.AnomalyReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AnomalyColumns); err != nil {
		return err
	}
	for _, row := range r.Rows {
		flag := "0"
		if row.Flag {
			flag = "1"
		}
		rec := []string{
			row.ShipmentID,
			row.CustomerID,
			row.Carrier,
			money(row.BilledTotal),
			flag,
			number(row.Score, 6),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func money(v float64) string {
	return number(v, 2)
}

func number(v float64, places int32) string {
	return strconv.FormatFloat(Round(v, places), 'f', int(places), 64)
}

// Slug derives a file name stem from the report source, falling back to the run id
func Slug(report *model.AuditReport) string {
	name := report.Source
	if name == "" || name == "-" {
		name = report.RunID
	}
	name = filepath.Base(name)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '&', '=':
			return '_'
		case ' ':
			return '-'
		}
		return r
	}, name)

	if len(name) > 100 {
		name = name[:100]
	}
	if name == "" || name == "." {
		name = "audit"
	}
	return name
}
