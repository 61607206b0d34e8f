package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ppiankov/freightaudit/internal/model"
)

// Markdown returns the Markdown overview of a report
func (r *Renderer) Markdown(report *model.AuditReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Freight Audit: %s\n\n", Slug(report))
	fmt.Fprintf(&b, "- Run: `%s`\n", report.RunID)
	if report.Source != "" {
		fmt.Fprintf(&b, "- Source: `%s`\n", report.Source)
	}
	fmt.Fprintf(&b, "- Generated: %s\n", report.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "- Schema: %s, %d rows\n", report.Ingest.Schema, report.Ingest.Rows)
	if n := report.Ingest.TotalCoercions(); n > 0 {
		fmt.Fprintf(&b, "- Unparsable numeric values defaulted to 0: %d\n", n)
	}
	if report.Ingest.InvalidRows > 0 {
		fmt.Fprintf(&b, "- Rows failing validation: %d\n", report.Ingest.InvalidRows)
	}
	b.WriteString("\n")

	if report.Leakage != nil {
		writeLeakageSection(&b, report.Leakage)
	}
	if report.Reconciliation != nil {
		writeReconciliationSection(&b, report.Reconciliation)
	}
	if report.Anomaly != nil {
		r.writeAnomalySection(&b, report.Anomaly)
	}
	if len(report.Explanations) > 0 {
		b.WriteString("## Explanations\n\n")
		for _, e := range report.Explanations {
			fmt.Fprintf(&b, "- **%s**: %s\n", e.ShipmentID, e.Text)
		}
		b.WriteString("\n")
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		b.WriteString("_Findings are estimates from billed and expected charges. Review before raising a billing claim._\n")
	}

	return b.String()
}

func writeLeakageSection(b *strings.Builder, l *model.LeakageReport) {
	s := l.Summary
	b.WriteString("## Revenue Leakage\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| Shipments | %d |\n", s.TotalShipments)
	fmt.Fprintf(b, "| Flagged | %d |\n", s.FlaggedShipments)
	fmt.Fprintf(b, "| Flag rate | %.2f%% |\n", s.FlagRatePct)
	fmt.Fprintf(b, "| Estimated leakage | $%.2f |\n\n", s.EstimatedLeakageUSD)

	if len(s.FlagCounts) > 0 {
		b.WriteString("| Flag | Shipments |\n|---|---|\n")
		for _, f := range model.LeakageFlagOrder {
			if n := s.FlagCounts[f]; n > 0 {
				fmt.Fprintf(b, "| %s | %d |\n", f, n)
			}
		}
		b.WriteString("\n")
	}

	if len(s.TopCustomers) > 0 {
		b.WriteString("### Top customers by leakage\n\n")
		b.WriteString("| Customer | Leakage |\n|---|---|\n")
		for _, c := range sortedCustomers(s.TopCustomers) {
			fmt.Fprintf(b, "| %s | $%.2f |\n", c, s.TopCustomers[c])
		}
		b.WriteString("\n")
	}
}

func sortedCustomers(m map[string]float64) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if m[ids[i]] != m[ids[j]] {
			return m[ids[i]] > m[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

func writeReconciliationSection(b *strings.Builder, r *model.ReconciliationReport) {
	s := r.Summary
	b.WriteString("## Contract Reconciliation\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| Invoices | %d |\n", s.TotalInvoices)
	fmt.Fprintf(b, "| Flagged | %.2f%% |\n", s.PctFlagged)
	fmt.Fprintf(b, "| Unmatched | %d |\n", s.Unmatched)
	fmt.Fprintf(b, "| Recoverable | $%.2f |\n\n", s.TotalRecoverableUSD)

	var flagged []model.ReconciliationResult
	for _, row := range r.Rows {
		if row.Status != model.StatusOK {
			flagged = append(flagged, row)
		}
	}
	if len(flagged) == 0 {
		return
	}

	b.WriteString("| Invoice | Lane | Flags | Confidence | Recoverable |\n|---|---|---|---|---|\n")
	for _, row := range flagged {
		fmt.Fprintf(b, "| %s | %s → %s | %s | %.3f | $%.2f |\n",
			row.InvoiceID, row.Origin, row.Destination, row.FlagString(), row.ConfidenceScore, row.RecoverableAmount)
	}
	b.WriteString("\n")
}

func (r *Renderer) writeAnomalySection(b *strings.Builder, a *model.AnomalyReport) {
	b.WriteString("## Anomalies\n\n")
	if a.Status == model.AnomalySkipped {
		fmt.Fprintf(b, "Skipped: %s\n\n", a.Reason)
		return
	}

	fmt.Fprintf(b, "Detector `%s`, contamination %.2f, seed %d: %d of %d shipments flagged.\n\n",
		a.Detector, a.Contamination, a.Seed, a.Flagged, len(a.Rows))

	rows := FlaggedAnomalies(a, r.topAnomalies)
	if len(rows) == 0 {
		return
	}
	b.WriteString("| Shipment | Customer | Billed | Score |\n|---|---|---|---|\n")
	for _, row := range rows {
		fmt.Fprintf(b, "| %s | %s | $%.2f | %.4f |\n", row.ShipmentID, row.CustomerID, row.BilledTotal, row.Score)
	}
	b.WriteString("\n")
}

// RenderSummary prints a short console summary of the report
func (r *Renderer) RenderSummary(w io.Writer, report *model.AuditReport) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  Audit: %s\n", Slug(report))
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Run:          %s\n", report.RunID)
	fmt.Fprintf(w, "  Rows:         %d (%s)\n", report.Ingest.Rows, report.Ingest.Schema)

	if l := report.Leakage; l != nil {
		fmt.Fprintf(w, "  Flagged:      %d / %d (%.2f%%)\n", l.Summary.FlaggedShipments, l.Summary.TotalShipments, l.Summary.FlagRatePct)
		fmt.Fprintf(w, "  Leakage:      $%.2f\n", l.Summary.EstimatedLeakageUSD)
	}
	if rec := report.Reconciliation; rec != nil {
		fmt.Fprintf(w, "  Invoices:     %d (%.2f%% flagged, %d unmatched)\n", rec.Summary.TotalInvoices, rec.Summary.PctFlagged, rec.Summary.Unmatched)
		fmt.Fprintf(w, "  Recoverable:  $%.2f\n", rec.Summary.TotalRecoverableUSD)
	}
	if a := report.Anomaly; a != nil {
		if a.Status == model.AnomalySkipped {
			fmt.Fprintf(w, "  Anomalies:    skipped (%s)\n", a.Reason)
		} else {
			fmt.Fprintf(w, "  Anomalies:    %d flagged\n", a.Flagged)
		}
	}
	fmt.Fprintf(w, "\n")
}
