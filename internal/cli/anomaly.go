package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/freightaudit/internal/model"
	"github.com/ppiankov/freightaudit/internal/pipeline"
	"github.com/ppiankov/freightaudit/internal/report"
)

var anomalyCSV string

// anomalyCmd represents the anomaly command
var anomalyCmd = &cobra.Command{
	Use:   "anomaly <shipments.csv>",
	Short: "Score shipments for statistical outliers",
	Long: `Anomaly scores every shipment with an isolation forest over billed and
expected amounts. Lower scores are more anomalous; the most anomalous
contamination share of the batch is flagged.

Example:
  freightaudit anomaly shipments.csv
  freightaudit anomaly shipments.csv --contamination 0.03 --seed 7 --csv anomalies.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runAnomaly,
}

func init() {
	rootCmd.AddCommand(anomalyCmd)

	flags := anomalyCmd.Flags()
	flags.Float64("contamination", 0, "expected share of anomalous shipments (0, 0.5]")
	flags.Int64("seed", 0, "random seed")
	flags.Int("top", 0, "number of anomalies to print")
	flags.StringVar(&anomalyCSV, "csv", "", "also write all scores to this CSV path")
	addRunFlags(anomalyCmd)

	configFlag(flags, "contamination", "anomaly.contamination")
	configFlag(flags, "seed", "anomaly.seed")
	configFlag(flags, "top", "anomaly.top_n")
}

func runAnomaly(cmd *cobra.Command, args []string) error {
	applyRunFlags()
	cfg.Anomaly.Enabled = true
	cfg.Output.Explanations = false

	ctx, cancel := context.WithTimeout(cmd.Context(), auditTimeout)
	defer cancel()

	p, _, cleanup, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := p.AuditFiles(ctx, pipeline.Files{Shipments: args[0]})
	if err != nil {
		return fmt.Errorf("anomaly scoring failed: %w", err)
	}

	a := out.Anomaly
	printBanner("Anomaly Scores")
	if a == nil || a.Status != model.AnomalyCompleted {
		reason := "no shipments"
		if a != nil {
			reason = a.Reason
		}
		fmt.Fprintf(os.Stderr, "  Skipped: %s\n\n", reason)
		return nil
	}

	fmt.Fprintf(os.Stderr, "  Detector:       %s\n", a.Detector)
	fmt.Fprintf(os.Stderr, "  Contamination:  %.3f\n", a.Contamination)
	fmt.Fprintf(os.Stderr, "  Seed:           %d\n", a.Seed)
	fmt.Fprintf(os.Stderr, "  Flagged:        %d of %d\n\n", a.Flagged, len(a.Rows))

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SHIPMENT\tCUSTOMER\tCARRIER\tBILLED\tSCORE")
	for _, r := range report.FlaggedAnomalies(a, cfg.Anomaly.TopN) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.4f\n", r.ShipmentID, r.CustomerID, r.Carrier, r.BilledTotal, r.Score)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if anomalyCSV != "" {
		f, err := os.Create(anomalyCSV)
		if err != nil {
			return fmt.Errorf("create %s: %w", anomalyCSV, err)
		}
		if err := report.WriteAnomalyCSV(f, a); err != nil {
			_ = f.Close()
			return fmt.Errorf("write %s: %w", anomalyCSV, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "\n✓ Wrote %s\n", anomalyCSV)
	}
	return nil
}
