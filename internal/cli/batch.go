package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/freightaudit/internal/report"
	"github.com/ppiankov/freightaudit/internal/worker"
)

var batchTimeout time.Duration

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Audit multiple shipment files listed in a file, in parallel",
	Long: `Batch audits many shipment files concurrently:
- Read sources from the input file (one path or URL per line, # for comments)
- Audit sources in parallel with a configurable worker count
- Each audit evaluates its records with its own worker pool
- Write individual reports for each source

Example:
  freightaudit batch sources.txt
  freightaudit batch sources.txt --concurrency 4 --output-dir ./reports
  freightaudit batch sources.txt --batch-timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	flags := batchCmd.Flags()
	flags.Int("concurrency", 0, "number of files audited at once")
	flags.DurationVar(&batchTimeout, "batch-timeout", 30*time.Minute, "total timeout for batch processing")
	addRunFlags(batchCmd)

	configFlag(flags, "concurrency", "concurrency.batch_workers")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	applyRunFlags()

	concurrency := cfg.Concurrency.BatchWorkers
	if concurrency <= 0 {
		concurrency = 2
	}

	printBanner("FreightAudit Batch Processing")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", cfg.Output.Dir)
	fmt.Fprintf(os.Stderr, "  Formats:      %v\n", cfg.Output.Formats)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	if cfg.LLM.Provider != "" {
		fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	}
	fmt.Fprintln(os.Stderr)

	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p, _, cleanup, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	processor := worker.NewBatchProcessor(p, concurrency)

	fmt.Fprintf(os.Stderr, "⚙️  Reading sources from file...\n")
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Audited %d sources\n\n", len(results))

	successCount := 0
	failureCount := 0
	var totalLeakage float64

	for _, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Source, result.Error)
			continue
		}

		if _, err := p.Render(result.Report, ""); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write reports: %v\n", result.Source, err)
			continue
		}
		successCount++

		l := result.Report.Leakage
		if l == nil {
			fmt.Fprintf(os.Stderr, "✓ %s\n", filepath.Base(result.Source))
			continue
		}
		totalLeakage += l.Summary.EstimatedLeakageUSD
		fmt.Fprintf(os.Stderr, "✓ %s (flagged: %d/%d, leakage: $%.2f)\n",
			filepath.Base(result.Source), l.Summary.FlaggedShipments, l.Summary.TotalShipments, l.Summary.EstimatedLeakageUSD)
	}

	printBanner("Batch Complete")
	fmt.Fprintf(os.Stderr, "  Total:     %d sources\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Leakage:   $%.2f\n", report.Round(totalLeakage, 2))
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", cfg.Output.Dir)
	fmt.Fprintln(os.Stderr)

	if failureCount > 0 && successCount == 0 {
		return fmt.Errorf("all %d sources failed", failureCount)
	}
	return nil
}
