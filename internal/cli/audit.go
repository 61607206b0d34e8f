package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/freightaudit/internal/pipeline"
)

var (
	contractsFile string
	invoicesFile  string
	auditTimeout  time.Duration
	strictNumbers bool
	noAnomaly     bool
	noExplain     bool
	noCache       bool
	noFooter      bool
	summaryOnly   bool
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit <shipments.csv>",
	Short: "Audit a shipment file for revenue leakage",
	Long: `Audit runs every view over a shipment batch:
- Expected charges from the tariff and deterministic leakage rules
- Statistical anomaly scoring
- Contract reconciliation when --contracts and --invoices are given
- Explanations for flagged shipments, optionally rewritten by an LLM

The input may be a path, "-" for stdin, or an http(s) URL.

Example:
  freightaudit audit shipments.csv
  freightaudit audit shipments.csv --contracts contracts.yaml --invoices invoices.csv
  freightaudit audit shipments.csv --format json,csv,md --output-dir ./reports
  freightaudit audit shipments.csv --llm-provider openai --llm-model gpt-4o-mini`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAudit(cmd, pipeline.Files{
			Shipments: args[0],
			Contracts: contractsFile,
			Invoices:  invoicesFile,
		})
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)

	flags := auditCmd.Flags()
	flags.StringVar(&contractsFile, "contracts", "", "contract table (CSV or YAML)")
	flags.StringVar(&invoicesFile, "invoices", "", "carrier invoices CSV")
	addRunFlags(auditCmd)
}

// addRunFlags registers the flags shared by commands that run an audit
func addRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.DurationVar(&auditTimeout, "timeout", 10*time.Minute, "overall audit timeout")
	flags.String("output-dir", "", "output directory for reports")
	flags.StringSlice("format", nil, "report formats (json, csv, md)")
	flags.String("schema", "", "shipment schema (auto, standard, carrier_export)")
	flags.BoolVar(&strictNumbers, "strict", false, "fail on unparsable numbers instead of defaulting to 0.0")
	flags.BoolVar(&noAnomaly, "no-anomaly", false, "skip anomaly scoring")
	flags.BoolVar(&noExplain, "no-explain", false, "skip explanations")
	flags.BoolVar(&noCache, "no-cache", false, "disable the explanation cache")
	flags.BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	flags.BoolVar(&summaryOnly, "summary-only", false, "print the summary without writing report files")
	flags.Int("workers", 0, "per-record workers (0 = NumCPU)")
	flags.String("llm-provider", "", "LLM provider for explanation rewrites (openai, anthropic, ollama)")
	flags.String("llm-model", "", "LLM model name")

	configFlag(flags, "output-dir", "output.dir")
	configFlag(flags, "format", "output.formats")
	configFlag(flags, "schema", "ingest.schema")
	configFlag(flags, "workers", "concurrency.workers")
	configFlag(flags, "llm-provider", "llm.provider")
	configFlag(flags, "llm-model", "llm.model")
}

// applyRunFlags applies the boolean switches that only ever turn things off
func applyRunFlags() {
	if strictNumbers {
		cfg.Ingest.NumericPolicy = "strict"
	}
	if noAnomaly {
		cfg.Anomaly.Enabled = false
	}
	if noExplain {
		cfg.Output.Explanations = false
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if noFooter {
		cfg.Output.IncludeFooter = false
	}
}

func runAudit(cmd *cobra.Command, files pipeline.Files) error {
	applyRunFlags()

	ctx, cancel := context.WithTimeout(cmd.Context(), auditTimeout)
	defer cancel()

	p, _, cleanup, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if verbose {
		fmt.Fprintf(os.Stderr, "Auditing: %s\n", describe(files))
		fmt.Fprintf(os.Stderr, "Timeout: %v\n", auditTimeout)
		fmt.Fprintf(os.Stderr, "Numeric policy: %s\n", cfg.Ingest.NumericPolicy)
		fmt.Fprintln(os.Stderr)
	}

	out, err := p.AuditFiles(ctx, files)
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}

	p.Renderer().RenderSummary(os.Stderr, out)

	if summaryOnly {
		return nil
	}

	paths, err := p.Render(out, "")
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	for _, path := range paths {
		fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", path)
	}
	return nil
}

func describe(files pipeline.Files) string {
	s := files.Shipments
	if files.Contracts != "" {
		if s != "" {
			s += ", "
		}
		s += files.Contracts + " + " + files.Invoices
	}
	return s
}
