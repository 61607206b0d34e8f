package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/freightaudit/internal/pipeline"
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile <contracts> <invoices.csv>",
	Short: "Reconcile carrier invoices against contracted lane rates",
	Long: `Reconcile matches every invoice to the most similar contract lane and
checks the billed rate, fuel surcharge and accessorial charge against it.

Contracts may be CSV or YAML (by file extension).

Example:
  freightaudit reconcile contracts.yaml invoices.csv
  freightaudit reconcile contracts.csv invoices.csv --format csv --output-dir ./reports`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAudit(cmd, pipeline.Files{Contracts: args[0], Invoices: args[1]})
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	addRunFlags(reconcileCmd)
}
