package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/freightaudit/internal/server"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the audit HTTP API",
	Long: `Serve exposes audits over HTTP:
  GET  /api/health
  POST /api/audits        multipart upload: shipments, contracts, invoices
  GET  /api/audits        recent runs (requires a store)
  GET  /api/audits/:id    one run (requires a store)

Runs are persisted when store.driver and store.dsn are configured.

Example:
  freightaudit serve --addr :8080
  FREIGHTAUDIT_STORE_DRIVER=postgres FREIGHTAUDIT_STORE_DSN="host=localhost user=audit dbname=audit" freightaudit serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String("addr", "", "listen address")
	flags.StringSlice("allow-origin", nil, "CORS allowed origins")

	configFlag(flags, "addr", "server.addr")
	configFlag(flags, "allow-origin", "server.allow_origins")
}

func runServe(cmd *cobra.Command, args []string) error {
	p, st, cleanup, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var runs server.RunStore
	if st != nil {
		runs = st
	}

	printBanner("FreightAudit API")
	fmt.Fprintf(os.Stderr, "  Listening:  %s\n", cfg.Server.Addr)
	if st != nil {
		fmt.Fprintf(os.Stderr, "  Store:      %s\n", cfg.Store.Driver)
	} else {
		fmt.Fprintf(os.Stderr, "  Store:      none (runs are not persisted)\n")
	}
	fmt.Fprintln(os.Stderr)

	return server.New(p, runs, cfg.Server, logger.Named("server")).Run(cmd.Context())
}
