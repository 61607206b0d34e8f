package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/freightaudit/internal/logging"
	"github.com/ppiankov/freightaudit/internal/model"
)

// Version is set at build time
var Version = "0.3.0"

var (
	cfgFile string
	verbose bool

	// populated by initConfig before any command runs
	cfg        *model.Config
	cfgUsed    string
	logger     = zap.NewNop()
	settings   = newSettings()
	configPath = defaultConfigPath()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "freightaudit",
	Short: "FreightAudit - freight invoice audit and revenue leakage detection",
	Long: `FreightAudit audits freight billing data:

- Recomputes expected charges from a tariff and flags under-billing,
  missing fuel surcharges, dropped liftgate fees and duplicate shipments
- Reconciles carrier invoices against contracted lane rates
- Scores shipments for statistical outliers

Findings are estimates. Review them before raising a billing claim.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := bindConfigFlags(settings, cmd.Flags()); err != nil {
			return err
		}
		return initConfig()
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = logger.Sync() }()
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("freightaudit v%s\n", Version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.freightaudit/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json)")

	configFlag(flags, "verbose", "output.verbose")
	configFlag(flags, "log-level", "logging.level")
	configFlag(flags, "log-format", "logging.format")

	rootCmd.AddCommand(versionCmd)
}

// initConfig resolves configuration and builds the logger
func initConfig() error {
	var err error
	cfg, cfgUsed, err = loadConfig(settings, cfgFile, configPath)
	if err != nil {
		return err
	}

	l, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	logger = l

	if cfgUsed != "" && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", cfgUsed)
	}
	return nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".freightaudit", "config.yaml")
}
