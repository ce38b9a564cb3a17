package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantlab/stratbench/internal/config"
	"github.com/quantlab/stratbench/pkg/logging"
)

var (
	cfgPath  string
	logLevel string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "stratbench",
	Short: "Deterministic strategy backtesting engine",
	Long: `stratbench runs trading strategies against historical OHLCV data
through a deterministic trade simulator and reports performance metrics.

It can run one-off backtests from the command line, serve an HTTP API,
and fetch market data into local or database storage.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded

		if logLevel != "" {
			cfg.Logging.Level = logging.LogLevel(logLevel)
		}
		logging.Initialize(cfg.Logging)
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (trace|debug|info|warn|error)")
}

// parseDate accepts a bare date or a full RFC 3339 timestamp.
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC 3339", value)
}
