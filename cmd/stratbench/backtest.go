package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quantlab/stratbench/internal/api"
	"github.com/quantlab/stratbench/internal/service"
	"github.com/quantlab/stratbench/pkg/strategy"
)

var backtestFlags struct {
	symbol     string
	timeframe  string
	start      string
	end        string
	kind       string
	params     string
	source     string
	jsonOutput bool
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a single backtest and print the results",
	Example: `  stratbench backtest --symbol BTCUSDT --start 2024-01-01 --end 2024-06-30 \
    --strategy momentum --params '{"fast_period": 10, "slow_period": 30}' --source binance`,
	RunE: runBacktestCmd,
}

func init() {
	flags := backtestCmd.Flags()
	flags.StringVar(&backtestFlags.symbol, "symbol", "", "instrument symbol (required)")
	flags.StringVar(&backtestFlags.timeframe, "timeframe", "1d", "bar timeframe (1m|1h|1d)")
	flags.StringVar(&backtestFlags.start, "start", "", "range start, YYYY-MM-DD (required)")
	flags.StringVar(&backtestFlags.end, "end", "", "range end, YYYY-MM-DD (required)")
	flags.StringVar(&backtestFlags.kind, "strategy", strategy.KindMomentum, "strategy kind")
	flags.StringVar(&backtestFlags.params, "params", "", "strategy parameters as JSON, merged over the defaults")
	flags.StringVar(&backtestFlags.source, "source", "", "market data source (csv|parquet|postgres|binance|alpaca)")
	flags.BoolVar(&backtestFlags.jsonOutput, "json", false, "print the full result as JSON instead of the summary")

	_ = backtestCmd.MarkFlagRequired("symbol")
	_ = backtestCmd.MarkFlagRequired("start")
	_ = backtestCmd.MarkFlagRequired("end")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktestCmd(cmd *cobra.Command, args []string) error {
	start, err := parseDate(backtestFlags.start)
	if err != nil {
		return err
	}
	end, err := parseDate(backtestFlags.end)
	if err != nil {
		return err
	}

	source := backtestFlags.source
	if source == "" {
		source = cfg.MarketData.DefaultSource
	}
	provider, _, cleanup, err := buildProvider(cfg, source, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	var params json.RawMessage
	if backtestFlags.params != "" {
		if !json.Valid([]byte(backtestFlags.params)) {
			return fmt.Errorf("--params is not valid JSON")
		}
		params = json.RawMessage(backtestFlags.params)
	}

	runner := service.NewRunner(provider, nil, nil, nil, cfg.Backtest)
	outcome, err := runner.Run(cmd.Context(), service.RunRequest{
		Strategy:  &service.InlineStrategy{Kind: backtestFlags.kind, Parameters: params},
		Symbol:    backtestFlags.symbol,
		Timeframe: backtestFlags.timeframe,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return err
	}

	if backtestFlags.jsonOutput {
		return printResultJSON(outcome, backtestFlags.timeframe)
	}
	fmt.Println(outcome.Result.Summary())
	return nil
}

// printResultJSON goes through the API response shape so the infinite
// profit-factor sentinel serializes as null.
func printResultJSON(outcome *service.RunOutcome, timeframe string) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(api.NewBacktestResponse(outcome, timeframe))
}
