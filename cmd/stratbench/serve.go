package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quantlab/stratbench/internal/api"
	"github.com/quantlab/stratbench/internal/config"
	"github.com/quantlab/stratbench/internal/data"
	"github.com/quantlab/stratbench/internal/service"
	"github.com/quantlab/stratbench/internal/store"
	"github.com/quantlab/stratbench/internal/telemetry"
	"github.com/quantlab/stratbench/pkg/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServeCmd,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServeCmd(cmd *cobra.Command, args []string) error {
	logger := logging.GetLogger("serve")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(ctx, db); err != nil {
		return err
	}
	pgProvider := data.NewPostgresProvider(db)
	if err := pgProvider.EnsureSchema(ctx); err != nil {
		return err
	}

	metrics := telemetry.New()
	provider, redisCache, cleanup, err := buildProvider(cfg, cfg.MarketData.DefaultSource, metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	strategies := store.NewStrategyRepo(db)
	backtests := store.NewBacktestRepo(db)
	runner := service.NewRunner(provider, strategies, backtests, metrics, cfg.Backtest)

	health := buildHealth(db, redisCache, cfg.MarketData)

	handlers := api.NewHandlers(strategies, backtests, runner, health, logging.GetLogger("api"))
	server := api.NewServer(cfg.Server, handlers, metrics)

	logger.Info().
		Str("source", cfg.MarketData.DefaultSource).
		Bool("cache", cfg.Redis.Enabled).
		Msg("Starting API server")
	return server.Run(ctx)
}

// dbPinger is the slice of the database handle the health check needs.
type dbPinger interface {
	PingContext(ctx context.Context) error
}

// buildHealth reports database, redis (when caching is on) and market
// data provider status. redisCache may be nil.
func buildHealth(db dbPinger, redisCache *data.RedisCache, md config.MarketDataConfig) api.HealthFunc {
	return func(ctx context.Context) map[string]string {
		components := map[string]string{
			"database": "ok",
			"provider": providerStatus(md),
		}
		if err := db.PingContext(ctx); err != nil {
			components["database"] = err.Error()
		}
		if redisCache != nil {
			components["redis"] = "ok"
			if err := redisCache.Ping(ctx); err != nil {
				components["redis"] = err.Error()
			}
		}
		return components
	}
}

// providerStatus checks what can be checked without a network round
// trip: local sources must have their directory in place, remote ones
// count as ok once configured.
func providerStatus(md config.MarketDataConfig) string {
	switch md.DefaultSource {
	case "csv":
		if _, err := os.Stat(md.CSVDir); err != nil {
			return err.Error()
		}
	case "parquet":
		if _, err := os.Stat(md.ParquetDir); err != nil {
			return err.Error()
		}
	}
	return "ok"
}
