package main

import (
	"fmt"

	"github.com/quantlab/stratbench/internal/config"
	"github.com/quantlab/stratbench/internal/data"
	"github.com/quantlab/stratbench/internal/store"
	"github.com/quantlab/stratbench/internal/telemetry"
	"github.com/quantlab/stratbench/pkg/feed"
)

// buildProvider constructs the market data provider for the named
// source, instrumented when metrics is non-nil and wrapped in the Redis
// cache when enabled. The returned RedisCache is nil unless caching is
// on; the cleanup closes any database handle the provider opened and
// must be invoked after a successful return.
func buildProvider(cfg config.Config, source string, metrics *telemetry.Metrics) (feed.Provider, *data.RedisCache, func(), error) {
	cleanup := func() {}

	var provider feed.Provider
	switch source {
	case "csv":
		provider = data.NewCSVProvider(cfg.MarketData.CSVDir)
	case "parquet":
		provider = data.NewParquetArchive(cfg.MarketData.ParquetDir)
	case "binance":
		provider = data.NewBinanceProvider(cfg.MarketData.Binance)
	case "alpaca":
		provider = data.NewAlpacaProvider(cfg.MarketData.Alpaca)
	case "postgres":
		db, err := store.Open(cfg.Database)
		if err != nil {
			return nil, nil, cleanup, err
		}
		cleanup = func() { db.Close() }
		provider = data.NewPostgresProvider(db)
	default:
		return nil, nil, cleanup, fmt.Errorf("unknown market data source %q (want csv|parquet|postgres|binance|alpaca)", source)
	}

	if metrics != nil {
		provider = data.NewInstrumentedProvider(provider, source, metrics)
	}

	var cache *data.RedisCache
	if cfg.Redis.Enabled {
		cache = data.NewRedisCache(cfg.Redis.Addr)
		provider = data.NewCachedProvider(provider, cache, cfg.Redis.TTL, metrics)
	}
	return provider, cache, cleanup, nil
}
