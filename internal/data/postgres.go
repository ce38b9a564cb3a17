// Package data implements the market-data providers behind feed.Provider:
// Postgres, Binance public REST, Alpaca, Parquet archives, CSV files, and
// a read-through cache decorator.
package data

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/quantlab/stratbench/pkg/feed"
	"github.com/quantlab/stratbench/pkg/market"
)

// PostgresProvider serves historical bars from the ohlcv_bars table and
// doubles as the write target of the fetch command.
type PostgresProvider struct {
	db *sqlx.DB
}

// NewPostgresProvider wraps an open database handle.
func NewPostgresProvider(db *sqlx.DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

const createBarsTable = `
CREATE TABLE IF NOT EXISTS ohlcv_bars (
	symbol     TEXT             NOT NULL,
	timeframe  TEXT             NOT NULL,
	timestamp  TIMESTAMPTZ      NOT NULL,
	open       DOUBLE PRECISION NOT NULL,
	high       DOUBLE PRECISION NOT NULL,
	low        DOUBLE PRECISION NOT NULL,
	close      DOUBLE PRECISION NOT NULL,
	volume     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (symbol, timeframe, timestamp)
)`

// EnsureSchema creates the ohlcv_bars table when missing.
func (p *PostgresProvider) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createBarsTable); err != nil {
		return fmt.Errorf("creating ohlcv_bars table: %w", err)
	}
	return nil
}

type barRow struct {
	Symbol    string    `db:"symbol"`
	Timestamp time.Time `db:"timestamp"`
	Open      float64   `db:"open"`
	High      float64   `db:"high"`
	Low       float64   `db:"low"`
	Close     float64   `db:"close"`
	Volume    float64   `db:"volume"`
}

// Bars retrieves historical OHLCV data in chronological order.
func (p *PostgresProvider) Bars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Bar, error) {
	const query = `
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM ohlcv_bars
		WHERE symbol = $1 AND timeframe = $2 AND timestamp >= $3 AND timestamp <= $4
		ORDER BY timestamp ASC`

	var rows []barRow
	if err := p.db.SelectContext(ctx, &rows, query, symbol, timeframe, start, end); err != nil {
		return nil, fmt.Errorf("querying ohlcv_bars: %w", err)
	}

	bars := make([]market.Bar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, market.Bar{
			Symbol:    row.Symbol,
			Timestamp: row.Timestamp,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		})
	}
	return bars, nil
}

// WriteBars upserts bars keyed on (symbol, timeframe, timestamp), so
// re-fetching a range is idempotent.
func (p *PostgresProvider) WriteBars(ctx context.Context, timeframe string, bars []market.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	const query = `
		INSERT INTO ohlcv_bars (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, timeframe, timestamp) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume`

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, bar := range bars {
		if _, err := tx.ExecContext(ctx, query,
			bar.Symbol, timeframe, bar.Timestamp,
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
		); err != nil {
			return fmt.Errorf("upserting bar %s %s: %w", bar.Symbol, bar.Timestamp.Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing bars: %w", err)
	}
	return nil
}

// Verify that PostgresProvider implements the feed.Provider interface
var _ feed.Provider = (*PostgresProvider)(nil)
