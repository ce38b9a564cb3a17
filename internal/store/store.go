// Package store persists strategy definitions and backtest results in
// Postgres. Stored metrics are a convenience copy; the equity curve and
// trade ledger they derive from are persisted alongside them.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/quantlab/stratbench/internal/config"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateName is returned when a strategy name is already taken.
var ErrDuplicateName = errors.New("strategy name already exists")

// Open connects to Postgres, applies the pool settings and pings.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS strategies (
		id          UUID PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		kind        TEXT NOT NULL,
		parameters  JSONB NOT NULL DEFAULT '{}',
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS backtests (
		id              UUID PRIMARY KEY,
		strategy_id     UUID REFERENCES strategies(id) ON DELETE SET NULL,
		symbol          TEXT NOT NULL,
		timeframe       TEXT NOT NULL,
		start_date      TIMESTAMPTZ NOT NULL,
		end_date        TIMESTAMPTZ NOT NULL,
		initial_capital DOUBLE PRECISION NOT NULL,
		final_equity    DOUBLE PRECISION NOT NULL,
		total_return    DOUBLE PRECISION NOT NULL,
		sharpe_ratio    DOUBLE PRECISION NOT NULL,
		sortino_ratio   DOUBLE PRECISION NOT NULL,
		max_drawdown    DOUBLE PRECISION NOT NULL,
		win_rate        DOUBLE PRECISION NOT NULL,
		profit_factor   DOUBLE PRECISION,
		avg_profit      DOUBLE PRECISION NOT NULL,
		avg_loss        DOUBLE PRECISION NOT NULL,
		total_trades    INTEGER NOT NULL,
		parameters      JSONB NOT NULL DEFAULT '{}',
		equity_curve    JSONB NOT NULL DEFAULT '[]',
		trades          JSONB NOT NULL DEFAULT '[]',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtests_strategy_id ON backtests (strategy_id)`,
	`CREATE INDEX IF NOT EXISTS idx_backtests_created_at ON backtests (created_at DESC)`,
}

// Migrate applies the schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying migration %d: %w", i, err)
		}
	}
	return nil
}
