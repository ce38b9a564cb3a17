package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quantlab/stratbench/pkg/backtest"
)

// BacktestRecord is a stored backtest run: the inputs, the headline
// metrics, and the full equity curve and trade ledger as JSONB.
// ProfitFactor is NULL when the run had winners and no losers (the
// infinity sentinel does not fit a float8 literal).
type BacktestRecord struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	StrategyID     *uuid.UUID      `db:"strategy_id" json:"strategy_id,omitempty"`
	Symbol         string          `db:"symbol" json:"symbol"`
	Timeframe      string          `db:"timeframe" json:"timeframe"`
	StartDate      time.Time       `db:"start_date" json:"start_date"`
	EndDate        time.Time       `db:"end_date" json:"end_date"`
	InitialCapital float64         `db:"initial_capital" json:"initial_capital"`
	FinalEquity    float64         `db:"final_equity" json:"final_equity"`
	TotalReturn    float64         `db:"total_return" json:"total_return"`
	SharpeRatio    float64         `db:"sharpe_ratio" json:"sharpe_ratio"`
	SortinoRatio   float64         `db:"sortino_ratio" json:"sortino_ratio"`
	MaxDrawdown    float64         `db:"max_drawdown" json:"max_drawdown"`
	WinRate        float64         `db:"win_rate" json:"win_rate"`
	ProfitFactor   *float64        `db:"profit_factor" json:"profit_factor,omitempty"`
	AvgProfit      float64         `db:"avg_profit" json:"avg_profit"`
	AvgLoss        float64         `db:"avg_loss" json:"avg_loss"`
	TotalTrades    int             `db:"total_trades" json:"total_trades"`
	Parameters     json.RawMessage `db:"parameters" json:"parameters"`
	EquityCurve    json.RawMessage `db:"equity_curve" json:"equity_curve"`
	Trades         json.RawMessage `db:"trades" json:"trades"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// NewBacktestRecord flattens a simulation result into a storable record.
func NewBacktestRecord(result *backtest.Result, timeframe string, strategyID *uuid.UUID, params json.RawMessage) (*BacktestRecord, error) {
	curve, err := json.Marshal(result.EquityCurve)
	if err != nil {
		return nil, fmt.Errorf("encoding equity curve: %w", err)
	}
	trades, err := json.Marshal(result.Trades)
	if err != nil {
		return nil, fmt.Errorf("encoding trades: %w", err)
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	var profitFactor *float64
	if !math.IsInf(result.Metrics.ProfitFactor, 1) {
		pf := result.Metrics.ProfitFactor
		profitFactor = &pf
	}

	return &BacktestRecord{
		ID:             uuid.New(),
		StrategyID:     strategyID,
		Symbol:         result.Symbol,
		Timeframe:      timeframe,
		StartDate:      result.StartDate,
		EndDate:        result.EndDate,
		InitialCapital: result.InitialCapital,
		FinalEquity:    result.FinalEquity,
		TotalReturn:    result.Metrics.TotalReturn,
		SharpeRatio:    result.Metrics.SharpeRatio,
		SortinoRatio:   result.Metrics.SortinoRatio,
		MaxDrawdown:    result.Metrics.MaxDrawdown,
		WinRate:        result.Metrics.WinRate,
		ProfitFactor:   profitFactor,
		AvgProfit:      result.Metrics.AvgProfit,
		AvgLoss:        result.Metrics.AvgLoss,
		TotalTrades:    result.Metrics.TotalTrades,
		Parameters:     params,
		EquityCurve:    curve,
		Trades:         trades,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// BacktestRepo persists backtest runs.
type BacktestRepo struct {
	db *sqlx.DB
}

// NewBacktestRepo wraps the database handle.
func NewBacktestRepo(db *sqlx.DB) *BacktestRepo {
	return &BacktestRepo{db: db}
}

// Insert stores a backtest record.
func (r *BacktestRepo) Insert(ctx context.Context, rec *BacktestRecord) error {
	const query = `
		INSERT INTO backtests (
			id, strategy_id, symbol, timeframe, start_date, end_date,
			initial_capital, final_equity, total_return, sharpe_ratio, sortino_ratio,
			max_drawdown, win_rate, profit_factor, avg_profit, avg_loss, total_trades,
			parameters, equity_curve, trades, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.StrategyID, rec.Symbol, rec.Timeframe, rec.StartDate, rec.EndDate,
		rec.InitialCapital, rec.FinalEquity, rec.TotalReturn, rec.SharpeRatio, rec.SortinoRatio,
		rec.MaxDrawdown, rec.WinRate, rec.ProfitFactor, rec.AvgProfit, rec.AvgLoss, rec.TotalTrades,
		rec.Parameters, rec.EquityCurve, rec.Trades, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting backtest: %w", err)
	}
	return nil
}

// Get fetches a backtest by ID.
func (r *BacktestRepo) Get(ctx context.Context, id uuid.UUID) (*BacktestRecord, error) {
	const query = `SELECT * FROM backtests WHERE id = $1`

	var rec BacktestRecord
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching backtest %s: %w", id, err)
	}
	return &rec, nil
}

// List returns backtests newest-first, optionally filtered by strategy.
func (r *BacktestRepo) List(ctx context.Context, strategyID *uuid.UUID, limit, offset int) ([]BacktestRecord, error) {
	recs := make([]BacktestRecord, 0)

	if strategyID != nil {
		const query = `
			SELECT * FROM backtests WHERE strategy_id = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		if err := r.db.SelectContext(ctx, &recs, query, *strategyID, limit, offset); err != nil {
			return nil, fmt.Errorf("listing backtests: %w", err)
		}
		return recs, nil
	}

	const query = `SELECT * FROM backtests ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &recs, query, limit, offset); err != nil {
		return nil, fmt.Errorf("listing backtests: %w", err)
	}
	return recs, nil
}
