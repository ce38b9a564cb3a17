package api

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/quantlab/stratbench/internal/service"
	"github.com/quantlab/stratbench/pkg/backtest"
)

// MetricsPayload mirrors backtest.MetricsReport for the wire.
// ProfitFactor is a pointer because encoding/json cannot represent the
// +Inf sentinel; null means the run had winners and no losers.
type MetricsPayload struct {
	TotalReturn  float64  `json:"total_return"`
	SharpeRatio  float64  `json:"sharpe_ratio"`
	SortinoRatio float64  `json:"sortino_ratio"`
	MaxDrawdown  float64  `json:"max_drawdown"`
	WinRate      float64  `json:"win_rate"`
	ProfitFactor *float64 `json:"profit_factor"`
	AvgProfit    float64  `json:"avg_profit"`
	AvgLoss      float64  `json:"avg_loss"`
	TotalTrades  int      `json:"total_trades"`
}

// NewMetricsPayload converts a metrics report for JSON output.
func NewMetricsPayload(m backtest.MetricsReport) MetricsPayload {
	p := MetricsPayload{
		TotalReturn:  m.TotalReturn,
		SharpeRatio:  m.SharpeRatio,
		SortinoRatio: m.SortinoRatio,
		MaxDrawdown:  m.MaxDrawdown,
		WinRate:      m.WinRate,
		AvgProfit:    m.AvgProfit,
		AvgLoss:      m.AvgLoss,
		TotalTrades:  m.TotalTrades,
	}
	if !math.IsInf(m.ProfitFactor, 1) {
		pf := m.ProfitFactor
		p.ProfitFactor = &pf
	}
	return p
}

// BacktestResponse is the wire shape of a completed run. ID and
// CreatedAt are present only when the run was persisted.
type BacktestResponse struct {
	ID             *uuid.UUID             `json:"id,omitempty"`
	StrategyID     *uuid.UUID             `json:"strategy_id,omitempty"`
	StrategyName   string                 `json:"strategy_name"`
	Symbol         string                 `json:"symbol"`
	Timeframe      string                 `json:"timeframe"`
	StartDate      time.Time              `json:"start_date"`
	EndDate        time.Time              `json:"end_date"`
	InitialCapital float64                `json:"initial_capital"`
	FinalEquity    float64                `json:"final_equity"`
	Metrics        MetricsPayload         `json:"metrics"`
	EquityCurve    []backtest.EquityPoint `json:"equity_curve"`
	Trades         []backtest.Trade       `json:"trades"`
	CreatedAt      *time.Time             `json:"created_at,omitempty"`
}

// NewBacktestResponse flattens a run outcome for the wire.
func NewBacktestResponse(outcome *service.RunOutcome, timeframe string) BacktestResponse {
	result := outcome.Result
	resp := BacktestResponse{
		StrategyName:   result.StrategyName,
		Symbol:         result.Symbol,
		Timeframe:      timeframe,
		StartDate:      result.StartDate,
		EndDate:        result.EndDate,
		InitialCapital: result.InitialCapital,
		FinalEquity:    result.FinalEquity,
		Metrics:        NewMetricsPayload(result.Metrics),
		EquityCurve:    result.EquityCurve,
		Trades:         result.Trades,
	}
	if rec := outcome.Record; rec != nil {
		resp.ID = &rec.ID
		resp.StrategyID = rec.StrategyID
		resp.CreatedAt = &rec.CreatedAt
	}
	return resp
}

// createStrategyRequest is the POST /strategies body.
type createStrategyRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Kind        string         `json:"kind"`
	Parameters  map[string]any `json:"parameters"`
	IsActive    *bool          `json:"is_active"`
}

// updateStrategyRequest is the PUT /strategies/{id} body; absent fields
// are left untouched.
type updateStrategyRequest struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Kind        *string        `json:"kind"`
	Parameters  map[string]any `json:"parameters"`
	IsActive    *bool          `json:"is_active"`
}

// listResponse wraps collection endpoints with their paging window.
type listResponse struct {
	Items  any `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}
