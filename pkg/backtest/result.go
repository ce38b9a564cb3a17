package backtest

import (
	"fmt"
	"math"
	"time"
)

// Direction marks which side a trade was on.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Trade is a closed-position record, created exactly when a position
// transitions open to closed and immutable thereafter. Entry and exit
// prices are fill prices including slippage; GrossPnL is measured at
// close prices with no frictions, so NetPnL = GrossPnL - SlippageCost -
// CommissionPaid.
type Trade struct {
	EntryTime      time.Time `json:"entry_time"`
	ExitTime       time.Time `json:"exit_time"`
	EntryPrice     float64   `json:"entry_price"`
	ExitPrice      float64   `json:"exit_price"`
	Direction      Direction `json:"direction"`
	Size           float64   `json:"size"`
	CommissionPaid float64   `json:"commission_paid"`
	SlippageCost   float64   `json:"slippage_cost"`
	GrossPnL       float64   `json:"gross_pnl"`
	NetPnL         float64   `json:"net_pnl"`
	IsForcedExit   bool      `json:"is_forced_exit"`
}

// EquityPoint is one point of the equity curve: cash plus the
// mark-to-market value of any open position at that bar's close.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Result holds the complete outcome of one backtest run. It is owned by
// the caller and never mutated after Run returns.
type Result struct {
	StrategyName   string        `json:"strategy_name"`
	Symbol         string        `json:"symbol"`
	StartDate      time.Time     `json:"start_date"`
	EndDate        time.Time     `json:"end_date"`
	InitialCapital float64       `json:"initial_capital"`
	FinalEquity    float64       `json:"final_equity"`
	Trades         []Trade       `json:"trades"`
	EquityCurve    []EquityPoint `json:"equity_curve"`
	Metrics        MetricsReport `json:"metrics"`
}

// Summary returns a human-readable summary of the results.
func (r *Result) Summary() string {
	profitFactor := fmt.Sprintf("%.2f", r.Metrics.ProfitFactor)
	if math.IsInf(r.Metrics.ProfitFactor, 1) {
		profitFactor = "inf (no losing trades)"
	}

	return fmt.Sprintf(`
Backtest Results for %s on %s
==============================
Period: %s to %s
Initial Capital: $%.2f
Final Equity: $%.2f
Total Return: %.2f%%

Trade Statistics:
- Total Trades: %d
- Win Rate: %.1f%%
- Average Profit: $%.2f
- Average Loss: $%.2f
- Profit Factor: %s

Risk Metrics:
- Sharpe Ratio: %.2f
- Sortino Ratio: %.2f
- Max Drawdown: %.2f%%
`,
		r.StrategyName,
		r.Symbol,
		r.StartDate.Format("2006-01-02"),
		r.EndDate.Format("2006-01-02"),
		r.InitialCapital,
		r.FinalEquity,
		r.Metrics.TotalReturn*100,
		r.Metrics.TotalTrades,
		r.Metrics.WinRate*100,
		r.Metrics.AvgProfit,
		r.Metrics.AvgLoss,
		profitFactor,
		r.Metrics.SharpeRatio,
		r.Metrics.SortinoRatio,
		r.Metrics.MaxDrawdown*100,
	)
}
