package backtest

import "math"

// MetricsReport holds the standardized performance statistics. It is a
// pure function of (equity curve, trades, bars per year) and is never
// authoritative in storage: anything persisted can be recomputed.
type MetricsReport struct {
	TotalReturn  float64 `json:"total_return"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	AvgProfit    float64 `json:"avg_profit"`
	AvgLoss      float64 `json:"avg_loss"`
	TotalTrades  int     `json:"total_trades"`
}

// ComputeMetrics derives the performance statistics from an equity curve
// and trade ledger. Every mathematically undefined ratio resolves to a
// documented sentinel instead of an error: a failed backtest on thin data
// is a worse outcome than a clearly-flagged degenerate metric.
func ComputeMetrics(initialCapital float64, curve []EquityPoint, trades []Trade, barsPerYear int) MetricsReport {
	report := MetricsReport{TotalTrades: len(trades)}

	if initialCapital > 0 && len(curve) > 0 {
		report.TotalReturn = curve[len(curve)-1].Equity/initialCapital - 1
	}

	returns := periodReturns(curve)
	annualization := math.Sqrt(float64(barsPerYear))
	report.SharpeRatio = sharpe(returns) * annualization
	report.SortinoRatio = sortino(returns) * annualization
	report.MaxDrawdown = maxDrawdown(curve)

	var wins, losses int
	var grossWins, grossLosses float64
	for _, trade := range trades {
		switch {
		case trade.NetPnL > 0:
			wins++
			grossWins += trade.NetPnL
		case trade.NetPnL < 0:
			losses++
			grossLosses += trade.NetPnL
		}
	}

	if len(trades) > 0 {
		report.WinRate = float64(wins) / float64(len(trades))
	}
	if wins > 0 {
		report.AvgProfit = grossWins / float64(wins)
	}
	if losses > 0 {
		report.AvgLoss = grossLosses / float64(losses)
	}

	switch {
	case losses == 0 && wins > 0:
		// Sentinel: all trades won, the ratio is unbounded.
		report.ProfitFactor = math.Inf(1)
	case losses > 0 && wins > 0:
		report.ProfitFactor = grossWins / math.Abs(grossLosses)
	}

	return report
}

// periodReturns computes per-bar percentage changes of the equity curve.
func periodReturns(curve []EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	return returns
}

// sharpe returns mean/stdev of the per-period returns, un-annualized.
// Defined as 0 when the deviation is 0 or fewer than two returns exist.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	sd := stdev(returns, m)
	if sd == 0 {
		return 0
	}
	return m / sd
}

// sortino is sharpe with the deviation taken over negative returns only.
// Defined as 0 when there are no negative periods (or just one, where the
// sample deviation is undefined).
func sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	var negatives []float64
	for _, r := range returns {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	if len(negatives) < 2 {
		return 0
	}

	downside := stdev(negatives, mean(negatives))
	if downside == 0 {
		return 0
	}
	return mean(returns) / downside
}

// maxDrawdown is the largest fractional decline from the running equity
// peak. The peak is monotonically non-decreasing, so the result is in
// [0, 1] for any curve that starts positive.
func maxDrawdown(curve []EquityPoint) float64 {
	var peak, worst float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := 1 - p.Equity/peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdev is the sample standard deviation (n-1 denominator).
func stdev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}
