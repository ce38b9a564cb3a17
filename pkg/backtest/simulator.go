// Package backtest contains the deterministic trade simulator and the
// performance metrics derived from its output.
package backtest

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantlab/stratbench/pkg/logging"
	"github.com/quantlab/stratbench/pkg/market"
	"github.com/quantlab/stratbench/pkg/sizing"
	"github.com/quantlab/stratbench/pkg/strategy"
)

// Config holds every knob of a simulation run. All defaults are explicit
// values passed into the constructor: there is no hidden process-wide
// state, so a run is fully reproducible from its inputs alone.
type Config struct {
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
	Commission     float64 `yaml:"commission" json:"commission"`
	Slippage       float64 `yaml:"slippage" json:"slippage"`
	RiskFraction   float64 `yaml:"risk_fraction" json:"risk_fraction"`
	MinUnit        float64 `yaml:"min_unit" json:"min_unit"`
	BarsPerYear    int     `yaml:"bars_per_year" json:"bars_per_year"`
}

// DefaultConfig returns the default simulation parameters.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 100000,
		Commission:     0.001,
		Slippage:       0.0005,
		RiskFraction:   0.02,
		MinUnit:        1,
		BarsPerYear:    252,
	}
}

// Validate rejects out-of-range simulation parameters at construction.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return &strategy.InvalidParameterError{Param: "initial_capital", Value: c.InitialCapital, Reason: "must be positive"}
	}
	if c.Commission < 0 || c.Commission >= 1 {
		return &strategy.InvalidParameterError{Param: "commission", Value: c.Commission, Reason: "must be within [0, 1)"}
	}
	if c.Slippage < 0 || c.Slippage >= 1 {
		return &strategy.InvalidParameterError{Param: "slippage", Value: c.Slippage, Reason: "must be within [0, 1)"}
	}
	if c.RiskFraction <= 0 || c.RiskFraction > 1 {
		return &strategy.InvalidParameterError{Param: "risk_fraction", Value: c.RiskFraction, Reason: "must be within (0, 1]"}
	}
	if c.MinUnit <= 0 {
		return &strategy.InvalidParameterError{Param: "min_unit", Value: c.MinUnit, Reason: "must be positive"}
	}
	if c.BarsPerYear <= 0 {
		return &strategy.InvalidParameterError{Param: "bars_per_year", Value: c.BarsPerYear, Reason: "must be positive"}
	}
	return nil
}

// Simulator replays a price series against a signal sequence: one pass,
// single position, close-price fills with adverse slippage and
// commission on both legs. No randomness, no clock, no I/O in the loop.
type Simulator struct {
	cfg    Config
	sizer  sizing.Fractional
	logger zerolog.Logger
}

// NewSimulator validates the configuration and builds a simulator.
func NewSimulator(cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Simulator{
		cfg:    cfg,
		sizer:  sizing.Fractional{Fraction: cfg.RiskFraction, MinUnit: cfg.MinUnit},
		logger: logging.GetLogger("backtest"),
	}, nil
}

// position is the simulator's single open-position state.
type position struct {
	direction  strategy.Signal
	size       float64
	entryTime  time.Time
	entryFill  float64 // fill price including slippage
	entryClose float64 // raw close at entry, for friction-free gross P&L
	commission float64
	slippage   float64
}

// Run walks the series once and returns the equity curve, the trade
// ledger and the derived metrics. Signals must align with the series by
// index; a length mismatch aborts with no partial result.
//
// On a direction flip the open position is closed and a new one opened
// against the same bar's close. Both legs pricing off one close is a
// documented simplification of the fill model, not look-ahead: the bar's
// own signal drives both transitions.
func (s *Simulator) Run(series *market.Series, signals []strategy.Signal, name string) (*Result, error) {
	if series.Len() != len(signals) {
		return nil, fmt.Errorf("signal count %d does not match series length %d", len(signals), series.Len())
	}

	cash := s.cfg.InitialCapital
	var open *position
	trades := make([]Trade, 0)
	curve := make([]EquityPoint, 0, series.Len())

	for i := 0; i < series.Len(); i++ {
		bar := series.Bar(i)
		signal := signals[i]

		if open != nil && (signal == strategy.Flat || signal == open.direction.Opposite()) {
			trade, proceeds := s.closePosition(open, bar, false)
			cash += proceeds
			trades = append(trades, trade)
			open = nil
		}

		if open == nil && signal != strategy.Flat {
			pos, cost := s.openPosition(signal, bar, cash)
			if pos != nil {
				cash += cost
				open = pos
			}
		}

		curve = append(curve, EquityPoint{
			Timestamp: bar.Timestamp,
			Equity:    cash + markToMarket(open, bar.Close),
		})
	}

	// Force-close anything still open so the ledger and curve finalize.
	if open != nil {
		last := series.Bar(series.Len() - 1)
		trade, proceeds := s.closePosition(open, last, true)
		cash += proceeds
		trades = append(trades, trade)
		curve[len(curve)-1].Equity = cash
		open = nil
	}

	s.logger.Debug().
		Int("bars", series.Len()).
		Int("trades", len(trades)).
		Float64("final_equity", cash).
		Msg("Simulation pass complete")

	result := &Result{
		StrategyName:   name,
		Symbol:         series.Bar(0).Symbol,
		StartDate:      series.Bar(0).Timestamp,
		EndDate:        series.Bar(series.Len() - 1).Timestamp,
		InitialCapital: s.cfg.InitialCapital,
		FinalEquity:    cash,
		Trades:         trades,
		EquityCurve:    curve,
		Metrics:        ComputeMetrics(s.cfg.InitialCapital, curve, trades, s.cfg.BarsPerYear),
	}
	return result, nil
}

// openPosition sizes and fills an entry at the bar's close. Returns nil
// when capital cannot afford a single lot. The second return value is the
// signed cash delta.
func (s *Simulator) openPosition(signal strategy.Signal, bar market.Bar, cash float64) (*position, float64) {
	size := s.sizer.Size(cash, bar.Close)
	if size <= 0 {
		return nil, 0
	}

	fill := s.entryFillPrice(signal, bar.Close)
	commission := size * fill * s.cfg.Commission
	slippageCost := size * bar.Close * s.cfg.Slippage

	pos := &position{
		direction:  signal,
		size:       size,
		entryTime:  bar.Timestamp,
		entryFill:  fill,
		entryClose: bar.Close,
		commission: commission,
		slippage:   slippageCost,
	}

	if signal == strategy.Long {
		return pos, -(size*fill + commission)
	}
	return pos, size*fill - commission
}

// closePosition fills an exit at the bar's close and realizes the trade.
// The second return value is the signed cash delta.
func (s *Simulator) closePosition(pos *position, bar market.Bar, forced bool) (Trade, float64) {
	fill := s.exitFillPrice(pos.direction, bar.Close)
	commission := pos.size * fill * s.cfg.Commission
	slippageCost := pos.size * bar.Close * s.cfg.Slippage

	var gross, proceeds float64
	direction := DirectionLong
	if pos.direction == strategy.Long {
		gross = (bar.Close - pos.entryClose) * pos.size
		proceeds = pos.size*fill - commission
	} else {
		direction = DirectionShort
		gross = (pos.entryClose - bar.Close) * pos.size
		proceeds = -(pos.size*fill + commission)
	}

	totalCommission := pos.commission + commission
	totalSlippage := pos.slippage + slippageCost

	return Trade{
		EntryTime:      pos.entryTime,
		ExitTime:       bar.Timestamp,
		EntryPrice:     pos.entryFill,
		ExitPrice:      fill,
		Direction:      direction,
		Size:           pos.size,
		CommissionPaid: totalCommission,
		SlippageCost:   totalSlippage,
		GrossPnL:       gross,
		NetPnL:         gross - totalSlippage - totalCommission,
		IsForcedExit:   forced,
	}, proceeds
}

// entryFillPrice applies slippage adversely to the entry leg.
func (s *Simulator) entryFillPrice(signal strategy.Signal, close float64) float64 {
	if signal == strategy.Long {
		return close * (1 + s.cfg.Slippage)
	}
	return close * (1 - s.cfg.Slippage)
}

// exitFillPrice applies slippage adversely to the exit leg.
func (s *Simulator) exitFillPrice(direction strategy.Signal, close float64) float64 {
	if direction == strategy.Long {
		return close * (1 - s.cfg.Slippage)
	}
	return close * (1 + s.cfg.Slippage)
}

// markToMarket values an open position at the given close price.
func markToMarket(pos *position, close float64) float64 {
	if pos == nil {
		return 0
	}
	if pos.direction == strategy.Long {
		return pos.size * close
	}
	return -pos.size * close
}
