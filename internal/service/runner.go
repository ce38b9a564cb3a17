// Package service wires market data, strategies and the simulator into a
// single backtest run pipeline shared by the CLI and the HTTP API.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantlab/stratbench/internal/store"
	"github.com/quantlab/stratbench/internal/telemetry"
	"github.com/quantlab/stratbench/pkg/backtest"
	"github.com/quantlab/stratbench/pkg/feed"
	"github.com/quantlab/stratbench/pkg/logging"
	"github.com/quantlab/stratbench/pkg/strategy"
)

// ErrNoStrategy is returned when a request names neither a stored
// strategy nor an inline definition.
var ErrNoStrategy = errors.New("request must carry a strategy_id or an inline strategy")

// StrategyReader resolves stored strategy definitions.
type StrategyReader interface {
	Get(ctx context.Context, id uuid.UUID) (*store.StrategyRecord, error)
}

// BacktestWriter persists completed runs.
type BacktestWriter interface {
	Insert(ctx context.Context, rec *store.BacktestRecord) error
}

// InlineStrategy is a strategy definition supplied directly on the
// request instead of referencing a stored one.
type InlineStrategy struct {
	Kind       string          `json:"kind"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// Overrides adjusts individual simulation knobs for a single run; nil
// fields keep the configured value.
type Overrides struct {
	InitialCapital *float64 `json:"initial_capital,omitempty"`
	Commission     *float64 `json:"commission,omitempty"`
	Slippage       *float64 `json:"slippage,omitempty"`
	RiskFraction   *float64 `json:"risk_fraction,omitempty"`
}

// RunRequest describes one backtest run.
type RunRequest struct {
	StrategyID *uuid.UUID      `json:"strategy_id,omitempty"`
	Strategy   *InlineStrategy `json:"strategy,omitempty"`
	Symbol     string          `json:"symbol"`
	Timeframe  string          `json:"timeframe"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Overrides  *Overrides      `json:"overrides,omitempty"`
}

// RunOutcome carries the simulation result and, when persistence is
// enabled, the stored record.
type RunOutcome struct {
	Result *backtest.Result
	Record *store.BacktestRecord
}

// Runner executes backtest runs end to end: resolve the strategy, load
// the series, simulate, persist.
type Runner struct {
	provider   feed.Provider
	strategies StrategyReader
	backtests  BacktestWriter
	metrics    *telemetry.Metrics
	cfg        backtest.Config
	logger     zerolog.Logger
}

// NewRunner builds a runner. strategies and backtests may be nil, in
// which case stored-strategy lookup and persistence are disabled.
func NewRunner(provider feed.Provider, strategies StrategyReader, backtests BacktestWriter, metrics *telemetry.Metrics, cfg backtest.Config) *Runner {
	return &Runner{
		provider:   provider,
		strategies: strategies,
		backtests:  backtests,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logging.GetLogger("runner"),
	}
}

// Run executes one backtest. Validation failures surface as
// *strategy.InvalidParameterError or *strategy.InsufficientDataError so
// callers can map them to their own error surface.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunOutcome, error) {
	started := time.Now()

	kind, params, strategyID, err := r.resolveStrategy(ctx, req)
	if err != nil {
		return nil, err
	}

	outcome, err := r.execute(ctx, req, kind, params, strategyID)

	if r.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		bars := 0
		if outcome != nil && outcome.Result != nil {
			bars = len(outcome.Result.EquityCurve)
		}
		r.metrics.ObserveRun(kind, status, time.Since(started), bars)
	}
	return outcome, err
}

func (r *Runner) execute(ctx context.Context, req RunRequest, kind string, params strategy.Params, strategyID *uuid.UUID) (*RunOutcome, error) {
	series, err := feed.Load(ctx, r.provider, req.Symbol, req.Timeframe, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	gen, err := strategy.New(kind, params, series.Len())
	if err != nil {
		return nil, err
	}

	signals, err := gen.Signals(series)
	if err != nil {
		return nil, err
	}

	sim, err := backtest.NewSimulator(r.runConfig(req.Overrides))
	if err != nil {
		return nil, err
	}

	result, err := sim.Run(series, signals, kind)
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("strategy", kind).
		Str("symbol", req.Symbol).
		Int("bars", series.Len()).
		Int("trades", len(result.Trades)).
		Float64("final_equity", result.FinalEquity).
		Msg("Backtest run complete")

	outcome := &RunOutcome{Result: result}
	if r.backtests == nil {
		return outcome, nil
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding parameters: %w", err)
	}
	rec, err := store.NewBacktestRecord(result, req.Timeframe, strategyID, paramsJSON)
	if err != nil {
		return nil, err
	}
	if err := r.backtests.Insert(ctx, rec); err != nil {
		return nil, err
	}
	outcome.Record = rec
	return outcome, nil
}

// resolveStrategy turns the request into a kind plus a full parameter
// map: defaults for the kind, overlaid with the supplied parameters.
func (r *Runner) resolveStrategy(ctx context.Context, req RunRequest) (string, strategy.Params, *uuid.UUID, error) {
	var kind string
	var raw json.RawMessage
	var strategyID *uuid.UUID

	switch {
	case req.StrategyID != nil:
		if r.strategies == nil {
			return "", nil, nil, errors.New("stored strategies are not configured")
		}
		rec, err := r.strategies.Get(ctx, *req.StrategyID)
		if err != nil {
			return "", nil, nil, err
		}
		kind = rec.Kind
		raw = rec.Parameters
		strategyID = &rec.ID
	case req.Strategy != nil:
		kind = req.Strategy.Kind
		raw = req.Strategy.Parameters
	default:
		return "", nil, nil, ErrNoStrategy
	}

	params, err := strategy.DefaultParams(kind)
	if err != nil {
		return "", nil, nil, err
	}
	if len(raw) > 0 {
		overlay := make(map[string]any)
		if err := json.Unmarshal(raw, &overlay); err != nil {
			return "", nil, nil, fmt.Errorf("decoding strategy parameters: %w", err)
		}
		for key, value := range overlay {
			params[key] = value
		}
	}
	return kind, params, strategyID, nil
}

func (r *Runner) runConfig(o *Overrides) backtest.Config {
	cfg := r.cfg
	if o == nil {
		return cfg
	}
	if o.InitialCapital != nil {
		cfg.InitialCapital = *o.InitialCapital
	}
	if o.Commission != nil {
		cfg.Commission = *o.Commission
	}
	if o.Slippage != nil {
		cfg.Slippage = *o.Slippage
	}
	if o.RiskFraction != nil {
		cfg.RiskFraction = *o.RiskFraction
	}
	return cfg
}
