package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/stratbench/internal/store"
	"github.com/quantlab/stratbench/pkg/backtest"
	"github.com/quantlab/stratbench/pkg/market"
	"github.com/quantlab/stratbench/pkg/strategy"
)

type stubBarProvider struct {
	bars []market.Bar
	err  error
}

func (p *stubBarProvider) Bars(_ context.Context, _, _ string, _, _ time.Time) ([]market.Bar, error) {
	return p.bars, p.err
}

type stubStrategyReader struct {
	rec *store.StrategyRecord
	err error
}

func (r *stubStrategyReader) Get(_ context.Context, _ uuid.UUID) (*store.StrategyRecord, error) {
	return r.rec, r.err
}

type captureWriter struct {
	inserted *store.BacktestRecord
	err      error
}

func (w *captureWriter) Insert(_ context.Context, rec *store.BacktestRecord) error {
	w.inserted = rec
	return w.err
}

func risingBars(n int) []market.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		close := 100.0 + float64(i)
		bars[i] = market.Bar{
			Symbol:    "TEST",
			Timestamp: start.Add(time.Duration(i) * 24 * time.Hour),
			Open:      close - 0.5,
			High:      close + 1,
			Low:       close - 1,
			Close:     close,
			Volume:    1000,
		}
	}
	return bars
}

func inlineMomentum() *InlineStrategy {
	return &InlineStrategy{
		Kind:       strategy.KindMomentum,
		Parameters: json.RawMessage(`{"fast_period": 3, "slow_period": 5}`),
	}
}

func baseRequest() RunRequest {
	return RunRequest{
		Strategy:  inlineMomentum(),
		Symbol:    "TEST",
		Timeframe: "1d",
		Start:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRunnerInlineStrategy(t *testing.T) {
	provider := &stubBarProvider{bars: risingBars(40)}
	runner := NewRunner(provider, nil, nil, nil, backtest.DefaultConfig())

	outcome, err := runner.Run(context.Background(), baseRequest())
	require.NoError(t, err)
	require.NotNil(t, outcome.Result)
	assert.Nil(t, outcome.Record, "no writer configured, nothing persisted")

	assert.Equal(t, strategy.KindMomentum, outcome.Result.StrategyName)
	assert.Len(t, outcome.Result.EquityCurve, 40)
	assert.NotEmpty(t, outcome.Result.Trades, "rising series must trade long")
}

func TestRunnerPersistsRecord(t *testing.T) {
	provider := &stubBarProvider{bars: risingBars(40)}
	writer := &captureWriter{}
	runner := NewRunner(provider, nil, writer, nil, backtest.DefaultConfig())

	outcome, err := runner.Run(context.Background(), baseRequest())
	require.NoError(t, err)
	require.NotNil(t, outcome.Record)
	require.Same(t, writer.inserted, outcome.Record)

	assert.Equal(t, "TEST", outcome.Record.Symbol)
	assert.Equal(t, "1d", outcome.Record.Timeframe)
	assert.Equal(t, outcome.Result.FinalEquity, outcome.Record.FinalEquity)
	assert.Nil(t, outcome.Record.StrategyID)

	var params map[string]any
	require.NoError(t, json.Unmarshal(outcome.Record.Parameters, &params))
	assert.Equal(t, 3.0, params["fast_period"], "inline parameters overlay the defaults")
	assert.Equal(t, "sma", params["ma_type"], "unspecified parameters keep their defaults")
}

func TestRunnerStoredStrategy(t *testing.T) {
	id := uuid.New()
	reader := &stubStrategyReader{rec: &store.StrategyRecord{
		ID:         id,
		Name:       "fast-momo",
		Kind:       strategy.KindMomentum,
		Parameters: json.RawMessage(`{"fast_period": 3, "slow_period": 5}`),
	}}
	writer := &captureWriter{}
	runner := NewRunner(&stubBarProvider{bars: risingBars(40)}, reader, writer, nil, backtest.DefaultConfig())

	req := baseRequest()
	req.Strategy = nil
	req.StrategyID = &id

	outcome, err := runner.Run(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, outcome.Record.StrategyID)
	assert.Equal(t, id, *outcome.Record.StrategyID)
}

func TestRunnerStoredStrategyNotFound(t *testing.T) {
	id := uuid.New()
	reader := &stubStrategyReader{err: store.ErrNotFound}
	runner := NewRunner(&stubBarProvider{bars: risingBars(40)}, reader, nil, nil, backtest.DefaultConfig())

	req := baseRequest()
	req.Strategy = nil
	req.StrategyID = &id

	_, err := runner.Run(context.Background(), req)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunnerNoStrategy(t *testing.T) {
	runner := NewRunner(&stubBarProvider{bars: risingBars(40)}, nil, nil, nil, backtest.DefaultConfig())

	req := baseRequest()
	req.Strategy = nil

	_, err := runner.Run(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoStrategy)
}

func TestRunnerOverrides(t *testing.T) {
	runner := NewRunner(&stubBarProvider{bars: risingBars(40)}, nil, nil, nil, backtest.DefaultConfig())

	zero := 0.0
	capital := 5000.0
	req := baseRequest()
	req.Overrides = &Overrides{
		InitialCapital: &capital,
		Commission:     &zero,
		Slippage:       &zero,
	}

	outcome, err := runner.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, capital, outcome.Result.InitialCapital)
	for _, trade := range outcome.Result.Trades {
		assert.Equal(t, trade.GrossPnL, trade.NetPnL, "zero frictions leave gross and net equal")
	}
}

func TestRunnerInsufficientHistory(t *testing.T) {
	runner := NewRunner(&stubBarProvider{bars: risingBars(3)}, nil, nil, nil, backtest.DefaultConfig())

	_, err := runner.Run(context.Background(), baseRequest())
	var insufficient *strategy.InsufficientDataError
	assert.ErrorAs(t, err, &insufficient)
}

func TestRunnerProviderError(t *testing.T) {
	boom := errors.New("upstream down")
	runner := NewRunner(&stubBarProvider{err: boom}, nil, nil, nil, backtest.DefaultConfig())

	_, err := runner.Run(context.Background(), baseRequest())
	assert.ErrorIs(t, err, boom)
}

func TestRunnerUnknownKind(t *testing.T) {
	runner := NewRunner(&stubBarProvider{bars: risingBars(40)}, nil, nil, nil, backtest.DefaultConfig())

	req := baseRequest()
	req.Strategy = &InlineStrategy{Kind: "arbitrage"}

	_, err := runner.Run(context.Background(), req)
	assert.ErrorContains(t, err, "unknown strategy kind")
}
