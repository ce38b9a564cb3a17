package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/stratbench/pkg/market"
	"github.com/quantlab/stratbench/pkg/strategy"
)

func buildSeries(t *testing.T, closes []float64) *market.Series {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Symbol:    "TEST",
			Timestamp: start.Add(time.Duration(i) * 24 * time.Hour),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1000,
		}
	}
	s, err := market.NewSeries(bars)
	require.NoError(t, err)
	return s
}

func newTestSimulator(t *testing.T, cfg Config) *Simulator {
	t.Helper()
	sim, err := NewSimulator(cfg)
	require.NoError(t, err)
	return sim
}

func assertConservation(t *testing.T, result *Result) {
	t.Helper()
	sum := result.InitialCapital
	for _, trade := range result.Trades {
		sum += trade.NetPnL
	}
	assert.InDelta(t, result.FinalEquity, sum, 1e-6,
		"final equity must equal initial capital plus total net P&L")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capital", func(c *Config) { c.InitialCapital = 0 }},
		{"negative commission", func(c *Config) { c.Commission = -0.01 }},
		{"commission at one", func(c *Config) { c.Commission = 1 }},
		{"negative slippage", func(c *Config) { c.Slippage = -0.01 }},
		{"zero risk fraction", func(c *Config) { c.RiskFraction = 0 }},
		{"zero min unit", func(c *Config) { c.MinUnit = 0 }},
		{"zero bars per year", func(c *Config) { c.BarsPerYear = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewSimulator(cfg)
			var invalid *strategy.InvalidParameterError
			assert.ErrorAs(t, err, &invalid)
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		_, err := NewSimulator(DefaultConfig())
		assert.NoError(t, err)
	})
}

func TestRunSignalLengthMismatch(t *testing.T) {
	s := buildSeries(t, []float64{100, 101, 102})
	sim := newTestSimulator(t, DefaultConfig())

	_, err := sim.Run(s, []strategy.Signal{strategy.Flat}, "test")
	assert.ErrorContains(t, err, "does not match series length")
}

func TestRunFlatSeries(t *testing.T) {
	// Flat prices with a momentum strategy: no trades, neutral metrics.
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	s := buildSeries(t, closes)

	gen, err := strategy.New(strategy.KindMomentum, strategy.Params{"fast_period": 3, "slow_period": 5}, s.Len())
	require.NoError(t, err)
	signals, err := gen.Signals(s)
	require.NoError(t, err)

	sim := newTestSimulator(t, DefaultConfig())
	result, err := sim.Run(s, signals, gen.Name())
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.Len(t, result.EquityCurve, s.Len())
	assert.Equal(t, result.InitialCapital, result.FinalEquity)
	assert.Zero(t, result.Metrics.SharpeRatio)
	assert.Zero(t, result.Metrics.MaxDrawdown)
	assert.Zero(t, result.Metrics.WinRate)
	assert.Zero(t, result.Metrics.TotalTrades)
	assertConservation(t, result)
}

func TestRunMonotonicRise(t *testing.T) {
	// Strictly rising prices with momentum(3, 5): exactly one long trade
	// opened right after warm-up, force-closed at the end, profitable.
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)*2
	}
	s := buildSeries(t, closes)

	gen, err := strategy.New(strategy.KindMomentum, strategy.Params{"fast_period": 3, "slow_period": 5}, s.Len())
	require.NoError(t, err)
	signals, err := gen.Signals(s)
	require.NoError(t, err)

	sim := newTestSimulator(t, DefaultConfig())
	result, err := sim.Run(s, signals, gen.Name())
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, DirectionLong, trade.Direction)
	assert.Equal(t, s.Bar(gen.MinBars()-1).Timestamp, trade.EntryTime, "opened at the first bar past warm-up")
	assert.True(t, trade.IsForcedExit)
	assert.Positive(t, trade.NetPnL)
	assert.Equal(t, 1.0, result.Metrics.WinRate)
	assert.True(t, math.IsInf(result.Metrics.ProfitFactor, 1))
	assert.Greater(t, result.FinalEquity, result.InitialCapital)
	assertConservation(t, result)
}

func TestRunWhipsaw(t *testing.T) {
	// Hand-built alternating signal runs: each direction flip closes the
	// standing trade, so trade count equals the number of flips.
	closes := make([]float64, 12)
	for i := range closes {
		closes[i] = 100
		if i%2 == 1 {
			closes[i] = 101
		}
	}
	s := buildSeries(t, closes)

	signals := make([]strategy.Signal, s.Len())
	for i := range signals {
		signals[i] = strategy.Long
		if i%2 == 1 {
			signals[i] = strategy.Short
		}
	}

	sim := newTestSimulator(t, DefaultConfig())
	result, err := sim.Run(s, signals, "whipsaw")
	require.NoError(t, err)

	// 11 flips close 11 trades, plus the forced exit on the final bar.
	assert.Len(t, result.Trades, 12)
	for i, trade := range result.Trades {
		assert.Less(t, trade.NetPnL, trade.GrossPnL,
			"frictions must reduce net below gross on trade %d", i)
		assert.Positive(t, trade.CommissionPaid)
		assert.Positive(t, trade.SlippageCost)
	}
	assert.True(t, result.Trades[len(result.Trades)-1].IsForcedExit)
	assertConservation(t, result)
}

func TestRunReopenOnFlip(t *testing.T) {
	// A flip closes and reopens against the same bar's close.
	closes := []float64{100, 110, 120, 110, 100, 90}
	s := buildSeries(t, closes)
	signals := []strategy.Signal{
		strategy.Long, strategy.Long, strategy.Long,
		strategy.Short, strategy.Short, strategy.Short,
	}

	sim := newTestSimulator(t, DefaultConfig())
	result, err := sim.Run(s, signals, "flip")
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	first, second := result.Trades[0], result.Trades[1]

	assert.Equal(t, DirectionLong, first.Direction)
	assert.Equal(t, DirectionShort, second.Direction)
	assert.Equal(t, first.ExitTime, second.EntryTime, "close and reopen share the flip bar")
	assert.True(t, second.IsForcedExit)
	assert.Positive(t, first.GrossPnL)
	assert.Positive(t, second.GrossPnL)
	assertConservation(t, result)
}

func TestRunShortBookkeeping(t *testing.T) {
	// A falling market traded short must profit net of frictions.
	closes := []float64{100, 95, 90, 85, 80}
	s := buildSeries(t, closes)
	signals := []strategy.Signal{
		strategy.Short, strategy.Short, strategy.Short, strategy.Short, strategy.Flat,
	}

	cfg := DefaultConfig()
	cfg.RiskFraction = 0.5
	sim := newTestSimulator(t, cfg)
	result, err := sim.Run(s, signals, "short")
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, DirectionShort, trade.Direction)
	assert.False(t, trade.IsForcedExit)
	assert.Positive(t, trade.NetPnL)
	assert.InDelta(t, (100.0-80.0)*trade.Size, trade.GrossPnL, 1e-9)
	assertConservation(t, result)
}

func TestRunEquityCurveAlignment(t *testing.T) {
	for _, n := range []int{1, 2, 7, 40} {
		closes := make([]float64, n)
		for i := range closes {
			closes[i] = 100 + float64(i%5)
		}
		s := buildSeries(t, closes)
		signals := make([]strategy.Signal, n)

		sim := newTestSimulator(t, DefaultConfig())
		result, err := sim.Run(s, signals, "align")
		require.NoError(t, err)
		assert.Len(t, result.EquityCurve, n)

		for i := range result.EquityCurve {
			assert.Equal(t, s.Bar(i).Timestamp, result.EquityCurve[i].Timestamp)
		}
	}
}

func TestRunIdempotence(t *testing.T) {
	closes := []float64{100, 99, 104, 97, 106, 95, 108, 93, 111, 90, 114, 88}
	s := buildSeries(t, closes)

	gen, err := strategy.New(strategy.KindMomentum, strategy.Params{"fast_period": 3, "slow_period": 5}, s.Len())
	require.NoError(t, err)
	signals, err := gen.Signals(s)
	require.NoError(t, err)

	sim := newTestSimulator(t, DefaultConfig())
	first, err := sim.Run(s, signals, gen.Name())
	require.NoError(t, err)
	second, err := sim.Run(s, signals, gen.Name())
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical inputs must reproduce identical results")
}

func TestRunZeroFrictions(t *testing.T) {
	// With no commission or slippage, net equals gross exactly.
	closes := []float64{100, 110, 120}
	s := buildSeries(t, closes)
	signals := []strategy.Signal{strategy.Long, strategy.Long, strategy.Flat}

	cfg := DefaultConfig()
	cfg.Commission = 0
	cfg.Slippage = 0
	sim := newTestSimulator(t, cfg)

	result, err := sim.Run(s, signals, "frictionless")
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.InDelta(t, result.Trades[0].GrossPnL, result.Trades[0].NetPnL, 1e-9)
	assertConservation(t, result)
}

func TestSummary(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	s := buildSeries(t, closes)

	gen, err := strategy.New(strategy.KindMomentum, strategy.Params{"fast_period": 3, "slow_period": 5}, s.Len())
	require.NoError(t, err)
	signals, err := gen.Signals(s)
	require.NoError(t, err)

	sim := newTestSimulator(t, DefaultConfig())
	result, err := sim.Run(s, signals, gen.Name())
	require.NoError(t, err)

	summary := result.Summary()
	assert.Contains(t, summary, "momentum")
	assert.Contains(t, summary, "Total Trades: 1")
	assert.Contains(t, summary, "inf (no losing trades)")
}
