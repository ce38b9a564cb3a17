package data

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/stratbench/internal/telemetry"
	"github.com/quantlab/stratbench/pkg/market"
)

type countingProvider struct {
	calls int
	bars  []market.Bar
	err   error
}

func (p *countingProvider) Bars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Bar, error) {
	p.calls++
	return p.bars, p.err
}

func cacheBars(n int) []market.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		bars[i] = market.Bar{
			Symbol:    "TEST",
			Timestamp: start.Add(time.Duration(i) * 24 * time.Hour),
			Open:      100, High: 101, Low: 99, Close: 100.5, Volume: 1000,
		}
	}
	return bars
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "key", []byte("value"), time.Minute)
	got, ok := c.Get(ctx, "key")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), got)

	t.Run("expired entry is a miss", func(t *testing.T) {
		c.Set(ctx, "gone", []byte("x"), -time.Second)
		_, ok := c.Get(ctx, "gone")
		assert.False(t, ok)
	})
}

func TestCachedProvider(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(240 * time.Hour)

	t.Run("second read is served from cache", func(t *testing.T) {
		inner := &countingProvider{bars: cacheBars(5)}
		p := NewCachedProvider(inner, NewMemoryCache(), time.Minute, nil)

		first, err := p.Bars(ctx, "TEST", "1d", start, end)
		require.NoError(t, err)
		second, err := p.Bars(ctx, "TEST", "1d", start, end)
		require.NoError(t, err)

		assert.Equal(t, 1, inner.calls)
		assert.Equal(t, first, second)
	})

	t.Run("distinct queries have distinct keys", func(t *testing.T) {
		inner := &countingProvider{bars: cacheBars(5)}
		p := NewCachedProvider(inner, NewMemoryCache(), time.Minute, nil)

		_, err := p.Bars(ctx, "TEST", "1d", start, end)
		require.NoError(t, err)
		_, err = p.Bars(ctx, "TEST", "1h", start, end)
		require.NoError(t, err)

		assert.Equal(t, 2, inner.calls)
	})

	t.Run("provider errors are not cached", func(t *testing.T) {
		inner := &countingProvider{err: assert.AnError}
		p := NewCachedProvider(inner, NewMemoryCache(), time.Minute, nil)

		_, err := p.Bars(ctx, "TEST", "1d", start, end)
		assert.Error(t, err)
		_, err = p.Bars(ctx, "TEST", "1d", start, end)
		assert.Error(t, err)
		assert.Equal(t, 2, inner.calls)
	})

	t.Run("hits and misses are counted", func(t *testing.T) {
		m := telemetry.New()
		inner := &countingProvider{bars: cacheBars(5)}
		p := NewCachedProvider(inner, NewMemoryCache(), time.Minute, m)

		_, err := p.Bars(ctx, "TEST", "1d", start, end)
		require.NoError(t, err)
		_, err = p.Bars(ctx, "TEST", "1d", start, end)
		require.NoError(t, err)

		assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	})
}

func TestInstrumentedProvider(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(240 * time.Hour)

	m := telemetry.New()
	failing := NewInstrumentedProvider(&countingProvider{err: assert.AnError}, "binance", m)
	working := NewInstrumentedProvider(&countingProvider{bars: cacheBars(3)}, "csv", m)

	_, err := failing.Bars(ctx, "TEST", "1d", start, end)
	assert.Error(t, err)
	_, err = failing.Bars(ctx, "TEST", "1d", start, end)
	assert.Error(t, err)

	got, err := working.Bars(ctx, "TEST", "1d", start, end)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProviderErrors.WithLabelValues("binance")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ProviderErrors.WithLabelValues("csv")))
}
