package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/stratbench/pkg/market"
)

type stubProvider struct {
	bars []market.Bar
	err  error
}

func (p *stubProvider) Bars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Bar, error) {
	return p.bars, p.err
}

func stubBar(ts time.Time, close float64) market.Bar {
	return market.Bar{
		Symbol:    "TEST",
		Timestamp: ts,
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    100,
	}
}

func TestLoad(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	t.Run("sorts out-of-order bars", func(t *testing.T) {
		p := &stubProvider{bars: []market.Bar{
			stubBar(start.Add(2*day), 102),
			stubBar(start, 100),
			stubBar(start.Add(day), 101),
		}}

		s, err := Load(context.Background(), p, "TEST", "1d", start, start.Add(3*day))
		require.NoError(t, err)
		require.Equal(t, 3, s.Len())
		assert.Equal(t, 100.0, s.Bar(0).Close)
		assert.Equal(t, 102.0, s.Bar(2).Close)
	})

	t.Run("last duplicate wins", func(t *testing.T) {
		p := &stubProvider{bars: []market.Bar{
			stubBar(start, 100),
			stubBar(start.Add(day), 101),
			stubBar(start.Add(day), 999),
		}}

		s, err := Load(context.Background(), p, "TEST", "1d", start, start.Add(2*day))
		require.NoError(t, err)
		require.Equal(t, 2, s.Len())
		assert.Equal(t, 999.0, s.Bar(1).Close)
	})

	t.Run("empty result is an error", func(t *testing.T) {
		p := &stubProvider{}
		_, err := Load(context.Background(), p, "TEST", "1d", start, start.Add(day))
		assert.ErrorContains(t, err, "no bars available")
	})

	t.Run("provider error propagates", func(t *testing.T) {
		sentinel := errors.New("connection refused")
		p := &stubProvider{err: sentinel}
		_, err := Load(context.Background(), p, "TEST", "1d", start, start.Add(day))
		assert.ErrorIs(t, err, sentinel)
	})

	t.Run("malformed bar aborts", func(t *testing.T) {
		bad := stubBar(start, 100)
		bad.High = 0
		p := &stubProvider{bars: []market.Bar{bad}}
		_, err := Load(context.Background(), p, "TEST", "1d", start, start.Add(day))
		assert.ErrorContains(t, err, "building series")
	})
}
