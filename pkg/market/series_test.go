package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBar(ts time.Time, close float64) Bar {
	return Bar{
		Symbol:    "TEST",
		Timestamp: ts,
		Open:      close,
		High:      close * 1.01,
		Low:       close * 0.99,
		Close:     close,
		Volume:    1000,
	}
}

func TestNewSeries(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("valid series", func(t *testing.T) {
		bars := []Bar{
			testBar(start, 100),
			testBar(start.Add(24*time.Hour), 101),
			testBar(start.Add(48*time.Hour), 102),
		}
		s, err := NewSeries(bars)
		require.NoError(t, err)
		assert.Equal(t, 3, s.Len())
		assert.Equal(t, 101.0, s.Bar(1).Close)
	})

	t.Run("empty series rejected", func(t *testing.T) {
		_, err := NewSeries(nil)
		assert.Error(t, err)
	})

	t.Run("duplicate timestamp rejected", func(t *testing.T) {
		bars := []Bar{testBar(start, 100), testBar(start, 101)}
		_, err := NewSeries(bars)
		assert.ErrorContains(t, err, "duplicate timestamp")
	})

	t.Run("out of order rejected", func(t *testing.T) {
		bars := []Bar{testBar(start.Add(24*time.Hour), 100), testBar(start, 101)}
		_, err := NewSeries(bars)
		assert.ErrorContains(t, err, "out-of-order")
	})

	t.Run("malformed bar rejected", func(t *testing.T) {
		bad := testBar(start, 100)
		bad.High = bad.Low - 1
		_, err := NewSeries([]Bar{bad})
		assert.Error(t, err)
	})

	t.Run("immutable after construction", func(t *testing.T) {
		bars := []Bar{testBar(start, 100), testBar(start.Add(24*time.Hour), 101)}
		s, err := NewSeries(bars)
		require.NoError(t, err)

		bars[0].Close = 999
		assert.Equal(t, 100.0, s.Bar(0).Close)

		got := s.Bars()
		got[1].Close = 999
		assert.Equal(t, 101.0, s.Bar(1).Close)
	})
}

func TestBarValidate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*Bar)
	}{
		{"zero timestamp", func(b *Bar) { b.Timestamp = time.Time{} }},
		{"negative close", func(b *Bar) { b.Close = -1 }},
		{"zero open", func(b *Bar) { b.Open = 0 }},
		{"high below low", func(b *Bar) { b.High = b.Low - 1 }},
		{"open above high", func(b *Bar) { b.Open = b.High * 2 }},
		{"close below low", func(b *Bar) { b.Close = b.Low / 2 }},
		{"negative volume", func(b *Bar) { b.Volume = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := testBar(start, 100)
			tt.mutate(&bar)
			assert.Error(t, bar.Validate())
		})
	}
}
