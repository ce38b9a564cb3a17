package market

import (
	"fmt"
	"time"
)

// Series is an ordered, validated sequence of bars. Bars are copied on
// construction and never mutated afterwards, so a Series can be shared
// across concurrent backtest runs without coordination.
type Series struct {
	bars []Bar
}

// NewSeries validates and copies the given bars into an immutable series.
// Bars must be strictly ordered by increasing timestamp with no duplicates.
func NewSeries(bars []Bar) (*Series, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("series requires at least one bar")
	}

	copied := make([]Bar, len(bars))
	copy(copied, bars)

	var prev time.Time
	for i, bar := range copied {
		if err := bar.Validate(); err != nil {
			return nil, fmt.Errorf("invalid bar at index %d: %w", i, err)
		}
		if i > 0 {
			if bar.Timestamp.Equal(prev) {
				return nil, fmt.Errorf("duplicate timestamp %s at index %d", bar.Timestamp.Format(time.RFC3339), i)
			}
			if bar.Timestamp.Before(prev) {
				return nil, fmt.Errorf("out-of-order timestamp %s at index %d", bar.Timestamp.Format(time.RFC3339), i)
			}
		}
		prev = bar.Timestamp
	}

	return &Series{bars: copied}, nil
}

// Len returns the number of bars in the series.
func (s *Series) Len() int {
	return len(s.bars)
}

// Bar returns the bar at index i.
func (s *Series) Bar(i int) Bar {
	return s.bars[i]
}

// Closes returns a copy of the close prices, aligned by index.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}

// Highs returns a copy of the high prices, aligned by index.
func (s *Series) Highs() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.High
	}
	return out
}

// Lows returns a copy of the low prices, aligned by index.
func (s *Series) Lows() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Low
	}
	return out
}

// Volumes returns a copy of the volumes, aligned by index.
func (s *Series) Volumes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Volume
	}
	return out
}

// Bars returns a copy of all bars in the series.
func (s *Series) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}
