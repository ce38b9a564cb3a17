// Package feed defines the market-data provider contract and turns raw
// provider output into a validated series.
package feed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/quantlab/stratbench/pkg/market"
)

// Provider supplies historical OHLCV bars for a symbol and timeframe.
// Implementations live in internal/data; the core never performs I/O.
type Provider interface {
	Bars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Bar, error)
}

// Load fetches bars from the provider and normalizes them into a series:
// sorted by timestamp, duplicates collapsed (last observation wins), then
// validated by market.NewSeries.
func Load(ctx context.Context, p Provider, symbol, timeframe string, start, end time.Time) (*market.Series, error) {
	bars, err := p.Bars(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetching bars for %s %s: %w", symbol, timeframe, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars available for %s %s between %s and %s",
			symbol, timeframe, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})

	deduped := bars[:0]
	for _, bar := range bars {
		if len(deduped) > 0 && deduped[len(deduped)-1].Timestamp.Equal(bar.Timestamp) {
			deduped[len(deduped)-1] = bar
			continue
		}
		deduped = append(deduped, bar)
	}

	series, err := market.NewSeries(deduped)
	if err != nil {
		return nil, fmt.Errorf("building series for %s %s: %w", symbol, timeframe, err)
	}
	return series, nil
}
