package data

import (
	"context"
	"time"

	"github.com/quantlab/stratbench/internal/telemetry"
	"github.com/quantlab/stratbench/pkg/feed"
	"github.com/quantlab/stratbench/pkg/market"
)

// InstrumentedProvider counts failed fetches per source so provider
// outages show up on /metrics.
type InstrumentedProvider struct {
	inner   feed.Provider
	source  string
	metrics *telemetry.Metrics
}

// NewInstrumentedProvider wraps inner, labeling errors with source.
func NewInstrumentedProvider(inner feed.Provider, source string, metrics *telemetry.Metrics) *InstrumentedProvider {
	return &InstrumentedProvider{inner: inner, source: source, metrics: metrics}
}

func (p *InstrumentedProvider) Bars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Bar, error) {
	bars, err := p.inner.Bars(ctx, symbol, timeframe, start, end)
	if err != nil {
		p.metrics.ProviderErrors.WithLabelValues(p.source).Inc()
	}
	return bars, err
}

// Verify that InstrumentedProvider implements the feed.Provider interface
var _ feed.Provider = (*InstrumentedProvider)(nil)
