package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/quantlab/stratbench/internal/config"
	"github.com/quantlab/stratbench/pkg/feed"
	"github.com/quantlab/stratbench/pkg/market"
)

// AlpacaProvider serves equity bars from the Alpaca market-data API.
type AlpacaProvider struct {
	client *marketdata.Client
}

// NewAlpacaProvider builds a provider from the given credentials.
func NewAlpacaProvider(cfg config.AlpacaConfig) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.BaseURL != "" {
		opts.BaseURL = cfg.BaseURL
	}
	return &AlpacaProvider{client: marketdata.NewClient(opts)}
}

func alpacaTimeFrame(timeframe string) (marketdata.TimeFrame, error) {
	switch timeframe {
	case "1m":
		return marketdata.OneMin, nil
	case "1h":
		return marketdata.OneHour, nil
	case "1d":
		return marketdata.OneDay, nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported alpaca timeframe: %q", timeframe)
	}
}

// Bars fetches bars for the symbol over the requested range.
func (p *AlpacaProvider) Bars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	tf, err := alpacaTimeFrame(timeframe)
	if err != nil {
		return nil, err
	}

	alpacaBars, err := p.client.GetBars(strings.ToUpper(symbol), marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars := make([]market.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, market.Bar{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: ab.Timestamp,
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    float64(ab.Volume),
		})
	}
	return bars, nil
}

// Verify that AlpacaProvider implements the feed.Provider interface
var _ feed.Provider = (*AlpacaProvider)(nil)
