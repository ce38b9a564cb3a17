package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/quantlab/stratbench/internal/config"
	"github.com/quantlab/stratbench/pkg/feed"
	"github.com/quantlab/stratbench/pkg/logging"
	"github.com/quantlab/stratbench/pkg/market"
)

// binancePageLimit is the maximum klines per request allowed by the API.
const binancePageLimit = 1000

// BinanceProvider fetches klines from the public Binance REST API. Calls
// go through a client-side rate limiter and a circuit breaker; retryable
// responses back off exponentially with jitter.
type BinanceProvider struct {
	client     *http.Client
	baseURL    string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	logger     zerolog.Logger
}

// NewBinanceProvider builds a provider from the given configuration.
func NewBinanceProvider(cfg config.BinanceConfig) *BinanceProvider {
	settings := gobreaker.Settings{
		Name:     "binance",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &BinanceProvider{
		client:     &http.Client{Timeout: 15 * time.Second},
		baseURL:    cfg.BaseURL,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:    gobreaker.NewCircuitBreaker(settings),
		maxRetries: cfg.MaxRetries,
		logger:     logging.GetLogger("binance"),
	}
}

var binanceIntervals = map[string]string{
	"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
	"1h": "1h", "4h": "4h", "1d": "1d", "1w": "1w",
}

// Bars pages through /api/v3/klines until the requested range is covered.
func (p *BinanceProvider) Bars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Bar, error) {
	interval, ok := binanceIntervals[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported binance timeframe: %q", timeframe)
	}

	var bars []market.Bar
	cursor := start

	for cursor.Before(end) {
		page, err := p.fetchPage(ctx, symbol, interval, cursor, end)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		bars = append(bars, page...)

		last := page[len(page)-1].Timestamp
		if !last.After(cursor) {
			break
		}
		cursor = last.Add(time.Millisecond)

		if len(page) < binancePageLimit {
			break
		}
	}

	p.logger.Debug().
		Str("symbol", symbol).
		Str("interval", interval).
		Int("bars", len(bars)).
		Msg("Fetched klines")
	return bars, nil
}

func (p *BinanceProvider) fetchPage(ctx context.Context, symbol, interval string, start, end time.Time) ([]market.Bar, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", interval)
	query.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	query.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	query.Set("limit", strconv.Itoa(binancePageLimit))
	endpoint := p.baseURL + "/api/v3/klines?" + query.Encode()

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			backoff += time.Duration(rand.Int63n(int64(backoff / 2)))
			p.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("Retrying klines request")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := p.breaker.Execute(func() (any, error) {
			return p.doRequest(ctx, endpoint, symbol)
		})
		if err == nil {
			return result.([]market.Bar), nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("klines request failed after %d retries: %w", p.maxRetries, lastErr)
}

// retryableStatusError marks HTTP statuses worth retrying (408/429/5xx).
type retryableStatusError struct {
	status int
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("retryable status %d", e.status)
}

func isRetryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var statusErr *retryableStatusError
	return errors.As(err, &statusErr)
}

func (p *BinanceProvider) doRequest(ctx context.Context, endpoint, symbol string) ([]market.Bar, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return nil, &retryableStatusError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("klines request returned %d: %s", resp.StatusCode, body)
	}

	// Klines arrive as arrays: [openTime, open, high, low, close, volume, ...]
	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding klines: %w", err)
	}

	bars := make([]market.Bar, 0, len(raw))
	for _, kline := range raw {
		if len(kline) < 6 {
			return nil, fmt.Errorf("kline with %d fields", len(kline))
		}
		var openTime int64
		if err := json.Unmarshal(kline[0], &openTime); err != nil {
			return nil, fmt.Errorf("decoding kline open time: %w", err)
		}

		values := make([]float64, 5)
		for i := 1; i <= 5; i++ {
			var s string
			if err := json.Unmarshal(kline[i], &s); err != nil {
				return nil, fmt.Errorf("decoding kline field %d: %w", i, err)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing kline field %d: %w", i, err)
			}
			values[i-1] = v
		}

		bars = append(bars, market.Bar{
			Symbol:    symbol,
			Timestamp: time.UnixMilli(openTime).UTC(),
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}
	return bars, nil
}

// Verify that BinanceProvider implements the feed.Provider interface
var _ feed.Provider = (*BinanceProvider)(nil)
