package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/quantlab/stratbench/pkg/feed"
	"github.com/quantlab/stratbench/pkg/market"
)

// CSVProvider reads bars from local files named <SYMBOL>_<timeframe>.csv
// under Dir, with a timestamp,open,high,low,close,volume header row.
// Timestamps are RFC 3339 or unix seconds.
type CSVProvider struct {
	Dir string
}

// NewCSVProvider creates a provider rooted at dir.
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{Dir: dir}
}

// Bars reads the file for the symbol and filters to the requested range.
func (p *CSVProvider) Bars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	path := filepath.Join(p.Dir, fmt.Sprintf("%s_%s.csv", strings.ToUpper(symbol), timeframe))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty csv file %s", path)
	}

	// Tolerate a missing header when the first field parses as a time.
	rows := records
	if _, err := parseCSVTime(records[0][0]); err != nil {
		rows = records[1:]
	}

	bars := make([]market.Bar, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("%s row %d: expected 6 columns, got %d", path, i+1, len(row))
		}

		ts, err := parseCSVTime(row[0])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
		if ts.Before(start) || ts.After(end) {
			continue
		}

		values := make([]float64, 5)
		for j := 1; j <= 5; j++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[j]), 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d column %d: %w", path, i+1, j, err)
			}
			values[j-1] = v
		}

		bars = append(bars, market.Bar{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: ts,
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}
	return bars, nil
}

func parseCSVTime(field string) (time.Time, error) {
	field = strings.TrimSpace(field)
	if ts, err := time.Parse(time.RFC3339, field); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(field, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", field)
}

// Verify that CSVProvider implements the feed.Provider interface
var _ feed.Provider = (*CSVProvider)(nil)
