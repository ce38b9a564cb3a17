package data

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/quantlab/stratbench/pkg/feed"
	"github.com/quantlab/stratbench/pkg/market"
)

// ParquetArchive stores bars as one Parquet file per symbol/timeframe
// under Dir, laid out as <dir>/<SYMBOL>/<timeframe>.parquet. Writes merge
// with the existing file and dedupe on timestamp, so appends are
// idempotent.
type ParquetArchive struct {
	Dir string
}

// NewParquetArchive creates an archive rooted at dir.
func NewParquetArchive(dir string) *ParquetArchive {
	return &ParquetArchive{Dir: dir}
}

// parquetBar is the on-disk record layout. Timestamps are unix
// milliseconds so the files stay portable across readers.
type parquetBar struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

func (a *ParquetArchive) path(symbol, timeframe string) string {
	return filepath.Join(a.Dir, strings.ToUpper(symbol), timeframe+".parquet")
}

// Bars reads the archive file and filters to the requested range.
func (a *ParquetArchive) Bars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	path := a.path(symbol, timeframe)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no archive for %s %s at %s", symbol, timeframe, path)
	}
	records, err := parquet.ReadFile[parquetBar](path)
	if err != nil {
		return nil, fmt.Errorf("reading archive %s: %w", path, err)
	}

	bars := make([]market.Bar, 0, len(records))
	for _, rec := range records {
		ts := time.UnixMilli(rec.Timestamp).UTC()
		if ts.Before(start) || ts.After(end) {
			continue
		}
		bars = append(bars, market.Bar{
			Symbol:    rec.Symbol,
			Timestamp: ts,
			Open:      rec.Open,
			High:      rec.High,
			Low:       rec.Low,
			Close:     rec.Close,
			Volume:    rec.Volume,
		})
	}
	return bars, nil
}

// Write merges the given bars into the archive file for the symbol and
// timeframe. Bars with an already-archived timestamp replace the old row.
func (a *ParquetArchive) Write(ctx context.Context, symbol, timeframe string, bars []market.Bar) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(bars) == 0 {
		return nil
	}

	path := a.path(symbol, timeframe)
	merged := make(map[int64]parquetBar)

	if _, err := os.Stat(path); err == nil {
		existing, err := parquet.ReadFile[parquetBar](path)
		if err != nil {
			return fmt.Errorf("reading archive %s: %w", path, err)
		}
		for _, rec := range existing {
			merged[rec.Timestamp] = rec
		}
	}

	for _, bar := range bars {
		ts := bar.Timestamp.UnixMilli()
		merged[ts] = parquetBar{
			Symbol:    strings.ToUpper(bar.Symbol),
			Timestamp: ts,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    bar.Volume,
		}
	}

	records := make([]parquetBar, 0, len(merged))
	for _, rec := range merged {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("writing archive %s: %w", path, err)
	}
	return nil
}

// Verify that ParquetArchive implements the feed.Provider interface
var _ feed.Provider = (*ParquetArchive)(nil)
