package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParquetArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	archive := NewParquetArchive(t.TempDir())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	bars := cacheBars(5)
	require.NoError(t, archive.Write(ctx, "TEST", "1d", bars))

	got, err := archive.Bars(ctx, "test", "1d", start, start.Add(240*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, bars[0].Timestamp, got[0].Timestamp)
	assert.Equal(t, bars[4].Close, got[4].Close)
}

func TestParquetArchiveMergeDedupes(t *testing.T) {
	ctx := context.Background()
	archive := NewParquetArchive(t.TempDir())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, archive.Write(ctx, "TEST", "1d", cacheBars(3)))

	// Rewrite the second bar with a new close and append a fourth.
	updated := cacheBars(4)
	updated[1].Close = 999
	require.NoError(t, archive.Write(ctx, "TEST", "1d", updated[1:]))

	got, err := archive.Bars(ctx, "TEST", "1d", start, start.Add(240*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 4, "merge must not duplicate timestamps")
	assert.Equal(t, 999.0, got[1].Close, "newer write wins")

	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Timestamp.After(got[i-1].Timestamp), "archive stays sorted")
	}
}

func TestParquetArchiveRangeFilter(t *testing.T) {
	ctx := context.Background()
	archive := NewParquetArchive(t.TempDir())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, archive.Write(ctx, "TEST", "1d", cacheBars(10)))

	got, err := archive.Bars(ctx, "TEST", "1d", start.Add(48*time.Hour), start.Add(96*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestParquetArchiveMissingFile(t *testing.T) {
	archive := NewParquetArchive(t.TempDir())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := archive.Bars(context.Background(), "NONE", "1d", start, start.Add(time.Hour))
	assert.ErrorContains(t, err, "no archive")
}
