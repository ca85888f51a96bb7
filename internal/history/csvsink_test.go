package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptocj520/arbmon/internal/domain"
)

func TestCSVSink_AppendBatch_CreatesFileWithHeader(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCSVSink(dir)
	require.NoError(t, err)

	bucket := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	err = sink.AppendBatch([]domain.SampledRecord{{
		BucketStart: bucket,
		Symbol:      "BTC-USDC-PERP",
		VenueBuy:    "a",
		VenueSell:   "b",
		PriceBuy:    decimal.NewFromInt(100),
		PriceSell:   decimal.NewFromInt(101),
		SpreadPct:   0.5,
		SampleCount: 3,
	}})
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	path := filepath.Join(dir, "2026-01-15.csv")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "timestamp,symbol,exchange_buy")
	assert.Contains(t, string(data), "BTC-USDC-PERP")
}

func TestCSVSink_AppendBatch_AppendsWithoutDuplicatingHeader(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCSVSink(dir)
	require.NoError(t, err)

	bucket := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	rec := domain.SampledRecord{BucketStart: bucket, Symbol: "S", PriceBuy: decimal.Zero, PriceSell: decimal.Zero, SizeBuy: decimal.Zero, SizeSell: decimal.Zero, FundingRateDiff8h: decimal.Zero}

	require.NoError(t, sink.AppendBatch([]domain.SampledRecord{rec}))
	require.NoError(t, sink.AppendBatch([]domain.SampledRecord{rec}))
	require.NoError(t, sink.Close())

	path := filepath.Join(dir, "2026-01-15.csv")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	assert.Equal(t, 3, lines) // header + 2 rows
}
