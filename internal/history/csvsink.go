package history

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cryptocj520/arbmon/internal/domain"
)

var csvHeader = []string{
	"timestamp", "symbol", "exchange_buy", "exchange_sell",
	"price_buy", "price_sell", "size_buy", "size_sell",
	"spread_pct", "funding_rate_diff", "funding_rate_diff_annual", "sample_count",
}

// CSVSink is the optional per-day CSV archival sidecar, opened lazily per
// day so an idle day never creates an empty file.
type CSVSink struct {
	mu  sync.Mutex
	dir string

	openDay string
	file    *os.File
	writer  *csv.Writer
}

// NewCSVSink builds a sidecar rooted at dir (created if absent).
func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating csv archive dir %s: %w", dir, err)
	}
	return &CSVSink{dir: dir}, nil
}

func (s *CSVSink) ensureOpen(day string) error {
	if s.openDay == day && s.file != nil {
		return nil
	}
	if s.file != nil {
		s.writer.Flush()
		s.file.Close()
	}

	path := filepath.Join(s.dir, day+".csv")
	_, statErr := os.Stat(path)
	needsHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening csv archive file %s: %w", path, err)
	}
	s.file = f
	s.writer = csv.NewWriter(f)
	s.openDay = day

	if needsHeader {
		if err := s.writer.Write(csvHeader); err != nil {
			return fmt.Errorf("writing csv header to %s: %w", path, err)
		}
	}
	return nil
}

// AppendBatch writes each record as one row, opening (or rotating to) the
// file for its bucket's calendar day as needed.
func (s *CSVSink) AppendBatch(records []domain.SampledRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		day := rec.BucketStart.UTC().Format("2006-01-02")
		if err := s.ensureOpen(day); err != nil {
			return err
		}
		row := []string{
			rec.BucketStart.UTC().Format(time.RFC3339),
			rec.Symbol,
			rec.VenueBuy,
			rec.VenueSell,
			rec.PriceBuy.String(),
			rec.PriceSell.String(),
			rec.SizeBuy.String(),
			rec.SizeSell.String(),
			fmt.Sprintf("%.8f", rec.SpreadPct),
			rec.FundingRateDiff8h.String(),
			fmt.Sprintf("%.8f", rec.FundingRateDiffAnnual),
			fmt.Sprintf("%d", rec.SampleCount),
		}
		if err := s.writer.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	s.writer.Flush()
	return s.writer.Error()
}

// Close flushes and closes the currently open file, if any.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	s.writer.Flush()
	err := s.file.Close()
	s.file = nil
	return err
}
