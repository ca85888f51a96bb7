package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cryptocj520/arbmon/internal/domain"
)

// HistoryRepo implements internal/history.Repo against the
// spread_history_sampled table.
type HistoryRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewHistoryRepo creates a new PostgreSQL sampled-history repository.
func NewHistoryRepo(db *sqlx.DB, timeout time.Duration) *HistoryRepo {
	return &HistoryRepo{db: db, timeout: timeout}
}

// InsertBatch writes a batch of sampled records atomically, retried by the
// caller (internal/history.Recorder) on failure with the same batch.
func (r *HistoryRepo) InsertBatch(ctx context.Context, records []domain.SampledRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(records)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO spread_history_sampled
			(timestamp, symbol, exchange_buy, exchange_sell, price_buy, price_sell,
			 size_buy, size_sell, spread_pct, funding_rate_diff, funding_rate_diff_annual, sample_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err = stmt.ExecContext(ctx,
			rec.BucketStart, rec.Symbol, rec.VenueBuy, rec.VenueSell,
			rec.PriceBuy, rec.PriceSell, rec.SizeBuy, rec.SizeSell,
			rec.SpreadPct, rec.FundingRateDiff8h, rec.FundingRateDiffAnnual, rec.SampleCount)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				return fmt.Errorf("duplicate sampled record: %w", err)
			}
			return fmt.Errorf("failed to insert sampled record in batch: %w", err)
		}
	}

	return tx.Commit()
}

// ListBySymbol retrieves sampled records for a symbol within a time range,
// most recent first.
func (r *HistoryRepo) ListBySymbol(ctx context.Context, symbol string, from, to time.Time, limit int) ([]domain.SampledRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT timestamp, symbol, exchange_buy, exchange_sell, price_buy, price_sell,
		       size_buy, size_sell, spread_pct, funding_rate_diff, funding_rate_diff_annual, sample_count
		FROM spread_history_sampled
		WHERE symbol = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp DESC
		LIMIT $4`

	rows, err := r.db.QueryxContext(ctx, query, symbol, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sampled history by symbol: %w", err)
	}
	defer rows.Close()

	return r.scanRecords(rows)
}

// Latest returns the most recently written sampled records across all
// symbols, newest first.
func (r *HistoryRepo) Latest(ctx context.Context, limit int) ([]domain.SampledRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT timestamp, symbol, exchange_buy, exchange_sell, price_buy, price_sell,
		       size_buy, size_sell, spread_pct, funding_rate_diff, funding_rate_diff_annual, sample_count
		FROM spread_history_sampled
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest sampled history: %w", err)
	}
	defer rows.Close()

	return r.scanRecords(rows)
}

// Count returns the total number of sampled records within a time range.
func (r *HistoryRepo) Count(ctx context.Context, from, to time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT COUNT(*)
		FROM spread_history_sampled
		WHERE timestamp >= $1 AND timestamp <= $2`

	var count int64
	err := r.db.QueryRowxContext(ctx, query, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sampled history: %w", err)
	}

	return count, nil
}

func (r *HistoryRepo) scanRecords(rows *sqlx.Rows) ([]domain.SampledRecord, error) {
	var records []domain.SampledRecord

	for rows.Next() {
		var rec domain.SampledRecord
		if err := rows.Scan(
			&rec.BucketStart, &rec.Symbol, &rec.VenueBuy, &rec.VenueSell,
			&rec.PriceBuy, &rec.PriceSell, &rec.SizeBuy, &rec.SizeSell,
			&rec.SpreadPct, &rec.FundingRateDiff8h, &rec.FundingRateDiffAnnual, &rec.SampleCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sampled record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sampled history rows: %w", err)
	}

	return records, nil
}
