// Package history implements the History Recorder: wall-clock bucketed
// sampling of Opportunity events, reduced per (symbol, bucket) by one of
// max/mean/latest, flushed in size- or time-bounded batches to a relational
// store, with an optional parallel CSV archival sidecar.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/cryptocj520/arbmon/internal/domain"
	"github.com/cryptocj520/arbmon/internal/queue"
)

// diffAnnualizationFactor mirrors the scroller's: an 8h signed funding-rate
// diff, expressed as a fraction, annualized as a percentage via 1095 * 100
// (365 days of three 8h periods per year, times 100 for percent).
const diffAnnualizationFactor = 1095 * 100

// Repo is the write side the History Recorder depends on; satisfied by
// internal/persistence/postgres.HistoryRepo.
type Repo interface {
	InsertBatch(ctx context.Context, records []domain.SampledRecord) error
}

type bucketKey struct {
	symbol      string
	bucketStart time.Time
}

type accumulator struct {
	strategy domain.SampleReducer
	count    int

	best domain.SampledRecord // max strategy: row with largest spread_pct seen so far
	last domain.SampledRecord // latest strategy, and categorical source for mean

	sumPriceBuy      decimal.Decimal
	sumPriceSell     decimal.Decimal
	sumSizeBuy       decimal.Decimal
	sumSizeSell      decimal.Decimal
	sumSpreadPct     float64
	sumFundingDiff   decimal.Decimal
	sumFundingAnnual float64
}

func (a *accumulator) accumulate(rec domain.SampledRecord) {
	a.count++
	a.last = rec
	if a.count == 1 || rec.SpreadPct > a.best.SpreadPct {
		a.best = rec
	}
	a.sumPriceBuy = a.sumPriceBuy.Add(rec.PriceBuy)
	a.sumPriceSell = a.sumPriceSell.Add(rec.PriceSell)
	a.sumSizeBuy = a.sumSizeBuy.Add(rec.SizeBuy)
	a.sumSizeSell = a.sumSizeSell.Add(rec.SizeSell)
	a.sumSpreadPct += rec.SpreadPct
	a.sumFundingDiff = a.sumFundingDiff.Add(rec.FundingRateDiff8h)
	a.sumFundingAnnual += rec.FundingRateDiffAnnual
}

func (a *accumulator) finalize() domain.SampledRecord {
	switch a.strategy {
	case domain.ReduceMean:
		n := decimal.NewFromInt(int64(a.count))
		rec := a.last // categorical fields (symbol, venues, bucket) from the last entry
		rec.PriceBuy = a.sumPriceBuy.Div(n)
		rec.PriceSell = a.sumPriceSell.Div(n)
		rec.SizeBuy = a.sumSizeBuy.Div(n)
		rec.SizeSell = a.sumSizeSell.Div(n)
		rec.SpreadPct = a.sumSpreadPct / float64(a.count)
		rec.FundingRateDiff8h = a.sumFundingDiff.Div(n)
		rec.FundingRateDiffAnnual = a.sumFundingAnnual / float64(a.count)
		rec.SampleCount = a.count
		return rec
	case domain.ReduceLatest:
		rec := a.last
		rec.SampleCount = a.count
		return rec
	default: // ReduceMax
		rec := a.best
		rec.SampleCount = a.count
		return rec
	}
}

// Recorder owns the per-(symbol,bucket) accumulators, the write-intent
// queue, and the batching/flush loop.
type Recorder struct {
	mu           sync.Mutex
	accumulators map[bucketKey]*accumulator

	interval time.Duration
	strategy domain.SampleReducer

	writeQueue *queue.Queue[domain.SampledRecord]

	batchSize    int
	batchTimeout time.Duration

	repo   Repo
	csv    *CSVSink // optional

	recordsDropped int64
	recordsWritten int64
	writeFailures  int64
}

// Config configures interval/strategy/batch/queue knobs, mirroring
// spread_history_* in the configuration surface.
type Config struct {
	IntervalSeconds     int
	Strategy            string
	BatchSize           int
	BatchTimeoutSeconds int
	QueueMaxSize        int
}

// New builds a Recorder. repo may be nil (no-op persistence, e.g. when
// database.enabled is false); csv may be nil (sidecar disabled).
func New(cfg Config, repo Repo, csv *CSVSink) *Recorder {
	if cfg.IntervalSeconds <= 0 {
		cfg.IntervalSeconds = 60
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "max"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeoutSeconds <= 0 {
		cfg.BatchTimeoutSeconds = 10
	}
	if cfg.QueueMaxSize <= 0 {
		cfg.QueueMaxSize = 500
	}
	return &Recorder{
		accumulators: make(map[bucketKey]*accumulator),
		interval:     time.Duration(cfg.IntervalSeconds) * time.Second,
		strategy:     domain.SampleReducer(cfg.Strategy),
		writeQueue:   queue.New[domain.SampledRecord](cfg.QueueMaxSize),
		batchSize:    cfg.BatchSize,
		batchTimeout: time.Duration(cfg.BatchTimeoutSeconds) * time.Second,
		repo:         repo,
		csv:          csv,
	}
}

func (r *Recorder) bucketStart(now time.Time) time.Time {
	return now.Truncate(r.interval)
}

func toSampledRecord(o domain.Opportunity, bucketStart time.Time) domain.SampledRecord {
	annual, _ := o.FundingDiff.Mul(decimal.NewFromInt(diffAnnualizationFactor)).Float64()
	return domain.SampledRecord{
		BucketStart:           bucketStart,
		Symbol:                o.Key.Symbol,
		VenueBuy:              o.Key.VenueBuy,
		VenueSell:             o.Key.VenueSell,
		PriceBuy:              o.PriceBuy,
		PriceSell:             o.PriceSell,
		SizeBuy:               o.SizeBuy,
		SizeSell:              o.SizeSell,
		SpreadPct:             o.SpreadPct,
		FundingRateDiff8h:     o.FundingDiff,
		FundingRateDiffAnnual: annual,
		SampleCount:           1,
	}
}

// RecordOpportunity feeds one Opportunity event into its (symbol, bucket)
// accumulator.
func (r *Recorder) RecordOpportunity(o domain.Opportunity, now time.Time) {
	bucket := r.bucketStart(now)
	key := bucketKey{symbol: o.Key.Symbol, bucketStart: bucket}
	rec := toSampledRecord(o, bucket)

	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accumulators[key]
	if !ok {
		acc = &accumulator{strategy: r.strategy}
		r.accumulators[key] = acc
	}
	acc.accumulate(rec)
}

// FlushCompletedBuckets emits every accumulator whose bucket is strictly
// less than the current bucket, enqueuing each finalized row onto the
// write-intent queue. The orchestrator calls it once a second from its
// analysis loop and once more on Stop, so a bucket is emitted by the first
// call after the bucket ends.
func (r *Recorder) FlushCompletedBuckets(now time.Time) {
	currentBucket := r.bucketStart(now)

	r.mu.Lock()
	var finalized []domain.SampledRecord
	for key, acc := range r.accumulators {
		if key.bucketStart.Before(currentBucket) {
			finalized = append(finalized, acc.finalize())
			delete(r.accumulators, key)
		}
	}
	r.mu.Unlock()

	for _, rec := range finalized {
		// The incoming record is the one discarded on overflow: rows already
		// queued carry reductions the reducer has integrated, so they are
		// worth more than the record that failed to fit.
		if !r.writeQueue.TryEnqueue(rec) {
			r.mu.Lock()
			r.recordsDropped++
			r.mu.Unlock()
			log.Warn().Str("symbol", rec.Symbol).Time("bucket", rec.BucketStart).Msg("history write-intent queue full, record dropped")
		}
	}
}

// RunWriter drives the batching/flush loop: batches are written when either
// batchSize records accumulate or batchTimeout elapses since the batch was
// first opened. Runs until stop is closed, then performs a final flush of
// any pending batch (the durable-shutdown requirement).
func (r *Recorder) RunWriter(ctx context.Context, stop <-chan struct{}) {
	var batch []domain.SampledRecord
	var batchOpenedAt time.Time
	batchID := uuid.Nil

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if r.repo != nil {
			if err := r.repo.InsertBatch(ctx, batch); err != nil {
				r.mu.Lock()
				r.writeFailures++
				r.mu.Unlock()
				log.Error().Err(err).Str("batch_id", batchID.String()).Int("size", len(batch)).Msg("history batch write failed, retaining for next flush")
				return // retained: caller keeps batch for the next tick per the retry-on-failure contract
			}
		}
		if r.csv != nil {
			if err := r.csv.AppendBatch(batch); err != nil {
				log.Error().Err(err).Msg("csv archival sidecar write failed")
			}
		}
		r.mu.Lock()
		r.recordsWritten += int64(len(batch))
		r.mu.Unlock()
		batch = nil
	}

	// drain moves everything still sitting on the write-intent queue into the
	// open batch, so a shutdown flush covers queued records, not just the
	// batch that happened to be open.
	drain := func() {
		for {
			rec, ok := r.writeQueue.Dequeue()
			if !ok {
				return
			}
			if len(batch) == 0 {
				batchOpenedAt = time.Now()
				batchID = uuid.New()
			}
			batch = append(batch, rec)
		}
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			drain()
			flush()
			return
		case <-ctx.Done():
			drain()
			flush()
			return
		case <-ticker.C:
			for {
				rec, ok := r.writeQueue.Dequeue()
				if !ok {
					break
				}
				if len(batch) == 0 {
					batchOpenedAt = time.Now()
					batchID = uuid.New()
				}
				batch = append(batch, rec)
				if len(batch) >= r.batchSize {
					flush()
				}
			}
			if len(batch) > 0 && time.Since(batchOpenedAt) >= r.batchTimeout {
				flush()
			}
		}
	}
}

// Stats reports the recorder's cumulative write/drop/failure counters.
type Stats struct {
	RecordsWritten int64
	RecordsDropped int64
	WriteFailures  int64
}

func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		RecordsWritten: r.recordsWritten,
		RecordsDropped: r.recordsDropped,
		WriteFailures:  r.writeFailures,
	}
}
