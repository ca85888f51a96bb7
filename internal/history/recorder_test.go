package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptocj520/arbmon/internal/domain"
)

type fakeRepo struct {
	mu       sync.Mutex
	batches  [][]domain.SampledRecord
	failNext bool
}

func (f *fakeRepo) InsertBatch(ctx context.Context, records []domain.SampledRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return assertErr
	}
	cp := make([]domain.SampledRecord, len(records))
	copy(cp, records)
	f.batches = append(f.batches, cp)
	return nil
}

var assertErr = fakeErr("insert failed")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func oppFixture(symbol string, pct float64) domain.Opportunity {
	return domain.Opportunity{
		Key:       domain.OpportunityKey{Symbol: symbol, VenueBuy: "a", VenueSell: "b"},
		PriceBuy:  decimal.NewFromInt(100),
		PriceSell: decimal.NewFromInt(101),
		SizeBuy:   decimal.NewFromInt(1),
		SizeSell:  decimal.NewFromInt(1),
		SpreadPct: pct,
	}
}

func TestRecorder_MaxStrategyKeepsLargestSpread(t *testing.T) {
	r := New(Config{IntervalSeconds: 60, Strategy: "max"}, nil, nil)
	bucket := time.Unix(0, 0).UTC()

	r.RecordOpportunity(oppFixture("S", 0.3), bucket.Add(time.Second))
	r.RecordOpportunity(oppFixture("S", 0.9), bucket.Add(2*time.Second))
	r.RecordOpportunity(oppFixture("S", 0.5), bucket.Add(3*time.Second))

	r.FlushCompletedBuckets(bucket.Add(90 * time.Second))

	rec, ok := r.writeQueue.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 0.9, rec.SpreadPct)
	assert.Equal(t, 3, rec.SampleCount)
}

func TestRecorder_MeanStrategyAverages(t *testing.T) {
	r := New(Config{IntervalSeconds: 60, Strategy: "mean"}, nil, nil)
	bucket := time.Unix(0, 0).UTC()

	r.RecordOpportunity(oppFixture("S", 0.2), bucket.Add(time.Second))
	r.RecordOpportunity(oppFixture("S", 0.4), bucket.Add(2*time.Second))

	r.FlushCompletedBuckets(bucket.Add(90 * time.Second))

	rec, ok := r.writeQueue.Dequeue()
	require.True(t, ok)
	assert.InDelta(t, 0.3, rec.SpreadPct, 1e-9)
}

func TestRecorder_LatestStrategyKeepsMostRecent(t *testing.T) {
	r := New(Config{IntervalSeconds: 60, Strategy: "latest"}, nil, nil)
	bucket := time.Unix(0, 0).UTC()

	r.RecordOpportunity(oppFixture("S", 0.2), bucket.Add(time.Second))
	r.RecordOpportunity(oppFixture("S", 0.9), bucket.Add(2*time.Second))

	r.FlushCompletedBuckets(bucket.Add(90 * time.Second))

	rec, ok := r.writeQueue.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 0.9, rec.SpreadPct)
}

func TestRecorder_FlushOnlyEmitsCompletedBuckets(t *testing.T) {
	r := New(Config{IntervalSeconds: 60, Strategy: "max"}, nil, nil)
	bucket := time.Unix(0, 0).UTC()
	r.RecordOpportunity(oppFixture("S", 0.5), bucket.Add(time.Second))

	r.FlushCompletedBuckets(bucket.Add(10 * time.Second)) // still in same bucket
	assert.Equal(t, 0, r.writeQueue.Len())

	r.FlushCompletedBuckets(bucket.Add(90 * time.Second)) // now completed
	assert.Equal(t, 1, r.writeQueue.Len())
}

func TestRecorder_RunWriter_FlushesOnBatchSize(t *testing.T) {
	repo := &fakeRepo{}
	r := New(Config{IntervalSeconds: 60, Strategy: "max", BatchSize: 2, BatchTimeoutSeconds: 60, QueueMaxSize: 10}, repo, nil)
	bucket := time.Unix(0, 0).UTC()
	r.RecordOpportunity(oppFixture("S1", 0.5), bucket.Add(time.Second))
	r.RecordOpportunity(oppFixture("S2", 0.5), bucket.Add(time.Second))
	r.FlushCompletedBuckets(bucket.Add(90 * time.Second))

	stop := make(chan struct{})
	go func() {
		time.Sleep(250 * time.Millisecond)
		close(stop)
	}()
	r.RunWriter(context.Background(), stop)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.NotEmpty(t, repo.batches)
	assert.Equal(t, 2, len(repo.batches[0]))
}

func TestRecorder_RunWriter_RetainsBatchOnWriteFailure(t *testing.T) {
	repo := &fakeRepo{failNext: true}
	r := New(Config{IntervalSeconds: 60, Strategy: "max", BatchSize: 1, BatchTimeoutSeconds: 60, QueueMaxSize: 10}, repo, nil)
	bucket := time.Unix(0, 0).UTC()
	r.RecordOpportunity(oppFixture("S1", 0.5), bucket.Add(time.Second))
	r.FlushCompletedBuckets(bucket.Add(90 * time.Second))

	stop := make(chan struct{})
	go func() {
		time.Sleep(250 * time.Millisecond)
		close(stop)
	}()
	r.RunWriter(context.Background(), stop)

	// The first write fails and the batch is retained, not dropped; the
	// shutdown flush retries the same batch and succeeds.
	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.batches, 1)
	assert.Equal(t, "S1", repo.batches[0][0].Symbol)
	assert.Equal(t, int64(1), r.Stats().WriteFailures)
	assert.Equal(t, int64(0), r.Stats().RecordsDropped)
}

func TestRecorder_FlushDropsNewestWhenQueueFull(t *testing.T) {
	r := New(Config{IntervalSeconds: 60, Strategy: "max", QueueMaxSize: 1}, nil, nil)
	bucket := time.Unix(0, 0).UTC()
	r.RecordOpportunity(oppFixture("S1", 0.5), bucket.Add(time.Second))
	r.RecordOpportunity(oppFixture("S2", 0.7), bucket.Add(2*time.Second))

	r.FlushCompletedBuckets(bucket.Add(90 * time.Second))

	assert.Equal(t, 1, r.writeQueue.Len())
	assert.Equal(t, int64(1), r.Stats().RecordsDropped)
}
