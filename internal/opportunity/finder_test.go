package opportunity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptocj520/arbmon/internal/domain"
)

func decFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func spreadFixture(pct float64) domain.Spread {
	return domain.Spread{
		Symbol:    "BTC-USDC-PERP",
		VenueBuy:  "binance",
		VenueSell: "okx",
		SpreadPct: pct,
	}
}

func TestUpdate_CreatesNewOpportunityAndIncrementsFound(t *testing.T) {
	f := New(0.1)
	now := time.Now()

	out := f.Update([]domain.Spread{spreadFixture(0.5)}, nil, now)
	require.Len(t, out, 1)
	assert.Equal(t, now, out[0].FirstSeen)
	assert.Equal(t, now, out[0].LastSeen)
	assert.Equal(t, int64(1), f.Stats().OpportunitiesFound)
}

func TestUpdate_BelowThresholdNeverCreated(t *testing.T) {
	f := New(0.5)
	out := f.Update([]domain.Spread{spreadFixture(0.2)}, nil, time.Now())
	assert.Empty(t, out)
}

func TestUpdate_ExistingKeyUpdatesLastSeenKeepsFirstSeen(t *testing.T) {
	f := New(0.1)
	t1 := time.Now()
	f.Update([]domain.Spread{spreadFixture(0.5)}, nil, t1)

	t2 := t1.Add(time.Second)
	out := f.Update([]domain.Spread{spreadFixture(0.7)}, nil, t2)

	require.Len(t, out, 1)
	assert.Equal(t, t1, out[0].FirstSeen)
	assert.Equal(t, t2, out[0].LastSeen)
	assert.Equal(t, 0.7, out[0].SpreadPct)
	assert.Equal(t, int64(1), f.Stats().OpportunitiesFound) // not re-counted
}

func TestUpdate_DisappearingKeyExpiresImmediately(t *testing.T) {
	f := New(0.1)
	t1 := time.Now()
	f.Update([]domain.Spread{spreadFixture(0.5)}, nil, t1)

	out := f.Update(nil, nil, t1.Add(time.Second))
	assert.Empty(t, out)
	assert.Equal(t, int64(1), f.Stats().OpportunitiesExpired)
}

func TestUpdate_SortedDescendingBySpreadPct(t *testing.T) {
	f := New(0.0)
	spreads := []domain.Spread{
		{Symbol: "A", VenueBuy: "x", VenueSell: "y", SpreadPct: 0.3},
		{Symbol: "B", VenueBuy: "x", VenueSell: "y", SpreadPct: 0.9},
		{Symbol: "C", VenueBuy: "x", VenueSell: "y", SpreadPct: 0.1},
	}
	out := f.Update(spreads, nil, time.Now())
	require.Len(t, out, 3)
	assert.Equal(t, 0.9, out[0].SpreadPct)
	assert.Equal(t, 0.3, out[1].SpreadPct)
	assert.Equal(t, 0.1, out[2].SpreadPct)
}

func TestUpdate_ReplayProducesIdenticalFinalState(t *testing.T) {
	events := []struct {
		spreads []domain.Spread
		ts      time.Time
	}{
		{[]domain.Spread{spreadFixture(0.5)}, time.Now()},
		{[]domain.Spread{spreadFixture(0.6)}, time.Now().Add(time.Second)},
		{nil, time.Now().Add(2 * time.Second)},
	}

	f1 := New(0.1)
	f2 := New(0.1)
	var last1, last2 []domain.Opportunity
	for _, e := range events {
		last1 = f1.Update(e.spreads, nil, e.ts)
	}
	for _, e := range events {
		last2 = f2.Update(e.spreads, nil, e.ts)
	}
	assert.Equal(t, last1, last2)
	assert.Equal(t, f1.Stats(), f2.Stats())
}

func TestCurrent_ReflectsLastUpdateWithoutMutating(t *testing.T) {
	f := New(0.1)
	f.Update([]domain.Spread{spreadFixture(0.5)}, nil, time.Now())

	first := f.Current()
	require.Len(t, first, 1)

	second := f.Current()
	require.Len(t, second, 1)
	assert.Equal(t, first, second)
}

func TestUpdate_FundingDiffIsSellMinusBuy(t *testing.T) {
	f := New(0.0)
	tickers := map[string]map[string]domain.Ticker{
		"binance": {"BTC-USDC-PERP": {FundingRate: decFromFloat(0.001)}},
		"okx":     {"BTC-USDC-PERP": {FundingRate: decFromFloat(0.004)}},
	}
	out := f.Update([]domain.Spread{spreadFixture(0.5)}, tickers, time.Now())
	require.Len(t, out, 1)
	diff, _ := out[0].FundingDiff.Float64()
	assert.InDelta(t, 0.003, diff, 1e-9)
}
