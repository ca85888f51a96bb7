package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptocj520/arbmon/internal/domain"
)

func opp(symbol, buy, sell string, pct float64) domain.Opportunity {
	return domain.Opportunity{
		Key:       domain.OpportunityKey{Symbol: symbol, VenueBuy: buy, VenueSell: sell},
		SpreadPct: pct,
	}
}

func TestEngine_NewOpportunityStartsDurationAtNow(t *testing.T) {
	e := New()
	now := time.Now()
	rows := e.Update([]domain.Opportunity{opp("BTC-USDC-PERP", "a", "b", 0.5)}, now)

	require.Len(t, rows, 1)
	assert.Equal(t, time.Duration(0), rows[0].UIDuration)
	assert.Equal(t, 1, rows[0].OccurrenceCount15m)
}

func TestEngine_ContinuationWithinToleranceAccumulatesDuration(t *testing.T) {
	e := New()
	t0 := time.Now()
	e.Update([]domain.Opportunity{opp("S", "a", "b", 0.5)}, t0)

	t1 := t0.Add(time.Second) // within 2s tolerance
	rows := e.Update([]domain.Opportunity{opp("S", "a", "b", 0.6)}, t1)

	require.Len(t, rows, 1)
	assert.Equal(t, time.Second, rows[0].UIDuration)
}

func TestEngine_GapBeyondToleranceResetsDuration(t *testing.T) {
	e := New()
	t0 := time.Now()
	e.Update([]domain.Opportunity{opp("S", "a", "b", 0.5)}, t0)

	gone := e.Update(nil, t0.Add(3*time.Second))
	require.Len(t, gone, 1)
	assert.True(t, gone[0].Disappeared)

	// reappears after the continuation tolerance window elapsed
	t2 := t0.Add(4 * time.Second)
	rows := e.Update([]domain.Opportunity{opp("S", "a", "b", 0.5)}, t2)
	require.Len(t, rows, 1)
	assert.Equal(t, time.Duration(0), rows[0].UIDuration)
}

func TestEngine_DisappearedHeldForFiveSeconds(t *testing.T) {
	e := New()
	t0 := time.Now()
	e.Update([]domain.Opportunity{opp("S", "a", "b", 0.5)}, t0)

	rows := e.Update(nil, t0.Add(1*time.Second))
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Disappeared)

	// disappearedAt == t0+1s; still within the 5s hold at t0+5s
	rows = e.Update(nil, t0.Add(5*time.Second))
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Disappeared)

	// elapsed since disappearedAt is now exactly 5s: purged
	rows = e.Update(nil, t0.Add(6*time.Second))
	assert.Empty(t, rows)
}

func TestEngine_ReappearanceRemovesFromDisappeared(t *testing.T) {
	e := New()
	t0 := time.Now()
	e.Update([]domain.Opportunity{opp("S", "a", "b", 0.5)}, t0)
	e.Update(nil, t0.Add(time.Second))

	rows := e.Update([]domain.Opportunity{opp("S", "a", "b", 0.5)}, t0.Add(2*time.Second))
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Disappeared)
}

func TestEngine_SameSymbolKeepsDisappearedEntryAlive(t *testing.T) {
	e := New()
	t0 := time.Now()
	e.Update([]domain.Opportunity{opp("S", "a", "b", 0.5)}, t0)
	e.Update(nil, t0.Add(time.Second)) // a/b disappears

	// a different key on the same symbol appears at t0+4s, within the 5s hold
	rows := e.Update([]domain.Opportunity{opp("S", "c", "d", 0.3)}, t0.Add(4*time.Second))
	require.Len(t, rows, 2)

	// at t0+8.5s (4.5s after the reset), the a/b entry should still be alive
	rows = e.Update([]domain.Opportunity{opp("S", "c", "d", 0.3)}, t0.Add(8500*time.Millisecond))
	var sawDisappeared bool
	for _, r := range rows {
		if r.Disappeared {
			sawDisappeared = true
		}
	}
	assert.True(t, sawDisappeared)
}

func TestEngine_OccurrenceDedupWithinOneSecond(t *testing.T) {
	e := New()
	t0 := time.Now()
	e.Update([]domain.Opportunity{opp("S", "a", "b", 0.5)}, t0)
	e.Update(nil, t0.Add(500*time.Millisecond))
	rows := e.Update([]domain.Opportunity{opp("S", "a", "b", 0.5)}, t0.Add(800*time.Millisecond))

	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].OccurrenceCount15m)
}

func TestEngine_OccurrencePrunedAfter15Minutes(t *testing.T) {
	e := New()
	t0 := time.Now()
	e.Update([]domain.Opportunity{opp("S", "a", "b", 0.5)}, t0)

	rows := e.Update([]domain.Opportunity{opp("S", "a", "b", 0.5)}, t0.Add(16*time.Minute))
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].OccurrenceCount15m)
}

func TestEngine_RowsSortedDescendingBySpreadPct(t *testing.T) {
	e := New()
	now := time.Now()
	rows := e.Update([]domain.Opportunity{
		opp("A", "x", "y", 0.2),
		opp("B", "x", "y", 0.9),
	}, now)
	require.Len(t, rows, 2)
	assert.Equal(t, 0.9, rows[0].Opportunity.SpreadPct)
}

func TestBestSpreadPct_MaxOverSymbolOrZero(t *testing.T) {
	spreads := []domain.Spread{
		{Symbol: "S", VenueBuy: "a", VenueSell: "b", SpreadPct: 0.4},
		{Symbol: "S", VenueBuy: "c", VenueSell: "d", SpreadPct: 0.9},
	}
	assert.Equal(t, 0.9, BestSpreadPct("S", spreads))
	assert.Equal(t, 0.0, BestSpreadPct("OTHER", spreads))
}

func TestBestSpreadPct_CountsSpreadsBelowOpportunityThreshold(t *testing.T) {
	// The per-symbol column reads emitted spreads: any positive percentage
	// counts, including ones the Opportunity Finder's threshold filters out.
	spreads := []domain.Spread{{Symbol: "S", VenueBuy: "a", VenueSell: "b", SpreadPct: 0.05}}
	assert.Equal(t, 0.05, BestSpreadPct("S", spreads))
}
