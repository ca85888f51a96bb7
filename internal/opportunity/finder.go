// Package opportunity implements the Opportunity Finder: a stateful,
// per-key-tracked view over the Spread Calculator's instantaneous output.
package opportunity

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptocj520/arbmon/internal/domain"
)

// Finder tracks domain.Opportunity by domain.OpportunityKey across ticks. It
// never raises: failure semantics are "none", this component is pure over
// its inputs save for the internal map it owns.
type Finder struct {
	mu            sync.Mutex
	opportunities map[domain.OpportunityKey]domain.Opportunity

	minSpreadPct float64

	found   int64
	expired int64
}

// New builds a Finder with the given minimum spread-pct creation threshold.
func New(minSpreadPct float64) *Finder {
	return &Finder{
		opportunities: make(map[domain.OpportunityKey]domain.Opportunity),
		minSpreadPct:  minSpreadPct,
	}
}

// venueFunding looks up a venue's latest funding rate for symbol, zero if
// absent: funding attachment is best-effort, not every venue ticker carries it.
func venueFunding(tickers map[string]map[string]domain.Ticker, venue, symbol string) decimal.Decimal {
	bySymbol, ok := tickers[venue]
	if !ok {
		return decimal.Zero
	}
	t, ok := bySymbol[symbol]
	if !ok {
		return decimal.Zero
	}
	return t.FundingRate
}

// Update applies one analysis tick: filters spreads below the minimum
// threshold, creates/updates/expires tracked opportunities, and returns the
// current list sorted descending by spread_pct. tickers is keyed by
// venue -> symbol -> Ticker, mirroring the State Store's own shape.
func (f *Finder) Update(spreads []domain.Spread, tickers map[string]map[string]domain.Ticker, now time.Time) []domain.Opportunity {
	f.mu.Lock()
	defer f.mu.Unlock()

	currentKeys := make(map[domain.OpportunityKey]struct{}, len(spreads))

	for _, s := range spreads {
		if s.SpreadPct < f.minSpreadPct {
			continue
		}
		key := domain.OpportunityKey{Symbol: s.Symbol, VenueBuy: s.VenueBuy, VenueSell: s.VenueSell}
		currentKeys[key] = struct{}{}

		fundingBuy := venueFunding(tickers, s.VenueBuy, s.Symbol)
		fundingSell := venueFunding(tickers, s.VenueSell, s.Symbol)
		fundingDiff := fundingSell.Sub(fundingBuy)

		existing, ok := f.opportunities[key]
		if !ok {
			f.found++
			existing = domain.Opportunity{Key: key, FirstSeen: now}
		}
		existing.PriceBuy = s.PriceBuy
		existing.PriceSell = s.PriceSell
		existing.SizeBuy = s.SizeBuy
		existing.SizeSell = s.SizeSell
		existing.SpreadPct = s.SpreadPct
		existing.FundingRateBuy = fundingBuy
		existing.FundingRateSell = fundingSell
		existing.FundingDiff = fundingDiff
		existing.LastSeen = now
		f.opportunities[key] = existing
	}

	for key := range f.opportunities {
		if _, ok := currentKeys[key]; !ok {
			delete(f.opportunities, key)
			f.expired++
		}
	}

	out := make([]domain.Opportunity, 0, len(f.opportunities))
	for _, o := range f.opportunities {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SpreadPct != out[j].SpreadPct {
			return out[i].SpreadPct > out[j].SpreadPct
		}
		return out[i].Key.Symbol+out[i].Key.VenueBuy+out[i].Key.VenueSell <
			out[j].Key.Symbol+out[j].Key.VenueBuy+out[j].Key.VenueSell
	})
	return out
}

// Current returns the presently tracked opportunities, sorted descending by
// spread_pct, without applying a new tick (unlike Update, it never creates,
// updates or expires entries). Used by the display refresh loop and the
// HTTP API, which read between analysis ticks rather than drive them.
func (f *Finder) Current() []domain.Opportunity {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.Opportunity, 0, len(f.opportunities))
	for _, o := range f.opportunities {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SpreadPct != out[j].SpreadPct {
			return out[i].SpreadPct > out[j].SpreadPct
		}
		return out[i].Key.Symbol+out[i].Key.VenueBuy+out[i].Key.VenueSell <
			out[j].Key.Symbol+out[j].Key.VenueBuy+out[j].Key.VenueSell
	})
	return out
}

// Stats reports process-wide created/expired counters.
type Stats struct {
	OpportunitiesFound   int64
	OpportunitiesExpired int64
}

func (f *Finder) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{OpportunitiesFound: f.found, OpportunitiesExpired: f.expired}
}
