package display

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptocj520/arbmon/internal/domain"
)

const (
	scrollerCapacity       = 20
	scrollerGlobalThrottle = 500 * time.Millisecond
	midPriceChangeThresh   = 0.0001 // 0.01%
	opportunityDedupWindow = time.Second

	// diffAnnualizationFactor turns the signed 8h funding-rate diff fraction
	// into an annualized percentage: 1095 eight-hour periods per year, times
	// 100 for percent. Applied once to the authoritative decimal diff.
	diffAnnualizationFactor = 1095 * 100
)

// Scroller is a bounded ring buffer of formatted status lines fed by two
// producers: the Processing Stage (one line per orderbook update, subject to
// a global throttle and a minimum mid-price-change threshold) and the
// Opportunity Finder (one line per newly-created Opportunity, subject to a
// per-symbol de-duplication window).
type Scroller struct {
	mu    sync.Mutex
	lines []string

	lastGlobalEmit      time.Time
	lastMidBySymbol     map[string]float64
	lastOppEmitBySymbol map[string]time.Time
}

// NewScroller builds an empty Scroller with a 20-entry ring buffer.
func NewScroller() *Scroller {
	return &Scroller{
		lastMidBySymbol:     make(map[string]float64),
		lastOppEmitBySymbol: make(map[string]time.Time),
	}
}

func (s *Scroller) push(line string) {
	s.lines = append(s.lines, line)
	if len(s.lines) > scrollerCapacity {
		s.lines = s.lines[len(s.lines)-scrollerCapacity:]
	}
}

// EmitQuoteUpdate offers an orderbook tick to the scroller. It is dropped
// unless the global 500ms throttle has elapsed and the mid price moved by at
// least 0.01% since the last emitted line for this (venue, symbol).
func (s *Scroller) EmitQuoteUpdate(venue, symbol string, mid float64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastGlobalEmit) < scrollerGlobalThrottle {
		return
	}
	key := venue + "|" + symbol
	last, ok := s.lastMidBySymbol[key]
	if ok && last != 0 {
		change := math.Abs(mid-last) / last
		if change < midPriceChangeThresh {
			return
		}
	}

	s.lastMidBySymbol[key] = mid
	s.lastGlobalEmit = now
	s.push(fmt.Sprintf("[%s] %s %s mid=%.8f", now.Format(time.RFC3339), venue, symbol, mid))
}

// EmitOpportunity offers a newly-created Opportunity to the scroller,
// subject to a 1s per-symbol de-duplication window so a burst of new keys
// on the same symbol doesn't flood the ring. Exactly one line is produced
// per call that survives the window, never more.
func (s *Scroller) EmitOpportunity(o domain.Opportunity, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastOppEmitBySymbol[o.Key.Symbol]
	if ok && now.Sub(last) < opportunityDedupWindow {
		return
	}
	s.lastOppEmitBySymbol[o.Key.Symbol] = now

	diffAnnualPct, _ := o.FundingDiff.Mul(decimal.NewFromInt(diffAnnualizationFactor)).Float64()
	tier := tierFor(o.SpreadPct)
	s.push(fmt.Sprintf("%s %s: buy=%s sell=%s spread=%.4f%% funding_diff_annual=%.4f%%",
		tier, o.Key.Symbol, o.Key.VenueBuy, o.Key.VenueSell, o.SpreadPct, diffAnnualPct))
}

// tierFor buckets a spread percentage into a coarse severity tier, matching
// the original's emoji-tiered message thresholds without the emoji.
func tierFor(spreadPct float64) string {
	switch {
	case spreadPct >= 1.0:
		return "HIGH"
	case spreadPct >= 0.5:
		return "MED"
	default:
		return "LOW"
	}
}

// Lines returns a copy of the current ring buffer contents, oldest first.
func (s *Scroller) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}
