// Package spread implements the pure Spread Calculator: given a symbol and a
// venue->Quote mapping, it emits the list of profitable directional spreads
// between every unordered venue pair.
package spread

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptocj520/arbmon/internal/domain"
)

// Calculate computes every positive directional spread for symbol across the
// given venue->Quote snapshot. For each unordered pair (A, B) with both
// quotes present and valid, both directions are tested independently and
// both may be retained in the same tick. Division is performed on decimals;
// the percentage is rendered to float64 only for comparison/display.
//
// This is a plain nested loop over a sorted venue list rather than the
// enumerate-reunpack shape of the original's per-index loop: both traverse
// the same unordered pairs, but indexing into a pre-sorted slice keeps the
// iteration ordering deterministic without re-destructuring an enumerate
// tuple on every inner step.
func Calculate(symbol string, quotes map[string]domain.Quote) []domain.Spread {
	venues := make([]string, 0, len(quotes))
	for v, q := range quotes {
		if q.Valid() {
			venues = append(venues, v)
		}
	}
	sort.Strings(venues)

	var out []domain.Spread

	for i := 0; i < len(venues); i++ {
		for j := i + 1; j < len(venues); j++ {
			a, b := venues[i], venues[j]
			qa, qb := quotes[a], quotes[b]

			if s, ok := directional(symbol, a, qa, b, qb); ok {
				out = append(out, s)
			}
			if s, ok := directional(symbol, b, qb, a, qa); ok {
				out = append(out, s)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SpreadPct != out[j].SpreadPct {
			return out[i].SpreadPct > out[j].SpreadPct
		}
		return spreadKey(out[i]) < spreadKey(out[j])
	})
	return out
}

// directional tests buying at venueBuy's ask and selling at venueSell's bid.
func directional(symbol, venueBuy string, buyQuote domain.Quote, venueSell string, sellQuote domain.Quote) (domain.Spread, bool) {
	if !sellQuote.Bid.GreaterThan(buyQuote.Ask) {
		return domain.Spread{}, false
	}

	pctDecimal := sellQuote.Bid.Sub(buyQuote.Ask).Div(buyQuote.Ask).Mul(decimal.NewFromInt(100))
	pct, _ := pctDecimal.Round(8).Float64()
	if pct <= 0 {
		return domain.Spread{}, false
	}

	return domain.Spread{
		Symbol:    symbol,
		VenueBuy:  venueBuy,
		VenueSell: venueSell,
		PriceBuy:  buyQuote.Ask,
		PriceSell: sellQuote.Bid,
		SizeBuy:   buyQuote.AskSize,
		SizeSell:  sellQuote.BidSize,
		SpreadPct: pct,
		Timestamp: laterOf(buyQuote.Timestamp, sellQuote.Timestamp),
	}, true
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func spreadKey(s domain.Spread) string {
	return s.Symbol + "|" + s.VenueBuy + "|" + s.VenueSell
}
