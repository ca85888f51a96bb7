// Package display implements the Display Engine: three independent
// UI-only temporal overlays (continuation tolerance, post-disappearance
// hold, 15-minute occurrence counting) on top of the Opportunity Finder's
// instantaneous output. None of this feeds back into the core tracking.
package display

import (
	"sort"
	"sync"
	"time"

	"github.com/cryptocj520/arbmon/internal/domain"
)

const (
	continuationTolerance = 2 * time.Second
	disappearanceHold     = 5 * time.Second
	occurrenceWindow      = 15 * time.Minute
	occurrenceDedupWindow = time.Second
)

type uiTiming struct {
	uiDurationStart time.Time
	lastUISeen      time.Time
}

type disappearedEntry struct {
	opportunity   domain.Opportunity
	disappearedAt time.Time
}

// Row is one rendered line of the Opportunity table: a current or recently-
// disappeared Opportunity plus the UI-only duration and occurrence count.
type Row struct {
	Opportunity        domain.Opportunity
	UIDuration         time.Duration
	Disappeared        bool
	OccurrenceCount15m int
}

// Engine owns the hysteresis state across ticks. It is single-writer
// (the analysis loop / display refresh task) by construction but guards its
// maps with a mutex so the refresh task and a concurrent stats read never
// race.
type Engine struct {
	mu sync.Mutex

	timing      map[domain.OpportunityKey]*uiTiming
	disappeared map[domain.OpportunityKey]*disappearedEntry
	occurrences map[string][]time.Time // symbol -> creation timestamps, 15m pruned

	lastActive map[domain.OpportunityKey]domain.Opportunity
}

// New builds an empty Engine.
func New() *Engine {
	return &Engine{
		timing:      make(map[domain.OpportunityKey]*uiTiming),
		disappeared: make(map[domain.OpportunityKey]*disappearedEntry),
		occurrences: make(map[string][]time.Time),
		lastActive:  make(map[domain.OpportunityKey]domain.Opportunity),
	}
}

// Update applies one frame of the Opportunity Finder's current list and
// returns the rows to render, sorted descending by spread_pct.
func (e *Engine) Update(current []domain.Opportunity, now time.Time) []Row {
	e.mu.Lock()
	defer e.mu.Unlock()

	currentKeys := make(map[domain.OpportunityKey]struct{}, len(current))
	currentSymbols := make(map[string]struct{}, len(current))
	for _, o := range current {
		currentKeys[o.Key] = struct{}{}
		currentSymbols[o.Key.Symbol] = struct{}{}
	}

	for _, o := range current {
		key := o.Key
		t, ok := e.timing[key]
		if !ok {
			t = &uiTiming{uiDurationStart: now, lastUISeen: now}
			e.timing[key] = t
		} else if now.Sub(t.lastUISeen) <= continuationTolerance {
			t.lastUISeen = now
		} else {
			t.uiDurationStart = now
			t.lastUISeen = now
		}

		if _, wasDisappeared := e.disappeared[key]; wasDisappeared {
			delete(e.disappeared, key)
		}

		if _, wasActive := e.lastActive[key]; !wasActive {
			e.recordOccurrence(o.Key.Symbol, now)
		}
	}

	for key, prev := range e.lastActive {
		if _, stillActive := currentKeys[key]; stillActive {
			continue
		}
		if _, already := e.disappeared[key]; !already {
			e.disappeared[key] = &disappearedEntry{opportunity: prev, disappearedAt: now}
		}
	}

	for key, de := range e.disappeared {
		if now.Sub(de.disappearedAt) >= disappearanceHold {
			delete(e.disappeared, key)
			delete(e.timing, key)
			continue
		}
		if _, symbolActive := currentSymbols[de.opportunity.Key.Symbol]; symbolActive {
			de.disappearedAt = now
		}
	}

	rows := make([]Row, 0, len(current)+len(e.disappeared))
	for _, o := range current {
		rows = append(rows, Row{
			Opportunity:        o,
			UIDuration:         now.Sub(e.timing[o.Key].uiDurationStart),
			OccurrenceCount15m: e.occurrenceCount(o.Key.Symbol, now),
		})
	}
	for key, de := range e.disappeared {
		uiDur := time.Duration(0)
		if t, ok := e.timing[key]; ok {
			uiDur = now.Sub(t.uiDurationStart)
		}
		rows = append(rows, Row{
			Opportunity:        de.opportunity,
			UIDuration:         uiDur,
			Disappeared:        true,
			OccurrenceCount15m: e.occurrenceCount(de.opportunity.Key.Symbol, now),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Opportunity.SpreadPct != rows[j].Opportunity.SpreadPct {
			return rows[i].Opportunity.SpreadPct > rows[j].Opportunity.SpreadPct
		}
		ki, kj := rows[i].Opportunity.Key, rows[j].Opportunity.Key
		return ki.Symbol+ki.VenueBuy+ki.VenueSell < kj.Symbol+kj.VenueBuy+kj.VenueSell
	})

	e.lastActive = make(map[domain.OpportunityKey]domain.Opportunity, len(current))
	for _, o := range current {
		e.lastActive[o.Key] = o
	}

	return rows
}

// recordOccurrence appends now to symbol's occurrence list, suppressing a
// duplicate append within occurrenceDedupWindow of the most recent entry.
func (e *Engine) recordOccurrence(symbol string, now time.Time) {
	list := e.occurrences[symbol]
	if len(list) > 0 && now.Sub(list[len(list)-1]) < occurrenceDedupWindow {
		return
	}
	e.occurrences[symbol] = append(list, now)
}

// occurrenceCount prunes entries older than occurrenceWindow and returns the
// remaining count for symbol.
func (e *Engine) occurrenceCount(symbol string, now time.Time) int {
	list := e.occurrences[symbol]
	cutoff := now.Add(-occurrenceWindow)
	i := 0
	for i < len(list) && list[i].Before(cutoff) {
		i++
	}
	list = list[i:]
	e.occurrences[symbol] = list
	return len(list)
}

// BestSpreadPct returns the maximum spread_pct among the tick's emitted
// spreads for symbol, or 0 if none. It reads the unfiltered Spread
// Calculator output, not the opportunity list: a symbol whose best spread
// sits below min_spread_pct still shows its real best in the per-symbol
// column.
func BestSpreadPct(symbol string, spreads []domain.Spread) float64 {
	best := 0.0
	for _, s := range spreads {
		if s.Symbol == symbol && s.SpreadPct > best {
			best = s.SpreadPct
		}
	}
	return best
}
