// Package state implements the State Store: a two-level mapping from
// (venue, symbol) to the latest Quote and Ticker, written by a single
// Processing Stage and read by the orchestrator's analysis loop. Per-key
// updates are linearizable: a reader never observes a
// half-built entry, because each entry is replaced wholesale via an atomic
// pointer swap rather than mutated in place.
package state

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryptocj520/arbmon/internal/domain"
)

type quoteEntry struct {
	quote domain.Quote
}

type tickerEntry struct {
	ticker domain.Ticker
}

// Store is the two-level (venue -> symbol -> entry) map for quotes and a
// parallel one for tickers.
type Store struct {
	mu      sync.RWMutex
	quotes  map[string]map[string]*atomic.Pointer[quoteEntry]
	tickers map[string]map[string]*atomic.Pointer[tickerEntry]

	staleAfter time.Duration
}

// New creates a Store whose snapshot reads filter out entries older than
// staleAfter (default 30s per the configured data_timeout_seconds).
func New(staleAfter time.Duration) *Store {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Second
	}
	return &Store{
		quotes:     make(map[string]map[string]*atomic.Pointer[quoteEntry]),
		tickers:    make(map[string]map[string]*atomic.Pointer[tickerEntry]),
		staleAfter: staleAfter,
	}
}

func (s *Store) quoteSlot(venue, symbol string) *atomic.Pointer[quoteEntry] {
	s.mu.RLock()
	if m, ok := s.quotes[venue]; ok {
		if p, ok := m[symbol]; ok {
			s.mu.RUnlock()
			return p
		}
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.quotes[venue]
	if !ok {
		m = make(map[string]*atomic.Pointer[quoteEntry])
		s.quotes[venue] = m
	}
	p, ok := m[symbol]
	if !ok {
		p = &atomic.Pointer[quoteEntry]{}
		m[symbol] = p
	}
	return p
}

func (s *Store) tickerSlot(venue, symbol string) *atomic.Pointer[tickerEntry] {
	s.mu.RLock()
	if m, ok := s.tickers[venue]; ok {
		if p, ok := m[symbol]; ok {
			s.mu.RUnlock()
			return p
		}
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.tickers[venue]
	if !ok {
		m = make(map[string]*atomic.Pointer[tickerEntry])
		s.tickers[venue] = m
	}
	p, ok := m[symbol]
	if !ok {
		p = &atomic.Pointer[tickerEntry]{}
		m[symbol] = p
	}
	return p
}

// SetQuote replaces the entry for (venue, symbol) wholesale. Concurrent
// writers to the same key are linearizable: the last Store wins, never a
// torn mix of two updates.
func (s *Store) SetQuote(q domain.Quote) {
	slot := s.quoteSlot(q.Venue, q.Symbol)
	slot.Store(&quoteEntry{quote: q})
}

// SetTicker replaces the entry for (venue, symbol) wholesale.
func (s *Store) SetTicker(t domain.Ticker) {
	slot := s.tickerSlot(t.Venue, t.Symbol)
	slot.Store(&tickerEntry{ticker: t})
}

// QuotesForSymbol returns the latest non-stale Quote per venue for symbol.
// Each venue's entry is read independently (a consistent per-key snapshot,
// not a globally atomic one), which the concurrency model explicitly
// permits.
func (s *Store) QuotesForSymbol(symbol string) map[string]domain.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	out := make(map[string]domain.Quote)
	for venue, bySymbol := range s.quotes {
		p, ok := bySymbol[symbol]
		if !ok {
			continue
		}
		entry := p.Load()
		if entry == nil {
			continue
		}
		if now.Sub(entry.quote.Timestamp) > s.staleAfter {
			continue
		}
		out[venue] = entry.quote
	}
	return out
}

// TickersForSymbol returns the latest non-stale Ticker per venue for symbol.
func (s *Store) TickersForSymbol(symbol string) map[string]domain.Ticker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	out := make(map[string]domain.Ticker)
	for venue, bySymbol := range s.tickers {
		p, ok := bySymbol[symbol]
		if !ok {
			continue
		}
		entry := p.Load()
		if entry == nil {
			continue
		}
		if now.Sub(entry.ticker.Timestamp) > s.staleAfter {
			continue
		}
		out[venue] = entry.ticker
	}
	return out
}

// Venues returns every venue that has ever written a quote, for stats/health
// reporting. Includes stale venues: the filter only applies to the
// snapshot-read APIs above, per the State Store's documented read-time-only
// expiration policy.
func (s *Store) Venues() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for v := range s.quotes {
		seen[v] = struct{}{}
	}
	for v := range s.tickers {
		seen[v] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	return out
}
