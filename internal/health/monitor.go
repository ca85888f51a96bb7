// Package health tracks per-venue data freshness independently of the State
// Store's own read-time staleness filter, so a venue that has gone quiet can
// be reported as degraded or down even while its last snapshot still exists.
// The orchestrator calls Touch on every analysis tick for each venue's
// non-stale quote, and Status once a second from its metrics loop and on
// every /health request.
package health

import (
	"sync"
	"time"
)

// Status is the tri-state health of a single venue.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// VenueStatus is one venue's health snapshot for the /health endpoint.
type VenueStatus struct {
	Venue        string    `json:"venue"`
	Status       Status    `json:"status"`
	LastUpdate   time.Time `json:"last_update"`
	SecondsStale float64   `json:"seconds_stale"`
	SymbolCount  int       `json:"symbol_count"`
}

// Monitor records the last-update time per (venue, symbol) and classifies
// each venue's overall health against two configurable thresholds:
// degradedAfter (no update in this long -> degraded) and downAfter (no
// update in this long -> down).
type Monitor struct {
	mu            sync.RWMutex
	lastUpdate    map[string]map[string]time.Time
	degradedAfter time.Duration
	downAfter     time.Duration
}

// NewMonitor builds a Monitor. degradedAfter/downAfter default to 10s/30s
// (the latter matching the State Store's own data_timeout_seconds) when
// given as zero.
func NewMonitor(degradedAfter, downAfter time.Duration) *Monitor {
	if degradedAfter <= 0 {
		degradedAfter = 10 * time.Second
	}
	if downAfter <= 0 {
		downAfter = 30 * time.Second
	}
	return &Monitor{
		lastUpdate:    make(map[string]map[string]time.Time),
		degradedAfter: degradedAfter,
		downAfter:     downAfter,
	}
}

// Touch records that venue/symbol produced fresh data at ts.
func (m *Monitor) Touch(venue, symbol string, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySymbol, ok := m.lastUpdate[venue]
	if !ok {
		bySymbol = make(map[string]time.Time)
		m.lastUpdate[venue] = bySymbol
	}
	if ts.After(bySymbol[symbol]) {
		bySymbol[symbol] = ts
	}
}

// Status returns every tracked venue's current health, evaluated against now.
func (m *Monitor) Status(now time.Time) []VenueStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]VenueStatus, 0, len(m.lastUpdate))
	for venue, bySymbol := range m.lastUpdate {
		var latest time.Time
		for _, ts := range bySymbol {
			if ts.After(latest) {
				latest = ts
			}
		}
		age := now.Sub(latest)

		status := StatusHealthy
		switch {
		case age >= m.downAfter:
			status = StatusDown
		case age >= m.degradedAfter:
			status = StatusDegraded
		}

		out = append(out, VenueStatus{
			Venue:        venue,
			Status:       status,
			LastUpdate:   latest,
			SecondsStale: age.Seconds(),
			SymbolCount:  len(bySymbol),
		})
	}
	return out
}
