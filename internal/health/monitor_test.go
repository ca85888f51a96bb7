package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_HealthyWhenRecentlyTouched(t *testing.T) {
	m := NewMonitor(10*time.Second, 30*time.Second)
	now := time.Unix(1000, 0)
	m.Touch("binance", "BTC-USDC-PERP", now)

	statuses := m.Status(now.Add(2 * time.Second))
	require.Len(t, statuses, 1)
	assert.Equal(t, StatusHealthy, statuses[0].Status)
	assert.Equal(t, "binance", statuses[0].Venue)
}

func TestMonitor_DegradedThenDown(t *testing.T) {
	m := NewMonitor(10*time.Second, 30*time.Second)
	now := time.Unix(1000, 0)
	m.Touch("kraken", "ETH-USDC-PERP", now)

	degraded := m.Status(now.Add(15 * time.Second))
	require.Len(t, degraded, 1)
	assert.Equal(t, StatusDegraded, degraded[0].Status)

	down := m.Status(now.Add(45 * time.Second))
	require.Len(t, down, 1)
	assert.Equal(t, StatusDown, down[0].Status)
}

func TestMonitor_TouchTracksLatestAcrossSymbols(t *testing.T) {
	m := NewMonitor(10*time.Second, 30*time.Second)
	base := time.Unix(1000, 0)
	m.Touch("okx", "BTC-USDC-PERP", base)
	m.Touch("okx", "ETH-USDC-PERP", base.Add(5*time.Second))

	statuses := m.Status(base.Add(6 * time.Second))
	require.Len(t, statuses, 1)
	assert.Equal(t, 2, statuses[0].SymbolCount)
	assert.Equal(t, StatusHealthy, statuses[0].Status)
}
