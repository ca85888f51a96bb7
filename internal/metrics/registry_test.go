package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_SumsAcrossLabelSets(t *testing.T) {
	r := NewRegistry()
	r.QuotesReceived.WithLabelValues("orderbook").Add(3)
	r.QuotesReceived.WithLabelValues("ticker").Add(2)
	r.OpportunitiesFound.Add(7)
	r.ActiveOpportunities.Set(4)

	snap, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 5.0, snap["arbmon_quotes_received_total"])
	assert.Equal(t, 7.0, snap["arbmon_opportunities_found_total"])
	assert.Equal(t, 4.0, snap["arbmon_active_opportunities"])
}

func TestVenueHealthValue(t *testing.T) {
	assert.Equal(t, 2.0, VenueHealthValue("healthy"))
	assert.Equal(t, 1.0, VenueHealthValue("degraded"))
	assert.Equal(t, 0.0, VenueHealthValue("down"))
	assert.Equal(t, 0.0, VenueHealthValue("unknown"))
}
