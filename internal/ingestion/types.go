// Package ingestion implements the Ingestion Stage (adapter callbacks ->
// bounded queues) and the Processing Stage (queue consumer -> State Store).
package ingestion

import (
	"time"

	"github.com/cryptocj520/arbmon/internal/adapters"
)

// RawOrderbookEvent is what crosses the orderbook queue: the venue, the
// already-normalized canonical symbol, the venue-native payload, and the
// wall-clock time the Ingestion Stage received it.
type RawOrderbookEvent struct {
	Venue    string
	Symbol   string
	Payload  adapters.OrderbookPayload
	WallTime time.Time
}

// RawTickerEvent mirrors RawOrderbookEvent for ticker/funding updates.
type RawTickerEvent struct {
	Venue    string
	Symbol   string
	Payload  adapters.TickerPayload
	WallTime time.Time
}
