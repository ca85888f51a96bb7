// Package adapters defines the Venue Adapter contract: the boundary between
// a venue's wire protocol and the core pipeline. Every venue-specific client
// (websocket-based or otherwise) implements Adapter and is driven by
// internal/orchestrator; internal/ingestion only ever sees the callback
// shapes declared here.
package adapters

import (
	"context"
	"time"
)

// OrderbookPayload is the venue-native order book update passed to callbacks.
// Prices/sizes are decimal strings at this boundary; internal/ingestion
// parses them into domain.Quote.
type OrderbookPayload struct {
	Symbol  string // populated only for the single-argument callback shape
	Bid     string
	BidSize string
	Ask     string
	AskSize string
}

// TickerPayload is the venue-native ticker/funding update passed to callbacks.
type TickerPayload struct {
	Symbol        string
	FundingRate   string
	FundingPeriod time.Duration
	OpenInterest  string
	MarkPrice     string
}

// OrderbookCallback is the two-argument callback shape: the adapter passes
// the native symbol explicitly alongside the payload.
type OrderbookCallback func(symbol string, payload OrderbookPayload)

// OrderbookCallbackEmbedded is the single-argument callback shape: the
// adapter passes only the payload, which itself carries Symbol.
type OrderbookCallbackEmbedded func(payload OrderbookPayload)

// TickerCallback and TickerCallbackEmbedded mirror the two order book shapes
// for ticker/funding updates.
type TickerCallback func(symbol string, payload TickerPayload)
type TickerCallbackEmbedded func(payload TickerPayload)

// CallbackShape names the two callback shapes, replacing a
// polymorphic/untyped callback with explicit typed variants. Each adapter
// invokes the callback field that matches the shape it produces.
type CallbackShape int

const (
	// ShapeSymbolArg is callback(symbol, payload).
	ShapeSymbolArg CallbackShape = iota
	// ShapeEmbedded is callback(payload) with payload.Symbol populated.
	ShapeEmbedded
)

// OrderbookSubscription is what the Ingestion Stage hands to
// SubscribeOrderbook: a shape tag plus one callback field per shape.
// ingestion.Receiver fills both callback fields and sets Shape to
// ShapeSymbolArg for every venue; adapters pick the callback by their own
// wire shape and do not read Shape.
type OrderbookSubscription struct {
	Shape       CallbackShape
	OnSymbolArg OrderbookCallback
	OnEmbedded  OrderbookCallbackEmbedded
}

// TickerSubscription mirrors OrderbookSubscription for ticker updates.
type TickerSubscription struct {
	Shape       CallbackShape
	OnSymbolArg TickerCallback
	OnEmbedded  TickerCallbackEmbedded
}

// NetworkStats reports cumulative bytes transferred by the adapter's
// transport, surfaced in the dashboard stats panel and the /metrics export.
type NetworkStats struct {
	BytesReceived int64
	BytesSent     int64
}

// ReconnectStats reports the adapter's cumulative reconnect count.
type ReconnectStats struct {
	ReconnectCount int64
}

// Adapter is the contract every venue client implements. Connect is
// idempotent; Disconnect must return within 3s (internal/orchestrator wraps
// the call in its own bounded timeout regardless).
type Adapter interface {
	// Venue is the canonical venue identifier, e.g. "binance", "okx".
	Venue() string

	// Connect establishes transport, subscribes market-data channels and
	// completes authentication if required. Safe to call more than once.
	Connect(ctx context.Context) error

	// Disconnect tears down the transport.
	Disconnect(ctx context.Context) error

	// SubscribeOrderbook registers a callback for a symbol's order book
	// updates. Some adapters accept a single global callback for batch
	// subscription: in that case the first call's subscription carries the
	// callback and later calls may pass a zero-value subscription.
	SubscribeOrderbook(symbol string, sub OrderbookSubscription) error

	// SubscribeTicker registers a callback for a symbol's ticker/funding
	// updates, with the same batch-subscription allowance as above.
	SubscribeTicker(symbol string, sub TickerSubscription) error

	NetworkStats() NetworkStats
	ReconnectStats() ReconnectStats
}

// NativeSymbol translates a canonical BASE-QUOTE-PERP symbol to a venue's
// native wire symbol. NormalizeSymbol reverses the mapping. Every Adapter
// implementation owns its own bidirectional table and satisfies this
// interface so the Ingestion Stage can normalize without a venue switch.
type SymbolMapper interface {
	NativeSymbol(canonical string) (string, bool)
	NormalizeSymbol(native string) (string, bool)
}
