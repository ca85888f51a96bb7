package ingestion

import (
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cryptocj520/arbmon/internal/adapters"
	"github.com/cryptocj520/arbmon/internal/queue"
)

// Receiver is the Ingestion Stage: it converts adapter callback events into
// well-formed queue entries with minimum work on the producing (venue I/O)
// goroutine. Every callback passes through reject/translate/enqueue with no
// blocking step.
type Receiver struct {
	orderbookQueue *queue.Queue[RawOrderbookEvent]
	tickerQueue    *queue.Queue[RawTickerEvent]

	mappers  map[string]adapters.SymbolMapper
	watchSet map[string]struct{}
}

// NewReceiver builds a Receiver bound to the given queues and watch list.
// mappers is keyed by venue identifier; watchSymbols is the configured list
// of canonical symbols to accept (anything else is silently discarded).
func NewReceiver(orderbookQueue *queue.Queue[RawOrderbookEvent], tickerQueue *queue.Queue[RawTickerEvent], mappers map[string]adapters.SymbolMapper, watchSymbols []string) *Receiver {
	watchSet := make(map[string]struct{}, len(watchSymbols))
	for _, s := range watchSymbols {
		watchSet[s] = struct{}{}
	}
	return &Receiver{
		orderbookQueue: orderbookQueue,
		tickerQueue:    tickerQueue,
		mappers:        mappers,
		watchSet:       watchSet,
	}
}

// normalize translates a venue-native symbol to canonical form and reports
// whether it is on the configured watch list.
func (r *Receiver) normalize(venue, native string) (string, bool) {
	mapper, ok := r.mappers[venue]
	if !ok {
		return "", false
	}
	canonical, ok := mapper.NormalizeSymbol(native)
	if !ok {
		return "", false
	}
	if _, watched := r.watchSet[canonical]; !watched {
		return "", false
	}
	return canonical, true
}

// handleOrderbook is the single entry point for both callback shapes: reject
// if either side of the book (price or size) is missing or non-positive,
// translate the native symbol, reject if not watched, then enqueue
// non-blocking. A value that does not parse as a number is passed on for the
// Processing Stage to count as a processing error.
func (r *Receiver) handleOrderbook(venue, nativeSymbol string, payload adapters.OrderbookPayload) {
	if payload.Bid == "" || payload.Ask == "" || payload.BidSize == "" || payload.AskSize == "" {
		return
	}
	for _, v := range []string{payload.Bid, payload.Ask, payload.BidSize, payload.AskSize} {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f <= 0 {
			return
		}
	}
	canonical, ok := r.normalize(venue, nativeSymbol)
	if !ok {
		return
	}
	r.orderbookQueue.Enqueue(RawOrderbookEvent{
		Venue:    venue,
		Symbol:   canonical,
		Payload:  payload,
		WallTime: time.Now(),
	})
}

func (r *Receiver) handleTicker(venue, nativeSymbol string, payload adapters.TickerPayload) {
	canonical, ok := r.normalize(venue, nativeSymbol)
	if !ok {
		return
	}
	r.tickerQueue.Enqueue(RawTickerEvent{
		Venue:    venue,
		Symbol:   canonical,
		Payload:  payload,
		WallTime: time.Now(),
	})
}

// OrderbookSubscriptionFor builds the subscription object passed to
// Adapter.SubscribeOrderbook for a given venue. It tolerates both callback
// shapes documented in the Venue Adapter contract: the symbol-arg shape
// calls handleOrderbook(venue, symbol, payload) directly; the embedded shape
// extracts the symbol from payload.Symbol.
func (r *Receiver) OrderbookSubscriptionFor(venue string) adapters.OrderbookSubscription {
	return adapters.OrderbookSubscription{
		Shape: adapters.ShapeSymbolArg,
		OnSymbolArg: func(symbol string, payload adapters.OrderbookPayload) {
			r.handleOrderbook(venue, symbol, payload)
		},
		OnEmbedded: func(payload adapters.OrderbookPayload) {
			if payload.Symbol == "" {
				log.Warn().Str("venue", venue).Msg("embedded-shape orderbook payload missing symbol")
				return
			}
			r.handleOrderbook(venue, payload.Symbol, payload)
		},
	}
}

// TickerSubscriptionFor mirrors OrderbookSubscriptionFor for ticker updates.
func (r *Receiver) TickerSubscriptionFor(venue string) adapters.TickerSubscription {
	return adapters.TickerSubscription{
		Shape: adapters.ShapeSymbolArg,
		OnSymbolArg: func(symbol string, payload adapters.TickerPayload) {
			r.handleTicker(venue, symbol, payload)
		},
		OnEmbedded: func(payload adapters.TickerPayload) {
			if payload.Symbol == "" {
				log.Warn().Str("venue", venue).Msg("embedded-shape ticker payload missing symbol")
				return
			}
			r.handleTicker(venue, payload.Symbol, payload)
		},
	}
}
