package ingestion

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/cryptocj520/arbmon/internal/domain"
	"github.com/cryptocj520/arbmon/internal/queue"
	"github.com/cryptocj520/arbmon/internal/state"
)

const (
	batchPerIteration = 50
	idleSleep         = time.Millisecond
	throughputWindow  = time.Hour
)

// QuoteEmitter receives one candidate status line per processed orderbook
// update; satisfied by display.Scroller, which applies its own throttle and
// mid-price-change filters.
type QuoteEmitter interface {
	EmitQuoteUpdate(venue, symbol string, mid float64, now time.Time)
}

// Processor is the Processing Stage: a single consumer loop that dequeues up
// to batchPerIteration items per queue per iteration, applies each update to
// the State Store, and sleeps idleSleep when both queues are empty.
// Processing is authoritative: the State Store never exposes a partially
// updated entry to a downstream reader.
type Processor struct {
	orderbookQueue *queue.Queue[RawOrderbookEvent]
	tickerQueue    *queue.Queue[RawTickerEvent]
	store          *state.Store
	emitter        QuoteEmitter // optional

	mu               sync.Mutex
	processingErrors int64
	receiveLog       []time.Time // one-hour sliding log for throughput reporting
}

// NewProcessor builds a Processor consuming from the given queues into store.
func NewProcessor(orderbookQueue *queue.Queue[RawOrderbookEvent], tickerQueue *queue.Queue[RawTickerEvent], store *state.Store) *Processor {
	return &Processor{
		orderbookQueue: orderbookQueue,
		tickerQueue:    tickerQueue,
		store:          store,
	}
}

// SetQuoteEmitter attaches the realtime scroller sink. Must be called before
// Run; a nil emitter leaves quote-line emission disabled.
func (p *Processor) SetQuoteEmitter(e QuoteEmitter) {
	p.emitter = e
}

// Run drives the consumer loop until stop is closed.
func (p *Processor) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		obBatch := p.orderbookQueue.DequeueBatch(batchPerIteration)
		tkBatch := p.tickerQueue.DequeueBatch(batchPerIteration)

		for _, ev := range obBatch {
			p.processOrderbook(ev)
		}
		for _, ev := range tkBatch {
			p.processTicker(ev)
		}

		if len(obBatch) == 0 && len(tkBatch) == 0 {
			time.Sleep(idleSleep)
		}
	}
}

func (p *Processor) processOrderbook(ev RawOrderbookEvent) {
	bid, err1 := decimal.NewFromString(ev.Payload.Bid)
	ask, err2 := decimal.NewFromString(ev.Payload.Ask)
	bidSize, err3 := decimal.NewFromString(ev.Payload.BidSize)
	askSize, err4 := decimal.NewFromString(ev.Payload.AskSize)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		p.recordError("orderbook", ev.Venue, ev.Symbol)
		return
	}

	q := domain.Quote{
		Venue:     ev.Venue,
		Symbol:    ev.Symbol,
		Bid:       bid,
		BidSize:   bidSize,
		Ask:       ask,
		AskSize:   askSize,
		Timestamp: ev.WallTime,
	}
	if !q.Valid() {
		p.recordError("orderbook", ev.Venue, ev.Symbol)
		return
	}

	p.store.SetQuote(q)
	p.recordReceive()

	if p.emitter != nil {
		mid, _ := q.Mid().Float64()
		p.emitter.EmitQuoteUpdate(q.Venue, q.Symbol, mid, ev.WallTime)
	}
}

func (p *Processor) processTicker(ev RawTickerEvent) {
	funding, err1 := decimal.NewFromString(ev.Payload.FundingRate)
	if ev.Payload.FundingRate == "" {
		funding = decimal.Zero
		err1 = nil
	}
	openInterest := decimal.Zero
	if ev.Payload.OpenInterest != "" {
		if v, err := decimal.NewFromString(ev.Payload.OpenInterest); err == nil {
			openInterest = v
		}
	}
	markPrice := decimal.Zero
	if ev.Payload.MarkPrice != "" {
		if v, err := decimal.NewFromString(ev.Payload.MarkPrice); err == nil {
			markPrice = v
		}
	}
	if err1 != nil {
		p.recordError("ticker", ev.Venue, ev.Symbol)
		return
	}

	p.store.SetTicker(domain.Ticker{
		Venue:         ev.Venue,
		Symbol:        ev.Symbol,
		FundingRate:   funding,
		FundingPeriod: ev.Payload.FundingPeriod,
		OpenInterest:  openInterest,
		MarkPrice:     markPrice,
		Timestamp:     ev.WallTime,
	})
	p.recordReceive()
}

func (p *Processor) recordError(kind, venue, symbol string) {
	p.mu.Lock()
	p.processingErrors++
	p.mu.Unlock()
	log.Debug().Str("kind", kind).Str("venue", venue).Str("symbol", symbol).Msg("processing parse failure, skipping")
}

func (p *Processor) recordReceive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.receiveLog = append(p.receiveLog, time.Now())
}

// Stats is the processor's reportable counters: errors plus a one-hour
// rolling throughput count, pruned on every read.
type Stats struct {
	ProcessingErrors int64
	ReceivedLastHour int
}

// Stats prunes entries older than one hour and returns the current counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-throughputWindow)
	i := 0
	for i < len(p.receiveLog) && p.receiveLog[i].Before(cutoff) {
		i++
	}
	p.receiveLog = p.receiveLog[i:]

	return Stats{
		ProcessingErrors: p.processingErrors,
		ReceivedLastHour: len(p.receiveLog),
	}
}
