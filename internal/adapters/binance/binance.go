// Package binance implements the Venue Adapter contract for Binance's public
// USDT-margined futures combined WebSocket stream (bookTicker and
// markPriceUpdate channels).
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cryptocj520/arbmon/internal/adapters"
	"github.com/cryptocj520/arbmon/internal/adapters/wsbase"
)

const defaultURL = "wss://fstream.binance.com/stream"

// symbolTable maps canonical BASE-QUOTE-PERP symbols to Binance's native
// USDT-margined perpetual futures symbols.
var symbolTable = map[string]string{
	"BTC-USD-PERP": "BTCUSDT",
	"ETH-USD-PERP": "ETHUSDT",
}

// Adapter implements adapters.Adapter for Binance. Unlike kraken.Adapter,
// it uses the single-argument (embedded-symbol) callback shape: Binance's
// combined stream wraps every update in {"stream": ..., "data": {"s": ...}},
// so the native symbol is always available on the payload itself.
type Adapter struct {
	mapper *adapters.StaticSymbolMap
	client *wsbase.Client

	mu      sync.Mutex
	obSub   adapters.OrderbookSubscription
	tkSub   adapters.TickerSubscription
	cancel  context.CancelFunc
	runDone chan struct{}
}

// New builds a Binance adapter. url overrides the default endpoint, mainly
// for tests against a local server; pass "" to use Binance's production URL.
func New(url string) *Adapter {
	if url == "" {
		url = defaultURL
	}
	return &Adapter{
		mapper: adapters.NewStaticSymbolMap(symbolTable),
		client: wsbase.New(wsbase.Config{Venue: "binance", URL: url}),
	}
}

func (a *Adapter) Venue() string { return "binance" }

// Mapper returns the adapter's canonical<->native symbol table, for callers
// wiring up the Ingestion Stage's per-venue SymbolMapper.
func (a *Adapter) Mapper() adapters.SymbolMapper { return a.mapper }

func (a *Adapter) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.runDone = make(chan struct{})
	done := a.runDone
	a.mu.Unlock()

	if err := a.client.Dial(runCtx); err != nil {
		cancel()
		return fmt.Errorf("binance connect: %w", err)
	}

	go func() {
		defer close(done)
		if err := a.client.RunWithReconnect(runCtx, a.onMessage); err != nil {
			log.Warn().Err(err).Msg("binance read loop stopped")
		}
	}()
	return nil
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	done := a.runDone
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := a.client.Close(); err != nil {
		return fmt.Errorf("binance disconnect: %w", err)
	}
	if done != nil {
		<-done
	}
	return nil
}

// SubscribeOrderbook checks that symbol has a Binance native name and
// records sub as the target of the embedded-shape bookTicker dispatch; all
// symbols share one subscription, and the last call wins. Unlike
// kraken.Adapter it sends no subscribe frame, and the connection URL
// (defaultURL) names no streams, so the adapter itself does not request
// bookTicker updates from the venue.
func (a *Adapter) SubscribeOrderbook(symbol string, sub adapters.OrderbookSubscription) error {
	if _, ok := a.mapper.NativeSymbol(symbol); !ok {
		return fmt.Errorf("binance: no native symbol for %s", symbol)
	}
	a.mu.Lock()
	a.obSub = sub
	a.mu.Unlock()
	return nil
}

// SubscribeTicker does for markPriceUpdate what SubscribeOrderbook does for
// bookTicker: it records the callback and sends no subscribe request.
func (a *Adapter) SubscribeTicker(symbol string, sub adapters.TickerSubscription) error {
	if _, ok := a.mapper.NativeSymbol(symbol); !ok {
		return fmt.Errorf("binance: no native symbol for %s", symbol)
	}
	a.mu.Lock()
	a.tkSub = sub
	a.mu.Unlock()
	return nil
}

func (a *Adapter) NetworkStats() adapters.NetworkStats {
	recv, sent := a.client.NetworkStats()
	return adapters.NetworkStats{BytesReceived: recv, BytesSent: sent}
}

func (a *Adapter) ReconnectStats() adapters.ReconnectStats {
	return adapters.ReconnectStats{ReconnectCount: a.client.ReconnectCount()}
}

// combinedFrame is the envelope every message on the combined stream arrives
// in, regardless of which sub-stream produced it.
type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// onMessage dispatches one raw websocket frame by the event type carried on
// its data payload: "bookTicker" updates have no "e" field, markPriceUpdate
// frames set e="markPriceUpdate".
func (a *Adapter) onMessage(raw []byte) {
	var frame combinedFrame
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame.Data) == 0 {
		return
	}

	var probe struct {
		Event  string `json:"e"`
		Symbol string `json:"s"`
	}
	if err := json.Unmarshal(frame.Data, &probe); err != nil || probe.Symbol == "" {
		return
	}
	if _, ok := a.mapper.NormalizeSymbol(probe.Symbol); !ok {
		return
	}

	// The embedded-shape payload carries Binance's native symbol; the
	// Ingestion Stage translates it through this adapter's Mapper.
	switch probe.Event {
	case "markPriceUpdate":
		a.dispatchMarkPrice(probe.Symbol, frame.Data)
	case "":
		a.dispatchBookTicker(probe.Symbol, frame.Data)
	}
}

func (a *Adapter) dispatchBookTicker(symbol string, raw json.RawMessage) {
	var bt struct {
		BidPrice string `json:"b"`
		BidQty   string `json:"B"`
		AskPrice string `json:"a"`
		AskQty   string `json:"A"`
	}
	if err := json.Unmarshal(raw, &bt); err != nil {
		return
	}
	if !validDecimal(bt.BidPrice) || !validDecimal(bt.AskPrice) {
		return
	}
	payload := adapters.OrderbookPayload{
		Symbol:  symbol,
		Bid:     bt.BidPrice,
		BidSize: bt.BidQty,
		Ask:     bt.AskPrice,
		AskSize: bt.AskQty,
	}

	a.mu.Lock()
	sub := a.obSub
	a.mu.Unlock()
	if sub.OnEmbedded != nil {
		sub.OnEmbedded(payload)
	}
}

func (a *Adapter) dispatchMarkPrice(symbol string, raw json.RawMessage) {
	var mp struct {
		MarkPrice       string `json:"p"`
		FundingRate     string `json:"r"`
		NextFundingTime int64  `json:"T"`
	}
	if err := json.Unmarshal(raw, &mp); err != nil {
		return
	}
	if !validDecimal(mp.MarkPrice) {
		return
	}
	payload := adapters.TickerPayload{
		Symbol:        symbol,
		MarkPrice:     mp.MarkPrice,
		FundingRate:   mp.FundingRate,
		FundingPeriod: 8 * time.Hour,
	}

	a.mu.Lock()
	sub := a.tkSub
	a.mu.Unlock()
	if sub.OnEmbedded != nil {
		sub.OnEmbedded(payload)
	}
}

func validDecimal(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
