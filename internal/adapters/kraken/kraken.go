// Package kraken implements the Venue Adapter contract for Kraken's public
// WebSocket API (ticker and book channels).
package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cryptocj520/arbmon/internal/adapters"
	"github.com/cryptocj520/arbmon/internal/adapters/wsbase"
)

const defaultURL = "wss://ws.kraken.com"

// symbolTable maps canonical BASE-QUOTE-PERP symbols to Kraken's native pair
// names. Kraken's perpetual futures use a separate endpoint/wire format from
// its spot book; this table covers the majors the monitor is configured for.
var symbolTable = map[string]string{
	"BTC-USD-PERP": "PI_XBTUSD",
	"ETH-USD-PERP": "PI_ETHUSD",
}

// Adapter implements adapters.Adapter for Kraken.
type Adapter struct {
	mapper *adapters.StaticSymbolMap
	client *wsbase.Client

	mu      sync.Mutex
	obSub   adapters.OrderbookSubscription
	tkSub   adapters.TickerSubscription
	cancel  context.CancelFunc
	runDone chan struct{}
}

// New builds a Kraken adapter. url overrides the default endpoint, mainly
// for tests against a local server; pass "" to use Kraken's production URL.
func New(url string) *Adapter {
	if url == "" {
		url = defaultURL
	}
	return &Adapter{
		mapper: adapters.NewStaticSymbolMap(symbolTable),
		client: wsbase.New(wsbase.Config{Venue: "kraken", URL: url}),
	}
}

func (a *Adapter) Venue() string { return "kraken" }

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
		return fmt.Errorf("kraken connect: %w", err)
	}

	go func() {
		defer close(done)
		if err := a.client.RunWithReconnect(runCtx, a.onMessage); err != nil {
			log.Warn().Err(err).Msg("kraken read loop stopped")
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
		return fmt.Errorf("kraken disconnect: %w", err)
	}
	if done != nil {
		<-done
	}
	return nil
}

func (a *Adapter) SubscribeOrderbook(symbol string, sub adapters.OrderbookSubscription) error {
	native, ok := a.mapper.NativeSymbol(symbol)
	if !ok {
		return fmt.Errorf("kraken: no native symbol for %s", symbol)
	}
	a.mu.Lock()
	a.obSub = sub
	a.mu.Unlock()
	return a.subscribe(native, "book")
}

func (a *Adapter) SubscribeTicker(symbol string, sub adapters.TickerSubscription) error {
	native, ok := a.mapper.NativeSymbol(symbol)
	if !ok {
		return fmt.Errorf("kraken: no native symbol for %s", symbol)
	}
	a.mu.Lock()
	a.tkSub = sub
	a.mu.Unlock()
	return a.subscribe(native, "ticker")
}

func (a *Adapter) subscribe(native, channel string) error {
	req := map[string]interface{}{
		"event": "subscribe",
		"pair":  []string{native},
		"subscription": map[string]string{
			"name": channel,
		},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("kraken: encoding subscribe request: %w", err)
	}
	if err := a.client.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("kraken: sending subscribe request: %w", err)
	}
	return nil
}

func (a *Adapter) NetworkStats() adapters.NetworkStats {
	recv, sent := a.client.NetworkStats()
	return adapters.NetworkStats{BytesReceived: recv, BytesSent: sent}
}

func (a *Adapter) ReconnectStats() adapters.ReconnectStats {
	return adapters.ReconnectStats{ReconnectCount: a.client.ReconnectCount()}
}

// onMessage dispatches one raw websocket frame. Kraken sends array-shaped
// channel updates [channelID, data, channelName, pair] and object-shaped
// event acks ({"event": "..."}); only the former carries market data.
func (a *Adapter) onMessage(data []byte) {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return // event ack or heartbeat object, not a channel update
	}
	if len(raw) < 4 {
		return
	}
	channelName, _ := raw[2].(string)
	pair, _ := raw[3].(string)
	if pair == "" {
		return
	}
	if _, ok := a.mapper.NormalizeSymbol(pair); !ok {
		return
	}

	// Callbacks carry the native pair name; the Ingestion Stage translates it
	// to canonical form through this adapter's Mapper.
	switch channelName {
	case "ticker":
		a.dispatchTicker(pair, raw[1])
	default:
		if len(channelName) >= 4 && channelName[:4] == "book" {
			a.dispatchBook(pair, raw[1])
		}
	}
}

func (a *Adapter) dispatchTicker(symbol string, raw interface{}) {
	dataMap, ok := raw.(map[string]interface{})
	if !ok {
		return
	}
	payload := adapters.TickerPayload{Symbol: symbol}
	if mark, ok := decimalField(dataMap, "c", 0); ok {
		payload.MarkPrice = mark
	}

	a.mu.Lock()
	sub := a.tkSub
	a.mu.Unlock()
	if sub.OnSymbolArg != nil {
		sub.OnSymbolArg(symbol, payload)
	}
}

func (a *Adapter) dispatchBook(symbol string, raw interface{}) {
	dataMap, ok := raw.(map[string]interface{})
	if !ok {
		return
	}
	payload := adapters.OrderbookPayload{Symbol: symbol}
	if ask, ok := decimalField(dataMap, "a", 0); ok {
		payload.Ask = ask
	}
	if askSize, ok := decimalField(dataMap, "a", 2); ok {
		payload.AskSize = askSize
	}
	if bid, ok := decimalField(dataMap, "b", 0); ok {
		payload.Bid = bid
	}
	if bidSize, ok := decimalField(dataMap, "b", 2); ok {
		payload.BidSize = bidSize
	}
	if payload.Bid == "" || payload.Ask == "" {
		return
	}

	a.mu.Lock()
	sub := a.obSub
	a.mu.Unlock()
	if sub.OnSymbolArg != nil {
		sub.OnSymbolArg(symbol, payload)
	}
}

// decimalField extracts element idx of dataMap[key] (a []interface{} of
// strings, Kraken's [price, wholeLotVolume, lotVolume] triples) as a string,
// validating it parses as a number without losing its original precision.
func decimalField(dataMap map[string]interface{}, key string, idx int) (string, bool) {
	arr, ok := dataMap[key].([]interface{})
	if !ok || idx >= len(arr) {
		return "", false
	}
	s, ok := arr[idx].(string)
	if !ok {
		return "", false
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return "", false
	}
	return s, true
}
