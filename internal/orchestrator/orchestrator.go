// Package orchestrator wires every stage into a running system: adapter
// lifecycle, the ingestion queues and processor, the analysis loop, the
// display refresh loop, the history writer, and a bounded shutdown sequence.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cryptocj520/arbmon/internal/adapters"
	"github.com/cryptocj520/arbmon/internal/config"
	"github.com/cryptocj520/arbmon/internal/display"
	"github.com/cryptocj520/arbmon/internal/domain"
	"github.com/cryptocj520/arbmon/internal/health"
	"github.com/cryptocj520/arbmon/internal/history"
	"github.com/cryptocj520/arbmon/internal/httpapi"
	"github.com/cryptocj520/arbmon/internal/ingestion"
	"github.com/cryptocj520/arbmon/internal/metrics"
	"github.com/cryptocj520/arbmon/internal/opportunity"
	"github.com/cryptocj520/arbmon/internal/queue"
	"github.com/cryptocj520/arbmon/internal/spread"
	"github.com/cryptocj520/arbmon/internal/state"
)

// shutdownGrace bounds how long adapter disconnect is allowed to take.
const shutdownGrace = 3 * time.Second

// Orchestrator owns every stage's lifecycle and the background goroutines
// that drive them.
type Orchestrator struct {
	cfg config.MonitorConfig

	adapters map[string]adapters.Adapter

	orderbookQueue *queue.Queue[ingestion.RawOrderbookEvent]
	tickerQueue    *queue.Queue[ingestion.RawTickerEvent]

	receiver  *ingestion.Receiver
	processor *ingestion.Processor
	store     *state.Store

	finder    *opportunity.Finder
	display   *display.Engine
	scroller  *display.Scroller
	recorder  *history.Recorder
	housekeep *history.Housekeeper
	healthMon *health.Monitor
	metrics   *metrics.Registry
	httpSrv   *httpapi.Server

	mu      sync.Mutex
	latest  []Row
	running bool

	wg       sync.WaitGroup
	stop     chan struct{}
	httpDone chan struct{}
}

// Row is one analysis tick's rendered output for one symbol: its best
// spread percentage, mirroring the dashboard's per-tick consistency
// guarantee (symbol_spreads and opportunities always come from the same
// tick).
type Row struct {
	Symbol        string
	BestSpreadPct float64
}

// New builds an Orchestrator from its fully-resolved dependencies. Callers
// (cmd/arbmon) construct the database manager, CSV sink and concrete venue
// adapters, then hand them here.
func New(cfg config.MonitorConfig, venueAdapters map[string]adapters.Adapter, mappers map[string]adapters.SymbolMapper, repo history.Repo, csv *history.CSVSink) *Orchestrator {
	orderbookQueue := queue.New[ingestion.RawOrderbookEvent](cfg.OrderbookQueueSize)
	tickerQueue := queue.New[ingestion.RawTickerEvent](cfg.TickerQueueSize)
	store := state.New(time.Duration(cfg.DataTimeoutSeconds) * time.Second)
	scroller := display.NewScroller()
	processor := ingestion.NewProcessor(orderbookQueue, tickerQueue, store)
	processor.SetQuoteEmitter(scroller)

	return &Orchestrator{
		cfg:            cfg,
		adapters:       venueAdapters,
		orderbookQueue: orderbookQueue,
		tickerQueue:    tickerQueue,
		receiver:       ingestion.NewReceiver(orderbookQueue, tickerQueue, mappers, cfg.Symbols),
		processor:      processor,
		store:          store,
		finder:         opportunity.New(cfg.MinSpreadPct),
		display:        display.New(),
		scroller:       scroller,
		recorder: history.New(history.Config{
			IntervalSeconds:     cfg.History.IntervalSeconds,
			Strategy:            cfg.History.Strategy,
			BatchSize:           cfg.History.BatchSize,
			BatchTimeoutSeconds: cfg.History.BatchTimeoutSeconds,
			QueueMaxSize:        cfg.History.QueueMaxSize,
		}, repo, csv),
		housekeep: history.NewHousekeeper(cfg.History.CSVArchiveDir, cfg.History.CleanupIntervalHours, cfg.History.CompressAfterDays, cfg.History.ArchiveAfterDays),
		healthMon: health.NewMonitor(time.Duration(cfg.DataTimeoutSeconds/3)*time.Second, time.Duration(cfg.DataTimeoutSeconds)*time.Second),
		metrics:   metrics.NewRegistry(),
		stop:      make(chan struct{}),
		httpDone:  make(chan struct{}),
	}
}

// Start connects every adapter, subscribes market data, and launches the
// background loops. It returns once every adapter has connected (or failed).
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already running")
	}
	o.running = true
	o.mu.Unlock()

	if err := o.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := o.connectAdapters(ctx); err != nil {
		return err
	}
	o.subscribeAll()

	httpSrv, err := httpapi.NewServer(o.cfg.HTTP, o.metrics, o.finder.Current, func() []health.VenueStatus {
		return o.healthMon.Status(time.Now())
	})
	if err != nil {
		return fmt.Errorf("starting http api: %w", err)
	}
	o.httpSrv = httpSrv

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.processor.Run(o.stop)
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.recorder.RunWriter(ctx, o.stop)
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.housekeep.Run(o.stop)
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.analysisLoop()
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.metricsLoop()
	}()

	go func() {
		defer close(o.httpDone)
		if err := o.httpSrv.Start(); err != nil {
			log.Warn().Err(err).Msg("http api stopped")
		}
	}()

	log.Info().
		Strs("exchanges", o.cfg.Exchanges).
		Strs("symbols", o.cfg.Symbols).
		Float64("min_spread_pct", o.cfg.MinSpreadPct).
		Msg("arbitrage monitor started")

	return nil
}

func (o *Orchestrator) connectAdapters(ctx context.Context) error {
	type result struct {
		venue string
		err   error
	}
	results := make(chan result, len(o.adapters))
	for venue, a := range o.adapters {
		go func(venue string, a adapters.Adapter) {
			results <- result{venue: venue, err: a.Connect(ctx)}
		}(venue, a)
	}

	var failed []string
	for range o.adapters {
		r := <-results
		if r.err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", r.venue, r.err))
			log.Error().Str("venue", r.venue).Err(r.err).Msg("adapter connect failed")
			continue
		}
		log.Info().Str("venue", r.venue).Msg("adapter connected")
	}
	if len(failed) > 0 {
		return fmt.Errorf("adapter connect failures: %v", failed)
	}
	return nil
}

func (o *Orchestrator) subscribeAll() {
	for venue, a := range o.adapters {
		for _, symbol := range o.cfg.Symbols {
			if err := a.SubscribeOrderbook(symbol, o.receiver.OrderbookSubscriptionFor(venue)); err != nil {
				log.Error().Str("venue", venue).Str("symbol", symbol).Err(err).Msg("orderbook subscribe failed")
			}
			if err := a.SubscribeTicker(symbol, o.receiver.TickerSubscriptionFor(venue)); err != nil {
				log.Error().Str("venue", venue).Str("symbol", symbol).Err(err).Msg("ticker subscribe failed")
			}
		}
	}
}

// analysisLoop runs the high-frequency spread/opportunity scan on
// analysis_interval_ms, the display refresh on ui_refresh_interval_ms, and
// the history bucket flush once a second.
func (o *Orchestrator) analysisLoop() {
	analysisTicker := time.NewTicker(time.Duration(o.cfg.AnalysisIntervalMS) * time.Millisecond)
	defer analysisTicker.Stop()
	displayTicker := time.NewTicker(time.Duration(o.cfg.UIRefreshIntervalMS) * time.Millisecond)
	defer displayTicker.Stop()
	flushTicker := time.NewTicker(time.Second)
	defer flushTicker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-analysisTicker.C:
			o.tick()
		case <-displayTicker.C:
			o.refreshDisplay()
		case <-flushTicker.C:
			o.recorder.FlushCompletedBuckets(time.Now())
		}
	}
}

// tick runs one full scan: for every symbol, gather per-venue quotes,
// compute spreads, feed the Opportunity Finder, and record surviving
// opportunities into the history recorder and scroller.
func (o *Orchestrator) tick() {
	now := time.Now()
	var rows []Row
	var allSpreads []domain.Spread
	tickers := o.allTickers()

	calcStart := time.Now()
	for _, symbol := range o.cfg.Symbols {
		quotes := o.store.QuotesForSymbol(symbol)
		for venue, q := range quotes {
			o.healthMon.Touch(venue, symbol, q.Timestamp)
		}
		if len(quotes) < 2 {
			continue
		}

		spreads := spread.Calculate(symbol, quotes)
		allSpreads = append(allSpreads, spreads...)
	}
	o.metrics.SpreadCalcDuration.Observe(time.Since(calcStart).Seconds())

	opps := o.finder.Update(allSpreads, tickers, now)
	for _, opp := range opps {
		o.recorder.RecordOpportunity(opp, now)
		if opp.FirstSeen.Equal(now) {
			o.scroller.EmitOpportunity(opp, now)
		}
	}

	for _, symbol := range o.cfg.Symbols {
		rows = append(rows, Row{Symbol: symbol, BestSpreadPct: display.BestSpreadPct(symbol, allSpreads)})
	}

	o.mu.Lock()
	o.latest = rows
	o.mu.Unlock()
}

// allTickers reassembles the venue -> symbol -> Ticker shape the
// Opportunity Finder expects from the State Store's per-symbol snapshots.
func (o *Orchestrator) allTickers() map[string]map[string]domain.Ticker {
	out := make(map[string]map[string]domain.Ticker)
	for _, symbol := range o.cfg.Symbols {
		for venue, t := range o.store.TickersForSymbol(symbol) {
			bySymbol, ok := out[venue]
			if !ok {
				bySymbol = make(map[string]domain.Ticker)
				out[venue] = bySymbol
			}
			bySymbol[symbol] = t
		}
	}
	return out
}

// metricsLoop polls every stage's cumulative counters once a second and
// reflects them onto the Prometheus registry. Counters are monotonic, so
// deltas against the last poll are added rather than re-set.
func (o *Orchestrator) metricsLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastProcessingErrors int64
	var lastOBStats, lastTKStats queue.Stats
	var lastFinder opportunity.Stats
	var lastRecorder history.Stats
	lastBytesRecv := make(map[string]int64)
	lastBytesSent := make(map[string]int64)
	lastReconnects := make(map[string]int64)

	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			obStats := o.orderbookQueue.Stats()
			tkStats := o.tickerQueue.Stats()
			o.metrics.QueueDepth.WithLabelValues("orderbook").Set(float64(obStats.Size))
			o.metrics.QueueDepth.WithLabelValues("ticker").Set(float64(tkStats.Size))
			if d := obStats.Received - lastOBStats.Received; d > 0 {
				o.metrics.QuotesReceived.WithLabelValues("orderbook").Add(float64(d))
			}
			if d := tkStats.Received - lastTKStats.Received; d > 0 {
				o.metrics.QuotesReceived.WithLabelValues("ticker").Add(float64(d))
			}
			if d := obStats.Dropped - lastOBStats.Dropped; d > 0 {
				o.metrics.QuotesDropped.WithLabelValues("orderbook").Add(float64(d))
			}
			if d := tkStats.Dropped - lastTKStats.Dropped; d > 0 {
				o.metrics.QuotesDropped.WithLabelValues("ticker").Add(float64(d))
			}
			lastOBStats, lastTKStats = obStats, tkStats

			if errs := o.processor.Stats().ProcessingErrors; errs > lastProcessingErrors {
				o.metrics.ProcessingErrors.WithLabelValues("all", "parse_failure").Add(float64(errs - lastProcessingErrors))
				lastProcessingErrors = errs
			}

			finderStats := o.finder.Stats()
			if d := finderStats.OpportunitiesFound - lastFinder.OpportunitiesFound; d > 0 {
				o.metrics.OpportunitiesFound.Add(float64(d))
			}
			if d := finderStats.OpportunitiesExpired - lastFinder.OpportunitiesExpired; d > 0 {
				o.metrics.OpportunitiesExpired.Add(float64(d))
			}
			lastFinder = finderStats
			o.metrics.ActiveOpportunities.Set(float64(len(o.finder.Current())))

			recStats := o.recorder.Stats()
			if d := recStats.RecordsWritten - lastRecorder.RecordsWritten; d > 0 {
				o.metrics.RecordsWritten.WithLabelValues("postgres").Add(float64(d))
			}
			if d := recStats.RecordsDropped - lastRecorder.RecordsDropped; d > 0 {
				o.metrics.RecordsDropped.WithLabelValues("write_queue_full").Add(float64(d))
			}
			if d := recStats.WriteFailures - lastRecorder.WriteFailures; d > 0 {
				o.metrics.WriteFailures.WithLabelValues("postgres").Add(float64(d))
			}
			lastRecorder = recStats

			for venue, a := range o.adapters {
				net := a.NetworkStats()
				if net.BytesReceived > lastBytesRecv[venue] {
					o.metrics.NetworkBytesReceived.WithLabelValues(venue).Add(float64(net.BytesReceived - lastBytesRecv[venue]))
					lastBytesRecv[venue] = net.BytesReceived
				}
				if net.BytesSent > lastBytesSent[venue] {
					o.metrics.NetworkBytesSent.WithLabelValues(venue).Add(float64(net.BytesSent - lastBytesSent[venue]))
					lastBytesSent[venue] = net.BytesSent
				}
				rc := a.ReconnectStats()
				if rc.ReconnectCount > lastReconnects[venue] {
					o.metrics.ReconnectCount.WithLabelValues(venue).Add(float64(rc.ReconnectCount - lastReconnects[venue]))
					lastReconnects[venue] = rc.ReconnectCount
				}
			}

			for _, status := range o.healthMon.Status(time.Now()) {
				o.metrics.VenueHealth.WithLabelValues(status.Venue).Set(metrics.VenueHealthValue(string(status.Status)))
			}
		}
	}
}

func (o *Orchestrator) refreshDisplay() {
	current := o.finder.Current()
	o.display.Update(current, time.Now())
}

// Rows returns the most recent tick's per-symbol best-spread rows, for
// callers outside the analysis loop (e.g. a terminal dashboard).
func (o *Orchestrator) Rows() []Row {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Row, len(o.latest))
	copy(out, o.latest)
	return out
}

// Stop halts every background loop, disconnects adapters within a bounded
// grace period, flushes the history writer's in-flight batch, and shuts
// down the HTTP API.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	o.mu.Unlock()

	// Enqueue whatever completed buckets remain before stopping the writer:
	// its shutdown path drains the write-intent queue and flushes the final
	// batch, so records queued here still reach the store.
	o.recorder.FlushCompletedBuckets(time.Now())

	close(o.stop)

	if o.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
		if err := o.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http api shutdown error")
		}
		cancel()
		<-o.httpDone
	}

	o.wg.Wait()

	disconnectCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	for venue, a := range o.adapters {
		if err := a.Disconnect(disconnectCtx); err != nil {
			log.Warn().Str("venue", venue).Err(err).Msg("adapter disconnect error")
		}
	}

	log.Info().Msg("arbitrage monitor stopped")
	return nil
}
