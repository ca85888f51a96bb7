package orchestrator

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptocj520/arbmon/internal/adapters"
	"github.com/cryptocj520/arbmon/internal/config"
)

// fakeAdapter records the subscriptions the orchestrator registers so a test
// can push quotes through the full ingestion pipeline by invoking them.
type fakeAdapter struct {
	venue      string
	connectErr error

	obSub adapters.OrderbookSubscription
	tkSub adapters.TickerSubscription
}

func (f *fakeAdapter) Venue() string { return f.venue }

func (f *fakeAdapter) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakeAdapter) Disconnect(ctx context.Context) error { return nil }

func (f *fakeAdapter) SubscribeOrderbook(symbol string, sub adapters.OrderbookSubscription) error {
	f.obSub = sub
	return nil
}

func (f *fakeAdapter) SubscribeTicker(symbol string, sub adapters.TickerSubscription) error {
	f.tkSub = sub
	return nil
}

func (f *fakeAdapter) NetworkStats() adapters.NetworkStats { return adapters.NetworkStats{} }

func (f *fakeAdapter) ReconnectStats() adapters.ReconnectStats { return adapters.ReconnectStats{} }

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) config.MonitorConfig {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Exchanges = []string{"alpha", "beta"}
	cfg.Symbols = []string{"BTC-USDC-PERP"}
	cfg.MinSpreadPct = 0.01
	cfg.AnalysisIntervalMS = 5
	cfg.UIRefreshIntervalMS = 50
	cfg.History.CSVArchiveDir = t.TempDir()
	cfg.HTTP.Port = freePort(t)
	return cfg
}

func testMappers() (map[string]adapters.Adapter, map[string]adapters.SymbolMapper, *fakeAdapter, *fakeAdapter) {
	alpha := &fakeAdapter{venue: "alpha"}
	beta := &fakeAdapter{venue: "beta"}
	venueAdapters := map[string]adapters.Adapter{"alpha": alpha, "beta": beta}
	mappers := map[string]adapters.SymbolMapper{
		"alpha": adapters.NewStaticSymbolMap(map[string]string{"BTC-USDC-PERP": "BTCALPHA"}),
		"beta":  adapters.NewStaticSymbolMap(map[string]string{"BTC-USDC-PERP": "BTCBETA"}),
	}
	return venueAdapters, mappers, alpha, beta
}

func TestStartStop_CleanLifecycle(t *testing.T) {
	venueAdapters, mappers, _, _ := testMappers()
	o := New(testConfig(t), venueAdapters, mappers, nil, nil)

	require.NoError(t, o.Start(context.Background()))

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Stop(stopCtx))
}

func TestStart_AdapterConnectFailureAborts(t *testing.T) {
	venueAdapters, mappers, alpha, _ := testMappers()
	alpha.connectErr = errors.New("venue unreachable")
	o := New(testConfig(t), venueAdapters, mappers, nil, nil)

	err := o.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alpha")
}

func TestPipeline_QuotesFlowToBestSpreadRows(t *testing.T) {
	venueAdapters, mappers, alpha, beta := testMappers()
	o := New(testConfig(t), venueAdapters, mappers, nil, nil)

	require.NoError(t, o.Start(context.Background()))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.Stop(stopCtx)
	}()

	require.NotNil(t, alpha.obSub.OnSymbolArg)
	require.NotNil(t, beta.obSub.OnSymbolArg)

	// alpha asks 60010, beta bids 60050: buy alpha, sell beta.
	alpha.obSub.OnSymbolArg("BTCALPHA", adapters.OrderbookPayload{
		Bid: "60000", BidSize: "1", Ask: "60010", AskSize: "1",
	})
	beta.obSub.OnSymbolArg("BTCBETA", adapters.OrderbookPayload{
		Bid: "60050", BidSize: "1", Ask: "60060", AskSize: "1",
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rows := o.Rows()
		if len(rows) == 1 && rows[0].BestSpreadPct > 0 {
			assert.Equal(t, "BTC-USDC-PERP", rows[0].Symbol)
			assert.InDelta(t, 0.0666, rows[0].BestSpreadPct, 0.0005)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("best-spread row never reflected the injected quotes")
}
