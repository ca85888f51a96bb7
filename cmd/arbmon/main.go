// Command arbmon runs the real-time cross-venue perpetual-futures arbitrage
// monitor: it connects to every configured venue, computes cross-venue
// spreads on a tight interval, tracks opportunities, samples them to history,
// and serves a read-only health/metrics HTTP surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/cryptocj520/arbmon/internal/adapters"
	"github.com/cryptocj520/arbmon/internal/adapters/binance"
	"github.com/cryptocj520/arbmon/internal/adapters/kraken"
	"github.com/cryptocj520/arbmon/internal/config"
	"github.com/cryptocj520/arbmon/internal/domain"
	"github.com/cryptocj520/arbmon/internal/health"
	"github.com/cryptocj520/arbmon/internal/history"
	"github.com/cryptocj520/arbmon/internal/httpapi"
	"github.com/cryptocj520/arbmon/internal/metrics"
	"github.com/cryptocj520/arbmon/internal/orchestrator"
	"github.com/cryptocj520/arbmon/internal/persistence/db"
)

const version = "v0.1.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	var configPath string

	rootCmd := &cobra.Command{
		Use:     "arbmon",
		Short:   "Real-time cross-venue perpetual-futures arbitrage monitor",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")
	// Accept snake_case spellings of any flag, matching the config file's
	// key style.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the monitor: connect venues, compute spreads, serve /health and /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(configPath)
		},
	}

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Start only the HTTP health/metrics server, without connecting to any venue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthServer(configPath)
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate the monitor's configuration",
	}
	configValidateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file without connecting to any venue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(configPath)
		},
	}
	configCmd.AddCommand(configValidateCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.RunE = runCmd.RunE

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("arbmon exited with error")
		os.Exit(1)
	}
}

func runConfigValidate(path string) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fmt.Printf("configuration valid: %d exchanges, %d symbols, min_spread_pct=%.3f\n",
		len(cfg.Exchanges), len(cfg.Symbols), cfg.MinSpreadPct)
	return nil
}

// runHealthServer starts the read-only HTTP surface alone, with no venue
// adapters and no analysis loop behind it: the health monitor is never
// touched, so every health check returns an empty venue list, and
// /opportunities always returns empty. Useful for smoke-testing the HTTP
// layer or running a standalone liveness probe alongside an externally
// managed `run` process.
func runHealthServer(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	reg := metrics.NewRegistry()
	healthMon := health.NewMonitor(
		time.Duration(cfg.DataTimeoutSeconds/3)*time.Second,
		time.Duration(cfg.DataTimeoutSeconds)*time.Second,
	)

	noOpportunities := func() []domain.Opportunity { return nil }

	srv, err := httpapi.NewServer(cfg.HTTP, reg, noOpportunities, func() []health.VenueStatus {
		return healthMon.Status(time.Now())
	})
	if err != nil {
		return fmt.Errorf("starting http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	log.Info().
		Int("http_port", cfg.HTTP.Port).
		Msg("arbmon health server running, press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server stopped: %w", err)
		}
		return nil
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return srv.Shutdown(stopCtx)
}

// supportedAdapters maps a venue name to its concrete Adapter constructor.
// Venues in cfg.Exchanges without an entry here are logged and skipped: the
// monitor degrades to the remaining venues rather than refusing to start,
// mirroring the Venue Adapter contract's per-venue independence.
type adapterFactory struct {
	newAdapter func() adapters.Adapter
	mapper     func(adapters.Adapter) adapters.SymbolMapper
}

var supportedAdapters = map[string]adapterFactory{
	"kraken": {
		newAdapter: func() adapters.Adapter { return kraken.New("") },
		mapper:     func(a adapters.Adapter) adapters.SymbolMapper { return a.(*kraken.Adapter).Mapper() },
	},
	"binance": {
		newAdapter: func() adapters.Adapter { return binance.New("") },
		mapper:     func(a adapters.Adapter) adapters.SymbolMapper { return a.(*binance.Adapter).Mapper() },
	},
}

func runMonitor(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	venueAdapters := make(map[string]adapters.Adapter)
	mappers := make(map[string]adapters.SymbolMapper)
	for _, venue := range cfg.Exchanges {
		factory, ok := supportedAdapters[venue]
		if !ok {
			log.Warn().Str("venue", venue).Msg("no adapter implementation for configured exchange, skipping")
			continue
		}
		a := factory.newAdapter()
		venueAdapters[venue] = a
		mappers[venue] = factory.mapper(a)
	}
	if len(venueAdapters) < 2 {
		return fmt.Errorf("fewer than 2 usable venue adapters (%d configured exchanges, %d supported)", len(cfg.Exchanges), len(venueAdapters))
	}

	dbManager, err := db.NewManager(cfg.Database)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer dbManager.Close()

	var repo history.Repo
	if dbManager.IsEnabled() {
		repo = dbManager.History()
	}

	var csvSink *history.CSVSink
	if cfg.History.CSVArchiveEnabled {
		csvSink, err = history.NewCSVSink(cfg.History.CSVArchiveDir)
		if err != nil {
			return fmt.Errorf("initializing CSV archive: %w", err)
		}
		defer csvSink.Close()
	}

	orch := orchestrator.New(cfg, venueAdapters, mappers, repo, csvSink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("starting monitor: %w", err)
	}

	log.Info().
		Int("venues", len(venueAdapters)).
		Int("symbols", len(cfg.Symbols)).
		Int("http_port", cfg.HTTP.Port).
		Msg("arbmon running, press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return orch.Stop(stopCtx)
}
