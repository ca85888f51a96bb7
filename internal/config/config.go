// Package config loads and validates the monitor's runtime configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HistoryConfig groups the History Recorder's sampling/flush/retention knobs.
type HistoryConfig struct {
	IntervalSeconds      int    `yaml:"interval_seconds"`
	Strategy             string `yaml:"strategy"` // max | mean | latest
	BatchSize            int    `yaml:"batch_size"`
	BatchTimeoutSeconds  int    `yaml:"batch_timeout_seconds"`
	QueueMaxSize         int    `yaml:"queue_maxsize"`
	CleanupIntervalHours int    `yaml:"cleanup_interval_hours"`
	CompressAfterDays    int    `yaml:"compress_after_days"`
	ArchiveAfterDays     int    `yaml:"archive_after_days"`
	CSVArchiveEnabled    bool   `yaml:"csv_archive_enabled"`
	CSVArchiveDir        string `yaml:"csv_archive_dir"`
}

// DatabaseConfig describes the Postgres connection used by the history repo.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	Enabled         bool          `yaml:"enabled"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// HTTPConfig controls the read-only health/metrics HTTP surface.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// MonitorConfig is the complete, validated runtime configuration.
type MonitorConfig struct {
	Exchanges []string `yaml:"exchanges"`
	Symbols   []string `yaml:"symbols"`

	MinSpreadPct       float64 `yaml:"min_spread_pct"`
	MinFundingRateDiff float64 `yaml:"min_funding_rate_diff"`

	WSPingInterval         time.Duration `yaml:"ws_ping_interval"`
	WSReconnectDelay       time.Duration `yaml:"ws_reconnect_delay"`
	WSMaxReconnectAttempts int           `yaml:"ws_max_reconnect_attempts"`

	OrderbookQueueSize int `yaml:"orderbook_queue_size"`
	TickerQueueSize    int `yaml:"ticker_queue_size"`
	AnalysisQueueSize  int `yaml:"analysis_queue_size"`

	AnalysisIntervalMS  int `yaml:"analysis_interval_ms"`
	UIRefreshIntervalMS int `yaml:"ui_refresh_interval_ms"`

	DataTimeoutSeconds int `yaml:"data_timeout_seconds"`

	History  HistoryConfig  `yaml:"spread_history"`
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// DefaultConfig returns the configuration with every default named in the
// configuration surface: two queue sizes, interval defaults and history
// recorder defaults all mirror the documented option table.
func DefaultConfig() MonitorConfig {
	return MonitorConfig{
		Exchanges:              []string{},
		Symbols:                []string{},
		MinSpreadPct:           0.1,
		MinFundingRateDiff:     0.01,
		WSPingInterval:         30 * time.Second,
		WSReconnectDelay:       5 * time.Second,
		WSMaxReconnectAttempts: 5,
		OrderbookQueueSize:     1000,
		TickerQueueSize:        500,
		AnalysisQueueSize:      100,
		AnalysisIntervalMS:     10,
		UIRefreshIntervalMS:    1000,
		DataTimeoutSeconds:     30,
		History: HistoryConfig{
			IntervalSeconds:      60,
			Strategy:             "max",
			BatchSize:            100,
			BatchTimeoutSeconds:  10,
			QueueMaxSize:         500,
			CleanupIntervalHours: 24,
			CompressAfterDays:    10,
			ArchiveAfterDays:     30,
			CSVArchiveEnabled:    false,
			CSVArchiveDir:        "data/archive",
		},
		Database: DatabaseConfig{
			Enabled:         false,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			QueryTimeout:    5 * time.Second,
		},
		HTTP: HTTPConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// LoadConfig reads a YAML file if it exists, layering it over DefaultConfig,
// then applies ARBMON_* environment overrides.
func LoadConfig(path string) (MonitorConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	ApplyEnvOverrides(&cfg)
	return cfg, nil
}

// ApplyEnvOverrides reads ARBMON_* environment variables over the supplied
// config, following the db.AppConfig env-override convention of reading a
// handful of well-known keys rather than reflecting over every field.
func ApplyEnvOverrides(cfg *MonitorConfig) {
	if v := os.Getenv("ARBMON_EXCHANGES"); v != "" {
		cfg.Exchanges = splitCSV(v)
	}
	if v := os.Getenv("ARBMON_SYMBOLS"); v != "" {
		cfg.Symbols = splitCSV(v)
	}
	if v := os.Getenv("ARBMON_MIN_SPREAD_PCT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinSpreadPct = f
		}
	}
	if v := os.Getenv("ARBMON_PG_DSN"); v != "" {
		cfg.Database.DSN = v
		cfg.Database.Enabled = true
	}
	if v := os.Getenv("ARBMON_PG_ENABLED"); v != "" {
		cfg.Database.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("ARBMON_HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = p
		}
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate enforces the invariants required by every downstream component:
// at least two exchanges (the Spread Calculator needs pairs), at least one
// symbol, and strictly positive queue/interval values.
func (c MonitorConfig) Validate() error {
	if len(c.Exchanges) < 2 {
		return fmt.Errorf("at least 2 exchanges required, got %d", len(c.Exchanges))
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least 1 symbol required")
	}
	if c.OrderbookQueueSize <= 0 || c.TickerQueueSize <= 0 || c.AnalysisQueueSize <= 0 {
		return fmt.Errorf("queue sizes must be positive")
	}
	if c.AnalysisIntervalMS <= 0 || c.UIRefreshIntervalMS <= 0 {
		return fmt.Errorf("analysis_interval_ms and ui_refresh_interval_ms must be positive")
	}
	if c.DataTimeoutSeconds <= 0 {
		return fmt.Errorf("data_timeout_seconds must be positive")
	}
	if c.History.IntervalSeconds <= 0 {
		return fmt.Errorf("spread_history.interval_seconds must be positive")
	}
	switch c.History.Strategy {
	case "max", "mean", "latest":
	default:
		return fmt.Errorf("spread_history.strategy must be one of max|mean|latest, got %q", c.History.Strategy)
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn required when database.enabled is true")
	}
	return nil
}
