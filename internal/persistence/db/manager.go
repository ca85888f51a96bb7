// Package db manages the Postgres connection pool backing the sampled
// history store: disabled by default, opened and pinged eagerly at
// construction, health and pool stats available through Health().
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/cryptocj520/arbmon/internal/config"
	"github.com/cryptocj520/arbmon/internal/persistence/postgres"
)

// Manager owns the *sqlx.DB and the history repo built on top of it.
type Manager struct {
	db      *sqlx.DB
	cfg     config.DatabaseConfig
	history *postgres.HistoryRepo
	health  *healthChecker
}

// NewManager opens and pings the database if cfg.Enabled; otherwise returns
// a disabled Manager whose History() returns nil and whose Health()
// checker is a no-op.
func NewManager(cfg config.DatabaseConfig) (*Manager, error) {
	if !cfg.Enabled {
		return &Manager{cfg: cfg, health: &healthChecker{enabled: false}}, nil
	}

	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when enabled")
	}

	sdb, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sdb.SetMaxOpenConns(cfg.MaxOpenConns)
	sdb.SetMaxIdleConns(cfg.MaxIdleConns)
	sdb.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sdb.PingContext(ctx); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Manager{
		db:      sdb,
		cfg:     cfg,
		history: postgres.NewHistoryRepo(sdb, cfg.QueryTimeout),
		health:  &healthChecker{enabled: true, db: sdb, timeout: cfg.QueryTimeout},
	}, nil
}

// History returns the sampled-history repo, or nil if persistence is disabled.
func (m *Manager) History() *postgres.HistoryRepo {
	return m.history
}

// IsEnabled reports whether database persistence is active.
func (m *Manager) IsEnabled() bool {
	return m.cfg.Enabled && m.db != nil
}

// Close closes the underlying connection pool.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Health returns the database health checker (ping and pool statistics).
func (m *Manager) Health() Health {
	return m.health
}

// Health reports database health and connection-pool statistics.
type Health interface {
	Ping(ctx context.Context) error
	Stats() map[string]interface{}
}

type healthChecker struct {
	enabled bool
	db      *sqlx.DB
	timeout time.Duration
}

func (h *healthChecker) Ping(ctx context.Context) error {
	if !h.enabled {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.db.PingContext(pingCtx)
}

func (h *healthChecker) Stats() map[string]interface{} {
	if !h.enabled {
		return map[string]interface{}{"enabled": false}
	}
	s := h.db.Stats()
	return map[string]interface{}{
		"enabled":          true,
		"max_open":         s.MaxOpenConnections,
		"open":             s.OpenConnections,
		"in_use":           s.InUse,
		"idle":             s.Idle,
		"wait_count":       s.WaitCount,
		"wait_duration_ms": s.WaitDuration.Milliseconds(),
	}
}
