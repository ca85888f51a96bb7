// Package wsbase provides the shared WebSocket dial/ping/reconnect helper
// used by reference venue adapters: a thin wrapper over gorilla/websocket
// that adds a circuit breaker around the dial path and a token-bucket pacer
// around keepalive pings. A failed dial is retried after a fixed
// ReconnectDelay.
package wsbase

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Config configures a Client's dial, ping and reconnect behavior.
type Config struct {
	Venue                string
	URL                  string
	PingInterval         time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// Client manages a single gorilla/websocket connection with automatic
// reconnect, a gobreaker circuit that trips after repeated dial failures,
// and a rate limiter that paces keepalive pings.
type Client struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	pinger  *rate.Limiter

	conn *websocket.Conn

	bytesReceived int64
	bytesSent     int64
	reconnects    int64
}

// New constructs a Client. The breaker opens after 5 consecutive dial
// failures and half-opens after ReconnectDelay.
func New(cfg Config) *Client {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("wsbase-%s", cfg.Venue),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.ReconnectDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("ws circuit breaker state change")
		},
	})

	return &Client{
		cfg:     cfg,
		breaker: breaker,
		pinger:  rate.NewLimiter(rate.Every(cfg.PingInterval), 1),
	}
}

// Dial opens the connection through the circuit breaker. A tripped breaker
// returns gobreaker.ErrOpenState without attempting the network call.
func (c *Client) Dial(ctx context.Context) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("dialing %s (%s): %w", c.cfg.Venue, c.cfg.URL, err)
		}
		c.conn = conn
		return nil, nil
	})
	return err
}

// Close closes the underlying connection, if any.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// ReadMessage reads the next message and tallies bytes received.
func (c *Client) ReadMessage() (messageType int, data []byte, err error) {
	if c.conn == nil {
		return 0, nil, fmt.Errorf("wsbase: read on nil connection for %s", c.cfg.Venue)
	}
	messageType, data, err = c.conn.ReadMessage()
	if err == nil {
		atomic.AddInt64(&c.bytesReceived, int64(len(data)))
	}
	return messageType, data, err
}

// WriteMessage writes a message and tallies bytes sent.
func (c *Client) WriteMessage(messageType int, data []byte) error {
	if c.conn == nil {
		return fmt.Errorf("wsbase: write on nil connection for %s", c.cfg.Venue)
	}
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		return err
	}
	atomic.AddInt64(&c.bytesSent, int64(len(data)))
	return nil
}

// MaybePing sends a ping frame if the pacer allows it this instant; it is
// meant to be polled from the adapter's read loop rather than driven by its
// own ticker, so pacing stays centralized in the rate limiter.
func (c *Client) MaybePing() error {
	if !c.pinger.Allow() {
		return nil
	}
	return c.WriteMessage(websocket.PingMessage, nil)
}

// RunWithReconnect dials, invokes onMessage for every message read, and
// redials whenever a read fails, until ctx is canceled or
// MaxReconnectAttempts consecutive dials have failed. A failed dial is
// retried after ReconnectDelay; the redial after a failed read is immediate.
func (c *Client) RunWithReconnect(ctx context.Context, onMessage func([]byte)) error {
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.Dial(ctx); err != nil {
			attempts++
			atomic.AddInt64(&c.reconnects, 1)
			if attempts >= c.cfg.MaxReconnectAttempts {
				return fmt.Errorf("wsbase: %s exceeded %d reconnect attempts: %w", c.cfg.Venue, c.cfg.MaxReconnectAttempts, err)
			}
			log.Warn().Str("venue", c.cfg.Venue).Int("attempt", attempts).Err(err).Msg("ws dial failed, backing off")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.ReconnectDelay):
			}
			continue
		}

		attempts = 0
		for {
			if err := c.MaybePing(); err != nil {
				log.Debug().Str("venue", c.cfg.Venue).Err(err).Msg("ping failed")
			}
			_, data, err := c.ReadMessage()
			if err != nil {
				log.Warn().Str("venue", c.cfg.Venue).Err(err).Msg("ws read failed, reconnecting")
				break
			}
			onMessage(data)

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
	}
}

// NetworkStats returns cumulative bytes transferred.
func (c *Client) NetworkStats() (received, sent int64) {
	return atomic.LoadInt64(&c.bytesReceived), atomic.LoadInt64(&c.bytesSent)
}

// ReconnectCount returns the cumulative number of reconnect attempts.
func (c *Client) ReconnectCount() int64 {
	return atomic.LoadInt64(&c.reconnects)
}
