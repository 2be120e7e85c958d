// Package nats publishes tinycron lifecycle events to a NATS server.
//
// Features:
//   - Optional NKey authentication (public-key cryptography)
//   - Unlimited reconnects with a reconnect buffer, so events raised
//     during a broker outage are sent once it returns
//   - Core NATS publishing to <subject>.<event type>
//
// Usage:
//
//	client := nats.NewClient(cfg, logger)
//	err := client.Connect(ctx)
//	defer client.Close()
//	dispatcher.AddSink("nats", nats.NewPublisher(client, cfg.Subject, logger))
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"
)

// ErrNotConnected is returned when publishing before Connect.
var ErrNotConnected = errors.New("nats: not connected")

// Config holds NATS connection configuration.
type Config struct {
	Servers  string // Comma-separated list of NATS server URLs
	NKeySeed string // NKey seed for authentication (starts with SU); empty for none
	Name     string // Connection name shown in server monitoring
}

// Client manages the NATS connection.
type Client struct {
	config    Config
	nc        *nats.Conn
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
}

// NewClient creates a new NATS client with the given configuration.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Name == "" {
		cfg.Name = "tinycron"
	}
	return &Client{
		config: cfg,
		logger: logger.With(slog.String("component", "nats")),
	}
}

// options builds the connection options, including NKey auth when a seed
// is configured.
func (c *Client) options() ([]nats.Option, error) {
	opts := []nats.Option{
		nats.Name(c.config.Name),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),                 // Unlimited reconnects
		nats.ReconnectBufSize(1 * 1024 * 1024), // 1MB buffer for reconnect
		nats.RetryOnFailedConnect(true),
		nats.PingInterval(30 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.ConnectHandler(func(nc *nats.Conn) {
			c.setConnected(true)
			c.logger.Info("NATS connected", slog.String("server", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			c.setConnected(false)
			if err != nil {
				c.logger.Warn("NATS disconnected", slog.String("error", err.Error()))
			} else {
				c.logger.Info("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.setConnected(true)
			c.logger.Info("NATS reconnected", slog.String("server", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			// sub is nil for connection-level errors
			if sub != nil {
				c.logger.Error("NATS error",
					slog.String("error", err.Error()),
					slog.String("subject", sub.Subject),
				)
			} else {
				c.logger.Error("NATS error", slog.String("error", err.Error()))
			}
		}),
	}

	if c.config.NKeySeed != "" {
		kp, err := nkeys.FromSeed([]byte(c.config.NKeySeed))
		if err != nil {
			return nil, fmt.Errorf("invalid nkey seed: %w", err)
		}
		pubKey, err := kp.PublicKey()
		if err != nil {
			return nil, fmt.Errorf("failed to get public key: %w", err)
		}
		opts = append(opts, nats.Nkey(pubKey, func(nonce []byte) ([]byte, error) {
			return kp.Sign(nonce)
		}))
	}

	return opts, nil
}

// Connect dials the configured servers. With RetryOnFailedConnect an
// unreachable server is not an error; the client keeps trying in the
// background and buffers publishes meanwhile.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts, err := c.options()
	if err != nil {
		return err
	}

	nc, err := nats.Connect(c.config.Servers, opts...)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}

	c.mu.Lock()
	c.nc = nc
	c.connected = nc.IsConnected()
	c.mu.Unlock()

	if !nc.IsConnected() {
		c.logger.Warn("NATS unreachable, will keep retrying",
			slog.String("servers", c.config.Servers),
		)
	}
	return nil
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// IsConnected returns whether the client is currently connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.nc != nil && c.nc.IsConnected()
}

// Publish sends data on subject via core NATS (fire-and-forget).
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	nc := c.nc
	c.mu.RUnlock()

	if nc == nil {
		return ErrNotConnected
	}
	if err := nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		return nil
	}
	err := c.nc.Drain()
	c.nc = nil
	c.connected = false
	return err
}

// Shutdown flushes pending events then closes the connection. It
// implements shutdown.Shutdowner.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.RLock()
	nc := c.nc
	c.mu.RUnlock()

	if nc != nil && nc.IsConnected() {
		if err := nc.FlushWithContext(ctx); err != nil {
			c.logger.Warn("NATS flush failed", slog.String("error", err.Error()))
		}
	}
	return c.Close()
}
