// client.go streams tinycron lifecycle events to a collector over a
// persistent WebSocket connection.
//
// Connection lifecycle:
//  1. Connect to ws(s)://collector/path?token=...
//  2. Write queued events; a read loop detects the peer closing
//  3. On disconnect, wait with exponential backoff (1s to 5m, +/-30% jitter)
//  4. Reconnect and resume sending from the queue
//
// Events are queued while disconnected. When the queue is full the oldest
// event is dropped, so a long outage costs history rather than memory.
//
// Usage:
//
//	wsClient := websocket.NewClient(url, token, logger)
//	dispatcher.AddSink("websocket", wsClient)
//	go wsClient.Run(ctx)
//	// Later...
//	wsClient.Stop()
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/guojianbin/TinyCron/internal/notify"
)

// Exponential backoff configuration for reconnection
const (
	initialBackoff = 1 * time.Second // Start with 1 second delay
	maxBackoff     = 5 * time.Minute // Cap at 5 minutes
	backoffFactor  = 2.0             // Double each attempt
	jitterFactor   = 0.3             // +/- 30% random jitter
)

// DefaultQueueSize is the number of events held while disconnected.
const DefaultQueueSize = 256

const writeTimeout = 10 * time.Second

// Client manages the WebSocket connection to the event collector.
type Client struct {
	serverURL string
	token     string
	logger    *slog.Logger

	queueMu sync.Mutex
	queue   []queued
	seq     uint64
	limit   int
	dropped uint64
	wake    chan struct{}

	mu       sync.Mutex      // Protects conn, running and stopChan
	conn     *websocket.Conn // Current WebSocket connection
	running  bool
	stopChan chan struct{}
}

type queued struct {
	seq  uint64
	data []byte
}

// NewClient creates a new WebSocket client. serverURL must use the ws or
// wss scheme; token is sent as the token query parameter when set.
func NewClient(serverURL, token string, logger *slog.Logger) *Client {
	return &Client{
		serverURL: serverURL,
		token:     token,
		logger:    logger.With(slog.String("component", "websocket")),
		limit:     DefaultQueueSize,
		wake:      make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
	}
}

// Publish queues ev for delivery. It never blocks on the network.
func (c *Client) Publish(_ context.Context, ev notify.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	c.enqueue(data)
	return nil
}

func (c *Client) enqueue(data []byte) {
	c.queueMu.Lock()
	if len(c.queue) >= c.limit {
		c.queue = c.queue[1:]
		c.dropped++
	}
	c.seq++
	c.queue = append(c.queue, queued{seq: c.seq, data: data})
	c.queueMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// next returns the oldest queued message without removing it.
func (c *Client) next() (queued, bool) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if len(c.queue) == 0 {
		return queued{}, false
	}
	return c.queue[0], true
}

// ack removes the message with seq from the head of the queue unless it
// was dropped while being written.
func (c *Client) ack(seq uint64) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if len(c.queue) > 0 && c.queue[0].seq == seq {
		c.queue = c.queue[1:]
	}
}

// Pending returns the number of queued events and how many were dropped.
func (c *Client) Pending() (queued int, dropped uint64) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return len(c.queue), c.dropped
}

// Run maintains the connection until ctx is cancelled or Stop is called,
// reconnecting with exponential backoff on failure. It should be called
// from a dedicated goroutine.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	c.running = true
	stop := c.stopChan
	c.mu.Unlock()

	c.logger.Info("websocket client starting")

	backoff := initialBackoff

	for {
		// Check for shutdown before each connection attempt
		select {
		case <-ctx.Done():
			c.logger.Info("websocket client stopping: context cancelled")
			return nil
		case <-stop:
			c.logger.Info("websocket client stopping: stop requested")
			return nil
		default:
		}

		conn, err := c.connect(ctx)
		if err != nil {
			c.logger.Warn("websocket connection failed",
				slog.String("error", err.Error()),
				slog.Duration("backoff", backoff),
			)

			// Wait with backoff before retry
			select {
			case <-ctx.Done():
				return nil
			case <-stop:
				return nil
			case <-time.After(backoff):
			}

			backoff = nextBackoff(backoff)
			continue
		}

		// Connection successful - reset backoff
		backoff = initialBackoff

		// Blocks until the connection drops or we are told to stop
		c.serve(ctx, conn, stop)

		c.logger.Info("websocket connection closed, will reconnect")
	}
}

// connect establishes a WebSocket connection to the collector.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	wsURL, err := c.buildWebSocketURL()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("websocket connected")
	return conn, nil
}

// buildWebSocketURL adds the token query parameter to the collector URL.
func (c *Client) buildWebSocketURL() (string, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return "", err
	}

	// Accept http(s) for convenience
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// serve writes queued events until the connection fails. A separate read
// loop notices the collector closing the connection.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	// Ensure connection is closed when we exit
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				c.logger.Debug("websocket read error", slog.String("error", err.Error()))
				return
			}
		}
	}()

	for {
		for {
			msg, ok := c.next()
			if !ok {
				break
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				c.logger.Debug("websocket write error", slog.String("error", err.Error()))
				return
			}
			c.ack(msg.seq)
		}

		select {
		case <-ctx.Done():
			c.closeGracefully(conn)
			return
		case <-stop:
			c.closeGracefully(conn)
			return
		case <-readDone:
			return
		case <-c.wake:
		}
	}
}

func (c *Client) closeGracefully(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// IsConnected reports whether a connection is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Stop signals the Run loop to exit. Safe to call more than once.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	close(c.stopChan)
	c.running = false

	c.logger.Info("websocket client stopped")
}

// Shutdown implements the shutdown.Shutdowner interface for coordinated shutdown.
func (c *Client) Shutdown(ctx context.Context) error {
	c.Stop()
	return nil
}

// nextBackoff computes the next backoff duration with jitter.
// Formula: min(current * factor +/- 30%, maxBackoff)
func nextBackoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * backoffFactor)

	jitter := float64(next) * jitterFactor * (2*rand.Float64() - 1)
	next = time.Duration(float64(next) + jitter)

	if next > maxBackoff {
		next = maxBackoff
	}

	return next
}
