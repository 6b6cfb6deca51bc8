package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// BusConfig configures message bus client behavior.
type BusConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultBusConfig returns default bus client configuration.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// BusClient consumes deduplicated market messages from the upstream bus
// over a websocket connection. Messages arrive as subject-tagged JSON
// envelopes; each subscribed subject gets its own delivery channel.
type BusClient struct {
	endpoint string
	config   BusConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// subs maps subject to delivery channel
	subs   map[string]chan []byte
	subsMu sync.RWMutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// busEnvelope is the wire format for both directions: outgoing subscribe
// requests carry op+subject, incoming messages carry subject+data.
type busEnvelope struct {
	Op      string          `json:"op,omitempty"`
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewBusClient creates a new bus client and connects to the endpoint.
func NewBusClient(ctx context.Context, endpoint string, config *BusConfig) (*BusClient, error) {
	cfg := DefaultBusConfig()
	if config != nil {
		cfg = *config
	}

	c := &BusClient{
		endpoint: endpoint,
		config:   cfg,
		subs:     make(map[string]chan []byte),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	// Start reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	// Start ping goroutine
	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes the websocket connection.
func (c *BusClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// Subscribe registers interest in a subject and returns the channel
// messages for that subject are delivered on. Subscribing to the same
// subject twice returns an error.
func (c *BusClient) Subscribe(subject string) (<-chan []byte, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	c.subsMu.Lock()
	if _, exists := c.subs[subject]; exists {
		c.subsMu.Unlock()
		return nil, fmt.Errorf("already subscribed to %q", subject)
	}
	// Large buffer absorbs bursts; blocking send ensures no message loss.
	ch := make(chan []byte, 10000)
	c.subs[subject] = ch
	c.subsMu.Unlock()

	if err := c.writeSubscribe(subject); err != nil {
		c.subsMu.Lock()
		delete(c.subs, subject)
		c.subsMu.Unlock()
		return nil, err
	}

	return ch, nil
}

// writeSubscribe sends a subscribe envelope for the subject.
func (c *BusClient) writeSubscribe(subject string) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(busEnvelope{Op: "subscribe", Subject: subject}); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// Close closes the websocket connection and all delivery channels.
func (c *BusClient) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.subsMu.Lock()
	for subject, ch := range c.subs {
		close(ch)
		delete(c.subs, subject)
	}
	c.subsMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads messages from the websocket and dispatches to subscribers.
func (c *BusClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *BusClient) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	// Wait before reconnecting
	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	// Close existing connection
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	// Resubscribe to all active subjects
	c.subsMu.RLock()
	subjects := make([]string, 0, len(c.subs))
	for subject := range c.subs {
		subjects = append(subjects, subject)
	}
	c.subsMu.RUnlock()

	for _, subject := range subjects {
		if err := c.writeSubscribe(subject); err != nil {
			// Failed resubscribe surfaces as a silent subject; next
			// read error triggers another reconnect cycle.
			return
		}
	}
}

// handleMessage dispatches an incoming envelope to its subject channel.
func (c *BusClient) handleMessage(message []byte) {
	var env busEnvelope
	if err := json.Unmarshal(message, &env); err != nil || env.Subject == "" {
		return
	}

	c.subsMu.RLock()
	ch, ok := c.subs[env.Subject]
	c.subsMu.RUnlock()

	if ok {
		// Block until we can send - never drop messages
		select {
		case ch <- env.Data:
		case <-c.done:
			return
		}
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *BusClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			c.connMu.Unlock()
		}
	}
}
