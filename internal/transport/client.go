// Package transport is the WebSocket gateway that sits in front of a
// simbroker.Client: one connection per strategy/fuzzer, relaying trading
// actions in and ticks/push messages out. This is deliberately outside
// the core's back-pressure contract — the core's tick delivery blocks by
// design (§5), but a slow or gone websocket peer must never stall the
// simulation loop, so every send here is non-blocking and drops on a
// full buffer instead.
package transport

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Client wraps one connected WebSocket peer.
type Client struct {
	ID   uint64
	Conn *websocket.Conn

	mu      sync.RWMutex
	symbols map[string]bool
	allTick bool

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// Dropped counts messages discarded because the send buffer was full
	// — the transport's price for never blocking the simulation loop.
	Dropped uint64
}

var clientIDCounter uint64

// NewClient wraps conn with a bounded, drop-on-full outbound buffer.
func NewClient(conn *websocket.Conn, bufferSize int) *Client {
	return &Client{
		ID:      atomic.AddUint64(&clientIDCounter, 1),
		Conn:    conn,
		symbols: make(map[string]bool),
		sendCh:  make(chan []byte, bufferSize),
		done:    make(chan struct{}),
	}
}

// Subscribe adds symbol names to the client's tick subscription.
func (c *Client) Subscribe(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range names {
		c.symbols[n] = true
	}
}

// IsSubscribed reports whether the client wants ticks for name.
func (c *Client) IsSubscribed(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.allTick || c.symbols[name]
}

// Send enqueues data for delivery. Returns false, and increments
// Dropped, if the outbound buffer is full.
func (c *Client) Send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		atomic.AddUint64(&c.Dropped, 1)
		return false
	}
}

// SendCh returns the send channel for the write pump.
func (c *Client) SendCh() <-chan []byte { return c.sendCh }

// Done returns a channel closed when the client disconnects.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close terminates the connection, idempotently.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}
