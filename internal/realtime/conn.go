package realtime

import (
	"sync"
)

// Conn represents one live duplex channel bound to an authenticated identity.
//
// Design notes:
//   - send is intentionally NOT closed by the server to avoid panics from
//     concurrent fan-out writers.
//   - done signals the owning goroutines to stop; Close is idempotent.
//   - All writes to the underlying socket go through a single writer goroutine
//     draining Outbound, which serializes frames per connection.
type Conn struct {
	ID       string
	Identity string

	send chan []byte
	done chan struct{}

	closeOnce sync.Once

	mu    sync.RWMutex
	attrs map[string]string
}

// NewConn constructs a Conn with a bounded outbound queue.
func NewConn(id, identity string, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}
	return &Conn{
		ID:       id,
		Identity: identity,
		send:     make(chan []byte, queueSize),
		done:     make(chan struct{}),
	}
}

// Done returns a channel closed when the connection is shutting down.
func (c *Conn) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// IsOpen reports whether the connection has not been closed yet.
func (c *Conn) IsOpen() bool {
	if c == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Close signals shutdown (idempotent). It does NOT close the send queue so
// concurrent broadcasters stay panic-safe.
func (c *Conn) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// TrySend enqueues a payload without blocking.
// It returns false when the connection is shutting down or the queue is full;
// the caller decides whether that counts as a delivery failure.
func (c *Conn) TrySend(payload []byte) bool {
	if c == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Outbound exposes the queue drained by the connection's writer goroutine.
func (c *Conn) Outbound() <-chan []byte { return c.send }

// SetAttr stores an arbitrary attribute (e.g. a cached display name).
func (c *Conn) SetAttr(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attrs == nil {
		c.attrs = make(map[string]string, 2)
	}
	c.attrs[key] = value
}

// Attr returns a previously stored attribute.
func (c *Conn) Attr(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attrs[key]
}
