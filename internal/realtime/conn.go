package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/foyerlink/foyer-core/internal/auth"
)

// Conn is a live registered connection, transport-agnostic: the session
// gateway owns the socket, the registry owns the Conn.
//
// Outbound delivery is a bounded queue drained by the transport's writer.
// Enqueue never blocks: on overflow the oldest queued message is dropped
// and the connection is flagged unhealthy, so one slow consumer cannot
// stall the publisher or its peers.
type Conn struct {
	// ID is the opaque per-session identity.
	ID string

	// Role tags the connection for fanout scoping.
	Role auth.Role

	// HostID binds a host-role connection to its user id.
	HostID int64

	// DeviceID binds a device connection to its channel name.
	DeviceID string

	send chan []byte

	mu        sync.Mutex
	closed    bool
	verified  bool
	unhealthy bool
}

// NewConn creates a connection with a bounded outbound queue.
// A fresh connection counts as verified until the first liveness sweep.
func NewConn(role auth.Role, hostID int64, deviceID string, queueSize int) *Conn {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Conn{
		ID:       uuid.NewString(),
		Role:     role,
		HostID:   hostID,
		DeviceID: deviceID,
		send:     make(chan []byte, queueSize),
		verified: true,
	}
}

// Enqueue appends a message to the outbound queue without blocking.
// On a full queue the oldest message is dropped to make room and the
// connection is flagged unhealthy. Returns false if the message was
// not cleanly queued (connection closed, or a drop was needed).
func (c *Conn) Enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
	}

	// Queue full: drop oldest, then retry once.
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- msg:
	default:
	}

	c.unhealthy = true
	return false
}

// Outbound returns the channel the transport writer drains.
// The channel is closed when the connection closes.
func (c *Conn) Outbound() <-chan []byte {
	return c.send
}

// Close shuts the outbound queue. Safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Closed reports whether the connection has been closed.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Confirm records a liveness response (e.g. a pong) and clears the
// unhealthy flag.
func (c *Conn) Confirm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verified = true
	c.unhealthy = false
}

// markUnverified clears the liveness flag at the start of a sweep cycle.
func (c *Conn) markUnverified() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verified = false
}

// Verified reports whether the connection responded since the last sweep.
func (c *Conn) Verified() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verified
}

// FlagUnhealthy marks the connection for scrutiny at the next sweep.
// Called on delivery failures.
func (c *Conn) FlagUnhealthy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unhealthy = true
}

// Unhealthy reports whether delivery problems have been observed since
// the last confirmed liveness response.
func (c *Conn) Unhealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unhealthy
}

// queueFull reports whether the outbound queue has no free slots.
func (c *Conn) queueFull() bool {
	return len(c.send) == cap(c.send)
}
