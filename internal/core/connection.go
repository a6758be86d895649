package core

import (
	"errors"
	"sync"
)

// DefaultQueueSize bounds a connection's outbound queue when no size is configured.
const DefaultQueueSize = 64

var (
	errQueueFull  = errors.New("outbound queue full")
	errConnClosed = errors.New("connection closed")
)

// Connection is one duplex channel to a remote participant as seen by the core layer.
// It owns no message data; the transport drains Events until Done is closed.
type Connection struct {
	ID    string
	Actor Actor

	events    chan *Event
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	reason string
}

// NewConnection constructs a connection with a bounded outbound queue.
func NewConnection(id string, actor Actor, queueSize int) *Connection {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if actor.ID == "" {
		actor.ID = id
	}
	if actor.Name == "" {
		actor.Name = actor.ID
	}
	return &Connection{
		ID:     id,
		Actor:  actor,
		events: make(chan *Event, queueSize),
		done:   make(chan struct{}),
	}
}

// Events returns the outbound queue.
func (c *Connection) Events() <-chan *Event {
	return c.events
}

// Done is closed once the connection has been kicked or closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Reason returns why the connection was closed, or "" while it is open.
func (c *Connection) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Kick closes the connection with a reason. Only the first call has effect.
func (c *Connection) Kick(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.done)
	})
}

// enqueue never blocks: a full queue reports errQueueFull so the caller can evict.
func (c *Connection) enqueue(ev *Event) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.events <- ev:
		return nil
	default:
		return errQueueFull
	}
}
