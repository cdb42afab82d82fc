/*
Package registry implements the presence registry: the in-memory mapping from
user identity to the live connection the user registered most recently.

Key architectural concepts:
  - Virtual cells: every online user is represented by an isolated 'Cell'
    (actor) owning the delivery loop for that identity. Registration is
    last-write-wins: attaching a new connection abandons the previous one.
  - Decoupling and backpressure: a bounded per-user mailbox absorbs bursts so
    slow consumers never block the sender's request path.
  - Concurrency: lock-free lookups via sync.Map plus a fine-grained mutex
    inside each cell; there is no global lock to contend on.

Presence state has process lifetime only. Nothing here is persisted and a
restart starts from an empty table.
*/
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/snappy-im/snappy-server/internal/domain/model"
)

// counters aggregates delivery outcomes across all cells for HubStats.
type counters struct {
	delivered uint64
	dropped   uint64
}

// Cell owns delivery for a single user. It holds at most one live connector:
// the most recent registration wins, older handles are handed back to the Hub
// for closing.
type Cell struct {
	userID uuid.UUID

	// mailbox decouples the relay from the transport write. Bounded so a
	// saturated consumer sheds instead of growing without limit.
	mailbox chan model.Eventer

	mu      sync.RWMutex
	conn    Connector
	stopped bool

	doneCh   chan struct{}
	stopOnce sync.Once

	sendTimeout    time.Duration
	lastActivityAt time.Time
	stats          *counters
}

func NewCell(userID uuid.UUID, mailboxSize int, sendTimeout time.Duration, stats *counters) *Cell {
	c := &Cell{
		userID:         userID,
		mailbox:        make(chan model.Eventer, mailboxSize),
		doneCh:         make(chan struct{}),
		sendTimeout:    sendTimeout,
		lastActivityAt: time.Now(),
		stats:          stats,
	}
	go c.loop()
	return c
}

// Attach installs conn as the user's current connection and returns the
// abandoned predecessor, if any. The caller owns closing it. A stopped cell
// refuses the attach: the caller must unmap it and start over with a fresh
// cell, otherwise a registration could land on a cell whose loop is gone.
func (c *Cell) Attach(conn Connector) (Connector, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil, false
	}
	old := c.conn
	c.conn = conn
	c.lastActivityAt = time.Now()
	return old, true
}

// Detach removes the connection only if connID still identifies the current
// one. A stale disconnect of an already-replaced handle must not evict the
// successor registration. Returns true when the cell is left empty.
func (c *Cell) Detach(connID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && c.conn.GetID() == connID {
		c.conn = nil
	}
	c.lastActivityAt = time.Now()
	return c.conn == nil
}

// Conn returns the current connection handle, if any. Non-blocking beyond the
// critical section; never observes a partially-applied registration.
func (c *Cell) Conn() (Connector, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn, c.conn != nil
}

// Push enqueues an event for asynchronous delivery. Fire-and-forget relative
// to the caller: false means the mailbox is saturated, not a caller error.
func (c *Cell) Push(ev model.Eventer) bool {
	c.touch()
	select {
	case c.mailbox <- ev:
		return true
	default:
		atomic.AddUint64(&c.stats.dropped, 1)
		return false
	}
}

func (c *Cell) touch() {
	c.mu.Lock()
	c.lastActivityAt = time.Now()
	c.mu.Unlock()
}

func (c *Cell) loop() {
	for {
		select {
		case <-c.doneCh:
			return
		case ev := <-c.mailbox:
			c.deliver(ev)
		}
	}
}

// deliver pushes one event to the current connection. A write refused because
// the transport already died is treated as a disconnect: the dead handle is
// detached so it cannot shadow a future registration.
func (c *Cell) deliver(ev model.Eventer) {
	conn, ok := c.Conn()
	if !ok {
		// Recipient went offline between Push and delivery. Silent no-op.
		return
	}

	select {
	case <-conn.Done():
		// The transport died without a clean detach. Drop the stale entry so
		// it cannot shadow a future registration.
		atomic.AddUint64(&c.stats.dropped, 1)
		c.Detach(conn.GetID())
		return
	default:
	}

	if conn.Send(ev, c.sendTimeout) {
		atomic.AddUint64(&c.stats.delivered, 1)
		return
	}

	atomic.AddUint64(&c.stats.dropped, 1)

	select {
	case <-conn.Done():
		c.Detach(conn.GetID())
	default:
		// Still alive, just saturated. Keep the registration.
	}
}

// stopLocked marks the cell dead and releases the loop. Callers hold mu.
func (c *Cell) stopLocked() {
	c.stopped = true
	c.stopOnce.Do(func() {
		close(c.doneCh)
	})
}

func (c *Cell) Stop() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
}

// StopIfEmpty stops the cell only while it holds no connection. The check
// and the stop share one critical section so a registration landing in
// between keeps the cell alive instead of being torn down underneath.
func (c *Cell) StopIfEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return false
	}
	c.stopLocked()
	return true
}

// StopIfIdle is StopIfEmpty with a quiet-period requirement, for the
// janitor sweep.
func (c *Cell) StopIfIdle(timeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil || time.Since(c.lastActivityAt) <= timeout {
		return false
	}
	c.stopLocked()
	return true
}

// Drain stops the cell unconditionally and hands back whatever connection it
// held so the caller can close it.
func (c *Cell) Drain() Connector {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn := c.conn
	c.conn = nil
	c.stopLocked()
	return conn
}
