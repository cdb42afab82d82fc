package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/snappy-im/snappy-server/internal/domain/model"
)

// Hubber is the gateway for presence management and event routing.
type Hubber interface {
	// Register installs conn as the user's current connection,
	// last-registration-wins. The abandoned handle, if any, is closed here
	// because its session can no longer reach it.
	Register(conn Connector)
	// Unregister removes the mapping if connID is still current. Safe no-op
	// otherwise; disconnects of replaced handles must not evict successors.
	Unregister(userID, connID uuid.UUID)
	// Evict drops whatever connection the user has. Explicit logout path.
	Evict(userID uuid.UUID)
	Lookup(userID uuid.UUID) (Connector, bool)
	IsConnected(userID uuid.UUID) bool
	// Deliver routes an event to its target user's cell. Returns false on
	// miss or overflow; callers treat either as best-effort done.
	Deliver(ev model.Eventer) bool
	Stats() model.HubStats
	Shutdown()
}

// Interface guard
var _ Hubber = (*Hub)(nil)

type hubConfig struct {
	mailboxSize      int
	sendTimeout      time.Duration
	idleTimeout      time.Duration
	evictionInterval time.Duration
}

// Hub maps userID -> *Cell. Optimized for read-heavy delivery lookups.
type Hub struct {
	cells sync.Map // uuid.UUID -> *Cell

	config    hubConfig
	stats     counters
	startedAt time.Time

	janitorDone chan struct{}
	stopOnce    sync.Once
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		config: hubConfig{
			mailboxSize:      256,
			sendTimeout:      500 * time.Millisecond,
			idleTimeout:      30 * time.Minute,
			evictionInterval: 15 * time.Minute,
		},
		startedAt:   time.Now(),
		janitorDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.janitor()
	return h
}

func (h *Hub) Register(conn Connector) {
	uID := conn.GetUserID()
	for {
		val, ok := h.cells.Load(uID)
		if !ok {
			// Build a cell only on a confirmed miss: NewCell starts the
			// delivery loop, and a loser in LoadOrStore must stop the cell it
			// built or the loop leaks on every reconnect.
			cell := NewCell(uID, h.config.mailboxSize, h.config.sendTimeout, &h.stats)
			actual, loaded := h.cells.LoadOrStore(uID, cell)
			if loaded {
				cell.Stop()
			}
			val = actual
		}

		cell := val.(*Cell)
		old, ok := cell.Attach(conn)
		if !ok {
			// The cell was stopped between lookup and attach by a concurrent
			// unregister or sweep. Unmap the corpse and start over so the
			// registration lands on a live cell.
			h.cells.CompareAndDelete(uID, cell)
			continue
		}

		if old != nil {
			old.Close()
		}
		return
	}
}

func (h *Hub) Unregister(userID, connID uuid.UUID) {
	if val, ok := h.cells.Load(userID); ok {
		cell := val.(*Cell)
		// StopIfEmpty re-checks under the cell lock: a registration that
		// attached after the detach keeps the cell, and the mapping, alive.
		if cell.Detach(connID) && cell.StopIfEmpty() {
			h.cells.CompareAndDelete(userID, cell)
		}
	}
}

func (h *Hub) Evict(userID uuid.UUID) {
	if val, ok := h.cells.Load(userID); ok {
		cell := val.(*Cell)
		if conn := cell.Drain(); conn != nil {
			conn.Close()
		}
		h.cells.CompareAndDelete(userID, cell)
	}
}

func (h *Hub) Lookup(userID uuid.UUID) (Connector, bool) {
	if val, ok := h.cells.Load(userID); ok {
		return val.(*Cell).Conn()
	}
	return nil, false
}

func (h *Hub) IsConnected(userID uuid.UUID) bool {
	_, ok := h.Lookup(userID)
	return ok
}

func (h *Hub) Deliver(ev model.Eventer) bool {
	if val, ok := h.cells.Load(ev.GetUserID()); ok {
		return val.(*Cell).Push(ev)
	}
	return false
}

func (h *Hub) Stats() model.HubStats {
	online := 0
	h.cells.Range(func(_, val any) bool {
		if _, ok := val.(*Cell).Conn(); ok {
			online++
		}
		return true
	})
	return model.HubStats{
		OnlineUsers:  online,
		Uptime:       time.Since(h.startedAt),
		Delivered:    atomic.LoadUint64(&h.stats.delivered),
		DroppedLocal: atomic.LoadUint64(&h.stats.dropped),
	}
}

// janitor periodically reclaims cells that lost their connection without a
// clean detach ever emptying them out.
func (h *Hub) janitor() {
	ticker := time.NewTicker(h.config.evictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.janitorDone:
			return
		case <-ticker.C:
			h.cells.Range(func(key, val any) bool {
				cell := val.(*Cell)
				if cell.StopIfIdle(h.config.idleTimeout) {
					h.cells.CompareAndDelete(key, cell)
				}
				return true
			})
		}
	}
}

// Shutdown stops every cell actor and closes remaining connections. Presence
// is process-scoped; nothing survives for the next start.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.janitorDone)
		h.cells.Range(func(key, val any) bool {
			cell := val.(*Cell)
			if conn := cell.Drain(); conn != nil {
				conn.Close()
			}
			h.cells.Delete(key)
			return true
		})
	})
}
