package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/snappy-im/snappy-server/internal/domain/model"
)

// Interface guard
var _ Connector = (*connect)(nil)

// Connector is the handle the Hub and transport handlers share for one live
// session. The concrete type stays unexported so callers cannot reach the
// internals.
type Connector interface {
	GetID() uuid.UUID
	GetUserID() uuid.UUID
	// Send enqueues an event for the transport pump. Thread-safe; waits up to
	// timeout for buffer space, then falls back to priority shedding.
	Send(ev model.Eventer, timeout time.Duration) bool
	Recv() <-chan model.Eventer
	// Done is closed once the connector is no longer usable. Transport pumps
	// select on it to terminate their write loop.
	Done() <-chan struct{}
	Dropped() uint64
	Close()
}

// ConnectMetadata travels with the session for logging and audit purposes.
type ConnectMetadata struct {
	RemoteIP  string
	UserAgent string
}

type connect struct {
	id        uuid.UUID
	userID    uuid.UUID
	metadata  ConnectMetadata
	createdAt time.Time

	ctx      context.Context
	cancelFn context.CancelFunc

	sendCh chan model.Eventer

	closeOnce    sync.Once
	droppedCount uint64 // atomic
}

// NewConnector binds a fresh session handle to userID. The buffer size bounds
// how many undelivered events a slow consumer may retain.
func NewConnector(ctx context.Context, userID uuid.UUID, bufferSize int) Connector {
	childCtx, cancel := context.WithCancel(ctx)
	return &connect{
		id:        uuid.New(),
		userID:    userID,
		createdAt: time.Now(),
		ctx:       childCtx,
		cancelFn:  cancel,
		sendCh:    make(chan model.Eventer, bufferSize),
	}
}

func (c *connect) GetID() uuid.UUID           { return c.id }
func (c *connect) GetUserID() uuid.UUID       { return c.userID }
func (c *connect) Recv() <-chan model.Eventer { return c.sendCh }
func (c *connect) Done() <-chan struct{}      { return c.ctx.Done() }
func (c *connect) Dropped() uint64            { return atomic.LoadUint64(&c.droppedCount) }

// Send attempts to push an event into the session buffer. It waits up to
// timeout for space so transient jitter does not immediately shed events, but
// never longer: the cell behind a stalled consumer must not be held hostage.
func (c *connect) Send(ev model.Eventer, timeout time.Duration) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	select {
	case c.sendCh <- ev:
		return true
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- ev:
		return true
	case <-ctx.Done():
		return c.shed(ev)
	}
}

// shed handles a saturated buffer: low-priority events are dropped outright,
// otherwise one queued event is evicted to make room for the newer one.
func (c *connect) shed(ev model.Eventer) bool {
	if ev.GetPriority() <= model.PriorityLow {
		atomic.AddUint64(&c.droppedCount, 1)
		return false
	}

	select {
	case old := <-c.sendCh:
		if old.GetPriority() < ev.GetPriority() {
			atomic.AddUint64(&c.droppedCount, 1) // the evicted one
			select {
			case c.sendCh <- ev:
				return true
			default:
			}
		} else {
			// Put the older, equally important event back if there is room.
			select {
			case c.sendCh <- old:
			default:
				atomic.AddUint64(&c.droppedCount, 1)
			}
		}
	default:
	}

	atomic.AddUint64(&c.droppedCount, 1)
	return false
}

// Close terminates the session. Idempotent: the Hub (replacement, eviction,
// shutdown) and the transport handler (defer) may both call it.
//
// The send channel is deliberately left open; cancelling the context is the
// termination signal, and pending Send calls observe it without racing a
// channel close.
func (c *connect) Close() {
	c.closeOnce.Do(func() {
		c.cancelFn()
	})
}
