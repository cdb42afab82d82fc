package registry

import "time"

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithMailboxSize sets the buffer capacity of each user's actor mailbox.
func WithMailboxSize(size int) Option {
	return func(h *Hub) {
		h.config.mailboxSize = size
	}
}

// WithSendTimeout bounds how long a cell waits on a saturated session buffer
// before shedding. Keeps a stalled consumer from retaining the delivery loop.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.config.sendTimeout = d
	}
}

// WithIdleTimeout defines the quiet period after which a connection-less cell
// becomes eligible for eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.config.idleTimeout = d
	}
}

// WithEvictionInterval configures how often the janitor runs.
func WithEvictionInterval(d time.Duration) Option {
	return func(h *Hub) {
		h.config.evictionInterval = d
	}
}
