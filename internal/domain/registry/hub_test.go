package registry

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/snappy-im/snappy-server/internal/domain/model"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return NewHub(
		WithMailboxSize(16),
		WithSendTimeout(50*time.Millisecond),
		WithIdleTimeout(time.Minute),
		WithEvictionInterval(time.Hour),
	)
}

func newTestMessage(from, to uuid.UUID, text string) *model.Message {
	return &model.Message{
		ID:        uuid.New(),
		From:      from,
		To:        to,
		Text:      text,
		CreatedAt: time.Now().UnixMilli(),
	}
}

func recvEvent(t *testing.T, conn Connector) model.Eventer {
	t.Helper()
	select {
	case ev, ok := <-conn.Recv():
		require.True(t, ok)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

func requireNoEvent(t *testing.T, conn Connector) {
	t.Helper()
	select {
	case ev := <-conn.Recv():
		t.Fatalf("unexpected delivery: %v", ev.GetID())
	case <-time.After(150 * time.Millisecond):
	}
}

func Test_Lookup_Before_Register_Is_Absent(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	defer hub.Shutdown()

	_, ok := hub.Lookup(uuid.New())
	req.False(ok)
	req.False(hub.IsConnected(uuid.New()))
}

func Test_Register_Is_Last_Write_Wins(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	defer hub.Shutdown()

	alice := uuid.New()
	h1 := NewConnector(context.Background(), alice, 8)
	h2 := NewConnector(context.Background(), alice, 8)

	hub.Register(h1)
	got, ok := hub.Lookup(alice)
	req.True(ok)
	req.Equal(h1.GetID(), got.GetID())

	hub.Register(h2)
	got, ok = hub.Lookup(alice)
	req.True(ok)
	req.Equal(h2.GetID(), got.GetID())

	// The abandoned handle is closed by the hub.
	select {
	case <-h1.Done():
	case <-time.After(time.Second):
		t.Fatal("abandoned handle was not closed")
	}
}

func Test_Unregister_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	defer hub.Shutdown()

	alice := uuid.New()
	conn := NewConnector(context.Background(), alice, 8)
	hub.Register(conn)

	hub.Unregister(alice, conn.GetID())
	_, ok := hub.Lookup(alice)
	req.False(ok)

	// Calling again, and for users never registered, must not panic or error.
	hub.Unregister(alice, conn.GetID())
	hub.Unregister(uuid.New(), uuid.New())
}

func Test_Stale_Unregister_Keeps_Successor(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	defer hub.Shutdown()

	alice := uuid.New()
	h1 := NewConnector(context.Background(), alice, 8)
	h2 := NewConnector(context.Background(), alice, 8)

	hub.Register(h1)
	hub.Register(h2)

	// H1's session noticing its disconnect late must not evict H2.
	hub.Unregister(alice, h1.GetID())

	got, ok := hub.Lookup(alice)
	req.True(ok)
	req.Equal(h2.GetID(), got.GetID())
}

func Test_Deliver_Writes_Exactly_Once(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	defer hub.Shutdown()

	alice, bob := uuid.New(), uuid.New()
	conn := NewConnector(context.Background(), alice, 8)
	hub.Register(conn)

	msg := newTestMessage(bob, alice, "hi")
	req.True(hub.Deliver(model.NewMessageEvent(msg, alice)))

	ev := recvEvent(t, conn)
	req.Equal(msg.ID.String(), ev.GetID())
	req.Equal(msg, ev.GetPayload())
	requireNoEvent(t, conn)
}

func Test_Deliver_To_Offline_Is_Silent_NoOp(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	defer hub.Shutdown()

	msg := newTestMessage(uuid.New(), uuid.New(), "nobody home")
	req.False(hub.Deliver(model.NewMessageEvent(msg, msg.To)))
}

func Test_Offline_Recipient_Scenario(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	defer hub.Shutdown()

	alice, bob := uuid.New(), uuid.New()
	aliceConn := NewConnector(context.Background(), alice, 8)
	hub.Register(aliceConn)

	// Bob delivers to Alice while she is online.
	first := newTestMessage(bob, alice, "hi")
	hub.Deliver(model.NewMessageEvent(first, alice))
	ev := recvEvent(t, aliceConn)
	req.Equal("hi", ev.GetPayload().(*model.Message).Text)

	// Alice disconnects; a second delivery still "succeeds" without a write.
	hub.Unregister(alice, aliceConn.GetID())
	second := newTestMessage(bob, alice, "hi2")
	hub.Deliver(model.NewMessageEvent(second, alice))
	requireNoEvent(t, aliceConn)
}

func Test_Reconnect_Delivers_To_Newest_Handle_Only(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	defer hub.Shutdown()

	alice := uuid.New()
	h1 := NewConnector(context.Background(), alice, 8)
	h2 := NewConnector(context.Background(), alice, 8)

	hub.Register(h1)
	// Reconnect without H1 ever disconnecting.
	hub.Register(h2)

	msg := newTestMessage(uuid.New(), alice, "after reconnect")
	req.True(hub.Deliver(model.NewMessageEvent(msg, alice)))

	ev := recvEvent(t, h2)
	req.Equal(msg.ID.String(), ev.GetID())

	select {
	case <-h1.Recv():
		t.Fatal("abandoned handle received a write")
	case <-time.After(150 * time.Millisecond):
	}
}

func Test_Evict_Drops_Current_Connection(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	defer hub.Shutdown()

	alice := uuid.New()
	conn := NewConnector(context.Background(), alice, 8)
	hub.Register(conn)

	hub.Evict(alice)
	req.False(hub.IsConnected(alice))

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("evicted connection was not closed")
	}

	// Evicting an absent user is a no-op.
	hub.Evict(alice)
}

func Test_Concurrent_Registry_Operations(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	defer hub.Shutdown()

	const workers = 32
	users := make([]uuid.UUID, 4)
	for i := range users {
		users[i] = uuid.New()
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				u := users[(seed+i)%len(users)]
				switch i % 3 {
				case 0:
					conn := NewConnector(context.Background(), u, 4)
					hub.Register(conn)
				case 1:
					if conn, ok := hub.Lookup(u); ok {
						// Any observed handle must belong to the user.
						if conn.GetUserID() != u {
							panic(fmt.Sprintf("lookup returned foreign handle for %s", u))
						}
					}
				case 2:
					if conn, ok := hub.Lookup(u); ok {
						hub.Unregister(u, conn.GetID())
					}
				}
			}
		}(w)
	}
	wg.Wait()

	// The table settles into a consistent state: a final registration is
	// always observable afterwards.
	final := NewConnector(context.Background(), users[0], 4)
	hub.Register(final)
	got, ok := hub.Lookup(users[0])
	req.True(ok)
	req.Equal(final.GetID(), got.GetID())
}

func Test_Mailbox_Overflow_Sheds_Instead_Of_Blocking(t *testing.T) {
	req := require.New(t)
	hub := NewHub(
		WithMailboxSize(1),
		WithSendTimeout(10*time.Millisecond),
		WithEvictionInterval(time.Hour),
	)
	defer hub.Shutdown()

	alice := uuid.New()
	// Buffer of one and nobody draining: the pipeline saturates quickly.
	conn := NewConnector(context.Background(), alice, 1)
	hub.Register(conn)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			msg := newTestMessage(uuid.New(), alice, "burst")
			hub.Deliver(model.NewMessageEvent(msg, alice))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deliver blocked on a slow consumer")
	}
	req.True(hub.Stats().DroppedLocal > 0)
}

func Test_Dead_Handle_Is_Detached_On_Write_Failure(t *testing.T) {
	req := require.New(t)
	hub := NewHub(
		WithMailboxSize(8),
		WithSendTimeout(10*time.Millisecond),
		WithEvictionInterval(time.Hour),
	)
	defer hub.Shutdown()

	alice := uuid.New()
	conn := NewConnector(context.Background(), alice, 8)
	hub.Register(conn)

	// Transport dies without the session ever calling Unregister.
	conn.Close()

	msg := newTestMessage(uuid.New(), alice, "into the void")
	hub.Deliver(model.NewMessageEvent(msg, alice))

	// The failed write unregisters the dead handle.
	req.Eventually(func() bool {
		return !hub.IsConnected(alice)
	}, 2*time.Second, 20*time.Millisecond)
}

func Test_ReRegistration_Does_Not_Leak_Goroutines(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	defer hub.Shutdown()

	alice := uuid.New()
	before := runtime.NumGoroutine()

	const reconnects = 500
	for i := 0; i < reconnects; i++ {
		hub.Register(NewConnector(context.Background(), alice, 8))
	}

	// One cell loop per user, not one per reconnect. A generous slack
	// absorbs runtime noise; the broken behavior leaks ~one goroutine per
	// iteration and blows far past it.
	req.Eventually(func() bool {
		runtime.GC()
		return runtime.NumGoroutine() < before+20
	}, 5*time.Second, 50*time.Millisecond)

	req.True(hub.IsConnected(alice))
}

func Test_Register_Racing_Unregister_Never_Loses_The_Newcomer(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	defer hub.Shutdown()

	alice := uuid.New()

	// Unregistering the old handle concurrently with registering a new one
	// must leave the newcomer reachable in every interleaving: no
	// serialization of the two calls ends with the user absent.
	for i := 0; i < 2000; i++ {
		c1 := NewConnector(context.Background(), alice, 8)
		hub.Register(c1)

		c2 := NewConnector(context.Background(), alice, 8)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.Unregister(alice, c1.GetID())
		}()
		go func() {
			defer wg.Done()
			hub.Register(c2)
		}()
		wg.Wait()

		got, ok := hub.Lookup(alice)
		req.True(ok, "iteration %d: registered user vanished", i)
		req.Equal(c2.GetID(), got.GetID(), "iteration %d: lookup returned the unregistered handle", i)

		hub.Evict(alice)
	}
}

func Test_Stopped_Cell_Refuses_Attach(t *testing.T) {
	req := require.New(t)

	var stats counters
	cell := NewCell(uuid.New(), 8, 50*time.Millisecond, &stats)
	cell.Stop()

	_, ok := cell.Attach(NewConnector(context.Background(), uuid.New(), 8))
	req.False(ok, "a stopped cell must not accept registrations")
}

func Test_StopIfEmpty_Spares_A_Cell_That_Regained_A_Connection(t *testing.T) {
	req := require.New(t)

	var stats counters
	alice := uuid.New()
	cell := NewCell(alice, 8, 50*time.Millisecond, &stats)
	defer cell.Stop()

	c1 := NewConnector(context.Background(), alice, 8)
	_, ok := cell.Attach(c1)
	req.True(ok)
	req.True(cell.Detach(c1.GetID()), "cell should be empty after detach")

	// A registration lands between the detach and the teardown decision.
	c2 := NewConnector(context.Background(), alice, 8)
	_, ok = cell.Attach(c2)
	req.True(ok)

	req.False(cell.StopIfEmpty(), "occupied cell must survive the teardown check")

	_, ok = cell.Attach(NewConnector(context.Background(), alice, 8))
	req.True(ok, "cell must still be live after the spared teardown")
}
