package ws

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/snappy-im/snappy-server/internal/domain/registry"
	"github.com/snappy-im/snappy-server/internal/service"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T) (*httptest.Server, registry.Hubber) {
	t.Helper()
	hub := registry.NewHub(
		registry.WithMailboxSize(16),
		registry.WithSendTimeout(50*time.Millisecond),
		registry.WithEvictionInterval(time.Hour),
	)
	t.Cleanup(hub.Shutdown)

	deliverer := service.NewDeliveryService(hub, slog.Default(), 8)
	srv := httptest.NewServer(NewWSHandler(slog.Default(), deliverer))
	t.Cleanup(srv.Close)
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame map[string]string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev map[string]any
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func Test_AddUser_Acknowledges_With_Connected_Event(t *testing.T) {
	req := require.New(t)
	srv, hub := newWSServer(t)

	alice := uuid.New()
	conn := dial(t, srv)
	send(t, conn, map[string]string{"event": "add-user", "userId": alice.String()})

	ev := readEvent(t, conn)
	req.Equal("connected", ev["event"])

	payload := ev["payload"].(map[string]any)
	req.Equal(true, payload["ok"])
	req.NotEmpty(payload["connection_id"])

	req.Eventually(func() bool { return hub.IsConnected(alice) }, 2*time.Second, 10*time.Millisecond)
}

func Test_SendMsg_Reaches_Online_Recipient(t *testing.T) {
	req := require.New(t)
	srv, _ := newWSServer(t)

	alice, bob := uuid.New(), uuid.New()

	bobConn := dial(t, srv)
	send(t, bobConn, map[string]string{"event": "add-user", "userId": bob.String()})
	readEvent(t, bobConn) // connected ack

	aliceConn := dial(t, srv)
	send(t, aliceConn, map[string]string{"event": "add-user", "userId": alice.String()})
	readEvent(t, aliceConn)

	send(t, aliceConn, map[string]string{
		"event": "send-msg",
		"to":    bob.String(),
		"msg":   "hi bob",
	})

	ev := readEvent(t, bobConn)
	req.Equal("msg-recieve", ev["event"])

	payload := ev["payload"].(map[string]any)
	req.Equal("hi bob", payload["message"])
	req.Equal(alice.String(), payload["from"])
}

func Test_SendMsg_To_Offline_Recipient_Is_Silent(t *testing.T) {
	srv, _ := newWSServer(t)

	alice := uuid.New()
	conn := dial(t, srv)
	send(t, conn, map[string]string{"event": "add-user", "userId": alice.String()})
	readEvent(t, conn)

	send(t, conn, map[string]string{
		"event": "send-msg",
		"to":    uuid.NewString(),
		"msg":   "anyone",
	})

	// Nothing comes back and the socket stays healthy.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var ev map[string]any
	require.Error(t, conn.ReadJSON(&ev))
}

func Test_Reconnect_Closes_Previous_Socket(t *testing.T) {
	req := require.New(t)
	srv, hub := newWSServer(t)

	alice := uuid.New()

	first := dial(t, srv)
	send(t, first, map[string]string{"event": "add-user", "userId": alice.String()})
	readEvent(t, first)

	second := dial(t, srv)
	send(t, second, map[string]string{"event": "add-user", "userId": alice.String()})
	readEvent(t, second)

	// The first socket receives a close frame once its handle is replaced.
	req.NoError(first.SetReadDeadline(time.Now().Add(2 * time.Second)))
	for {
		_, _, err := first.ReadMessage()
		if err != nil {
			req.True(websocket.IsCloseError(err, websocket.ClosePolicyViolation) ||
				websocket.IsUnexpectedCloseError(err), "unexpected error: %v", err)
			break
		}
	}

	// And presence still points at the survivor.
	req.True(hub.IsConnected(alice))
}

func Test_Disconnect_Unregisters_Exactly_That_Connection(t *testing.T) {
	req := require.New(t)
	srv, hub := newWSServer(t)

	alice := uuid.New()
	conn := dial(t, srv)
	send(t, conn, map[string]string{"event": "add-user", "userId": alice.String()})
	readEvent(t, conn)
	req.Eventually(func() bool { return hub.IsConnected(alice) }, 2*time.Second, 10*time.Millisecond)

	req.NoError(conn.Close())
	req.Eventually(func() bool { return !hub.IsConnected(alice) }, 2*time.Second, 10*time.Millisecond)
}

func Test_Malformed_Frame_Does_Not_Kill_Session(t *testing.T) {
	req := require.New(t)
	srv, _ := newWSServer(t)

	alice := uuid.New()
	conn := dial(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, conn, map[string]string{"event": "add-user", "userId": alice.String()})

	ev := readEvent(t, conn)
	req.Equal("connected", ev["event"])
}

func Test_ClientFrame_Field_Names_Stay_Stable(t *testing.T) {
	raw := []byte(`{"event":"send-msg","from":"a","to":"b","msg":"hi"}`)
	var frame ClientFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	require.Equal(t, "send-msg", frame.Event)
	require.Equal(t, "hi", frame.Msg)
}
