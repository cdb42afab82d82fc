// Package ws carries the live push channel. A session starts anonymous:
// the socket is upgraded first, and only an add-user frame binds it to a
// user and registers it for delivery.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/snappy-im/snappy-server/internal/domain/model"
	"github.com/snappy-im/snappy-server/internal/domain/registry"
	wsmarshaller "github.com/snappy-im/snappy-server/internal/handler/marshaller/ws"
	"github.com/snappy-im/snappy-server/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 4096
	sendAckTimeout = time.Second
)

// ClientFrame is every inbound frame the client may send. Field names match
// what the web client emits.
type ClientFrame struct {
	Event  string `json:"event"`
	UserID string `json:"userId,omitempty"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Msg    string `json:"msg,omitempty"`
}

type WSHandler struct {
	logger    *slog.Logger
	deliverer service.Deliverer
	upgrader  websocket.Upgrader
}

func NewWSHandler(logger *slog.Logger, deliverer service.Deliverer) *WSHandler {
	return &WSHandler{
		logger:    logger,
		deliverer: deliverer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", slog.Any("error", err))
		return
	}

	s := &session{
		handler: h,
		ws:      ws,
	}
	s.run(r.Context())
}

// session owns one socket. conn stays nil until the client identifies
// itself; unbinding happens exactly once, on the way out of run.
type session struct {
	handler *WSHandler
	ws      *websocket.Conn

	userID uuid.UUID
	conn   registry.Connector
}

func (s *session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer s.ws.Close()

	defer func() {
		if s.conn != nil {
			s.handler.deliverer.Unsubscribe(s.userID, s.conn.GetID())
		}
	}()

	s.ws.SetReadLimit(maxFrameSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.handler.logger.Debug("ws read failed", slog.Any("error", err))
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.handler.logger.Warn("ws frame decode failed", slog.Any("error", err))
			continue
		}

		switch frame.Event {
		case "add-user":
			if err := s.bind(ctx, cancel, frame); err != nil {
				s.handler.logger.Warn("ws bind rejected", slog.Any("error", err))
				return
			}
		case "send-msg":
			s.relay(frame)
		default:
			s.handler.logger.Debug("ws unknown event", slog.String("event", frame.Event))
		}
	}
}

// bind registers the session for delivery and starts the write pump.
// One identity per socket: clients wanting a different user open a new
// connection, so a repeated add-user is ignored.
func (s *session) bind(ctx context.Context, cancel context.CancelFunc, frame ClientFrame) error {
	userID, err := uuid.Parse(frame.UserID)
	if err != nil {
		return err
	}

	if s.conn != nil {
		s.handler.logger.Debug("ws duplicate add-user ignored",
			slog.String("user_id", userID.String()))
		return nil
	}

	conn, err := s.handler.deliverer.Subscribe(ctx, userID)
	if err != nil {
		return err
	}
	s.userID = userID
	s.conn = conn

	go s.writePump(cancel, conn)

	conn.Send(model.NewConnectedEvent(userID, conn.GetID().String()), sendAckTimeout)

	s.handler.logger.Info("ws session bound",
		slog.String("user_id", userID.String()),
		slog.String("conn_id", conn.GetID().String()),
	)
	return nil
}

// relay pushes a chat message to its recipient's live session, if any.
// Persistence is the REST surface's job; this path only moves bytes.
func (s *session) relay(frame ClientFrame) {
	if s.conn == nil {
		s.handler.logger.Warn("ws relay before bind dropped")
		return
	}

	to, err := uuid.Parse(frame.To)
	if err != nil {
		s.handler.logger.Warn("ws relay bad recipient", slog.String("to", frame.To))
		return
	}

	from := s.userID
	if frame.From != "" {
		if parsed, err := uuid.Parse(frame.From); err == nil {
			from = parsed
		}
	}

	s.handler.deliverer.Deliver(to, &model.Message{
		ID:        uuid.New(),
		From:      from,
		To:        to,
		Text:      frame.Msg,
		CreatedAt: time.Now().UnixMilli(),
	})
}

// writePump drains the registry handle onto the socket. Any write failure
// cancels the session, which unwinds the read loop and triggers the
// unregistration in run.
func (s *session) writePump(cancel context.CancelFunc, conn registry.Connector) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer cancel()

	for {
		select {
		case <-conn.Done():
			// Evicted or replaced. Say goodbye so the client knows not to
			// retry this socket.
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session replaced"))
			return

		case ev, ok := <-conn.Recv():
			if !ok {
				return
			}
			data, err := wsmarshaller.MarshallDeliveryEvent(ev)
			if err != nil {
				s.handler.logger.Error("ws marshal failed", slog.Any("error", err))
				continue
			}
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				s.handler.logger.Debug("ws write failed", slog.Any("error", err))
				return
			}

		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
