package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/snappy-im/snappy-server/internal/domain/model"
	"github.com/snappy-im/snappy-server/internal/domain/registry"
)

// Deliverer is the primary interface for transport handlers and the message
// relay. Subscribe/Unsubscribe bracket a session's lifetime; Deliver is the
// best-effort push toward whoever is online.
type Deliverer interface {
	Subscribe(ctx context.Context, userID uuid.UUID) (registry.Connector, error)
	Unsubscribe(userID, connID uuid.UUID)
	// Deliver pushes the message to the recipient's live connection if there
	// is one. At-most-once, fire-and-forget: an offline recipient or a full
	// pipeline is not an error, and callers cannot tell the cases apart.
	Deliver(recipientID uuid.UUID, msg *model.Message)
}

type DeliveryService struct {
	hub           registry.Hubber
	logger        *slog.Logger
	sessionBuffer int
}

func NewDeliveryService(hub registry.Hubber, logger *slog.Logger, sessionBuffer int) *DeliveryService {
	return &DeliveryService{
		hub:           hub,
		logger:        logger,
		sessionBuffer: sessionBuffer,
	}
}

// Subscribe creates a connection handle bound to userID and registers it.
// Last-registration-wins: a previous handle for the same user is abandoned
// and closed by the hub.
func (s *DeliveryService) Subscribe(ctx context.Context, userID uuid.UUID) (registry.Connector, error) {
	conn := registry.NewConnector(ctx, userID, s.sessionBuffer)
	s.hub.Register(conn)
	return conn, nil
}

func (s *DeliveryService) Unsubscribe(userID, connID uuid.UUID) {
	s.hub.Unregister(userID, connID)
}

func (s *DeliveryService) Deliver(recipientID uuid.UUID, msg *model.Message) {
	if s.hub.Deliver(model.NewMessageEvent(msg, recipientID)) {
		return
	}
	// Recipient offline or pipeline saturated. Persistence already happened
	// upstream; the recipient recovers from the store on next login.
	s.logger.Debug("live delivery skipped",
		slog.String("recipient_id", recipientID.String()),
		slog.String("message_id", msg.ID.String()),
	)
}
