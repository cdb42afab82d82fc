package model

import (
	"time"

	"github.com/google/uuid"
)

// Interface guard
var _ Eventer = (*SystemEvent)(nil)

// ConnectedPayload is sent to the client once its identification event has
// been accepted and the presence mapping is in place.
type ConnectedPayload struct {
	Ok            bool   `json:"ok"`
	ConnectionID  string `json:"connection_id"`
	ServerVersion string `json:"server_version"`
}

// DisconnectedPayload is the notification pushed before the server closes
// the session.
type DisconnectedPayload struct {
	Reason string `json:"reason"`
	Code   string `json:"code,omitempty"` // "SHUTDOWN", "EVICTED", "REPLACED"
}

// SystemEvent is a static container for service-generated signals.
type SystemEvent struct {
	ID         string
	UserID     uuid.UUID
	Kind       EventKind
	Priority   EventPriority
	OccurredAt int64
	Payload    any
	cached     any
}

func (e *SystemEvent) GetID() string              { return e.ID }
func (e *SystemEvent) GetKind() EventKind         { return e.Kind }
func (e *SystemEvent) GetUserID() uuid.UUID       { return e.UserID }
func (e *SystemEvent) GetPriority() EventPriority { return e.Priority }
func (e *SystemEvent) GetOccurredAt() int64       { return e.OccurredAt }
func (e *SystemEvent) GetPayload() any            { return e.Payload }
func (e *SystemEvent) GetCached() any             { return e.cached }
func (e *SystemEvent) SetCached(v any)            { e.cached = v }

// NewConnectedEvent creates the handshake acknowledgement signal.
func NewConnectedEvent(userID uuid.UUID, connID string) *SystemEvent {
	return &SystemEvent{
		ID:         uuid.NewString(),
		UserID:     userID,
		Kind:       Connected,
		Priority:   PriorityNormal,
		OccurredAt: time.Now().UnixMilli(),
		Payload: &ConnectedPayload{
			Ok:            true,
			ConnectionID:  connID,
			ServerVersion: ServerVersion,
		},
	}
}

// NewDisconnectedEvent creates the termination signal sent on the way out.
func NewDisconnectedEvent(userID uuid.UUID, reason, code string) *SystemEvent {
	return &SystemEvent{
		ID:         uuid.NewString(),
		UserID:     userID,
		Kind:       Disconnected,
		Priority:   PriorityHigh,
		OccurredAt: time.Now().UnixMilli(),
		Payload: &DisconnectedPayload{
			Reason: reason,
			Code:   code,
		},
	}
}
