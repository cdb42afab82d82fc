package model

import (
	"time"

	"github.com/google/uuid"
)

// Activity topics routed through the in-process event bus.
const (
	TopicActivity       = "snappy.activity.v1"
	TopicMessageCreated = "snappy.message.created.v1"
)

type ActivityStatus string

const (
	ActivitySuccess ActivityStatus = "SUCCESS"
	ActivityFailure ActivityStatus = "FAILURE"
)

// ActivityEvent is an audit-trail record emitted by the request path and
// persisted asynchronously by the activity pipeline.
type ActivityEvent struct {
	ID         string            `json:"id"`
	UserID     uuid.UUID         `json:"user_id,omitempty"`
	Action     string            `json:"action"` // "login", "register", "logout", "message_sent", ...
	Status     ActivityStatus    `json:"status"`
	RemoteIP   string            `json:"remote_ip,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	OccurredAt int64             `json:"occurred_at"`
}

func NewActivityEvent(userID uuid.UUID, action string, status ActivityStatus) *ActivityEvent {
	return &ActivityEvent{
		ID:         uuid.NewString(),
		UserID:     userID,
		Action:     action,
		Status:     status,
		OccurredAt: time.Now().UnixMilli(),
	}
}

// RoutingKey implements the contract the event dispatcher publishes on.
func (e *ActivityEvent) RoutingKey() string { return TopicActivity }

// MessageCreatedEvent is published on the bus after a message has been
// persisted, independently of the live-delivery outcome.
type MessageCreatedEvent struct {
	Message *Message `json:"message"`
}

func (e *MessageCreatedEvent) RoutingKey() string { return TopicMessageCreated }
