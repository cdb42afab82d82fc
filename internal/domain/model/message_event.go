package model

import "github.com/google/uuid"

// Interface guard
var _ Eventer = (*MessageEvent)(nil)

// MessageEvent wraps a Message for delivery through the Hub.
//
// It distinguishes between the business peers (message.From/To) and the
// routing target (userID): the physical recipient of this event instance.
// The relay builds one event per recipient, so the Hub only ever needs the
// routing target to find the live connection.
type MessageEvent struct {
	message *Message
	userID  uuid.UUID
	cached  any
}

func NewMessageEvent(msg *Message, userID uuid.UUID) *MessageEvent {
	return &MessageEvent{
		message: msg,
		userID:  userID,
	}
}

func (e *MessageEvent) GetID() string              { return e.message.ID.String() }
func (e *MessageEvent) GetKind() EventKind         { return MessageReceived }
func (e *MessageEvent) GetUserID() uuid.UUID       { return e.userID }
func (e *MessageEvent) GetPriority() EventPriority { return PriorityHigh }
func (e *MessageEvent) GetOccurredAt() int64       { return e.message.CreatedAt }
func (e *MessageEvent) GetPayload() any            { return e.message }

func (e *MessageEvent) GetCached() any  { return e.cached }
func (e *MessageEvent) SetCached(v any) { e.cached = v }
