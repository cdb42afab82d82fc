package model

import "github.com/google/uuid"

type EventKind int16

const (
	Connected    EventKind = iota + 1 // [SYSTEM]
	Disconnected                      // [SYSTEM]
	MessageReceived                   // [BUSINESS]
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case MessageReceived:
		return "msg-recieve" // wire name kept as the legacy clients expect it
	default:
		return "unknown"
	}
}

type EventPriority int32

const (
	PriorityLow    EventPriority = 10
	PriorityNormal EventPriority = 20
	PriorityHigh   EventPriority = 30
)

// Eventer defines the contract for all data packets flowing through the Hub.
type Eventer interface {
	GetID() string
	GetKind() EventKind
	GetUserID() uuid.UUID
	GetPriority() EventPriority
	GetOccurredAt() int64
	GetPayload() any
	GetCached() any
	SetCached(any)
}
