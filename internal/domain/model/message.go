package model

import (
	"strings"

	"github.com/google/uuid"
)

// Message is the core conversation entity. Records are append-only: once
// persisted they are never mutated, regardless of the live-delivery outcome.
type Message struct {
	ID        uuid.UUID `json:"id"`
	From      uuid.UUID `json:"from"`
	To        uuid.UUID `json:"to"`
	Text      string    `json:"text"`
	CreatedAt int64     `json:"created_at"` // unix millis
}

// PairKey returns a direction-independent key for a conversation between two
// users. Both (a,b) and (b,a) map to the same key so one prefix scan covers
// the whole exchange.
func PairKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if strings.Compare(x, y) > 0 {
		x, y = y, x
	}
	return x + ":" + y
}
