package lpmarshaller

import (
	"encoding/json"

	"github.com/snappy-im/snappy-server/internal/domain/model"
)

// LPEvent is one event shaped for long-polling consumers.
type LPEvent struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	SentAt  int64  `json:"sent_at"`
	Payload any    `json:"payload"`
}

// Response wraps the batch so the poll endpoint always returns an object.
type Response struct {
	Events []LPEvent `json:"events"`
}

// MarshallEvents converts a slice of domain events into one JSON batch.
func MarshallEvents(events []model.Eventer) ([]byte, error) {
	res := Response{
		Events: make([]LPEvent, 0, len(events)),
	}

	for _, ev := range events {
		res.Events = append(res.Events, LPEvent{
			Type:    ev.GetKind().String(),
			ID:      ev.GetID(),
			SentAt:  ev.GetOccurredAt(),
			Payload: ev.GetPayload(),
		})
	}

	return json.Marshal(res)
}
