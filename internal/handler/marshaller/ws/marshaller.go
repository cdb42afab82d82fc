package wsmarshaller

import (
	"encoding/json"

	"github.com/snappy-im/snappy-server/internal/domain/model"
)

// WSEvent is the wire envelope for every frame the server pushes. Event
// names mirror what chat clients already listen for, including the
// historical "msg-recieve" spelling.
type WSEvent struct {
	Event   string `json:"event"`
	ID      string `json:"id"`
	SentAt  int64  `json:"sent_at"`
	Payload any    `json:"payload"`
}

// MarshallDeliveryEvent prepares a domain event for WebSocket transmission.
func MarshallDeliveryEvent(ev model.Eventer) ([]byte, error) {
	res := &WSEvent{
		Event:  ev.GetKind().String(),
		ID:     ev.GetID(),
		SentAt: ev.GetOccurredAt(),
	}

	switch p := ev.GetPayload().(type) {
	case *model.Message:
		res.Payload = mapMessage(p)
	case *model.ConnectedPayload:
		res.Payload = p
	case *model.DisconnectedPayload:
		res.Payload = p
	}

	return json.Marshal(res)
}
