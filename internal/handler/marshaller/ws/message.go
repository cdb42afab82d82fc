package wsmarshaller

import (
	"github.com/snappy-im/snappy-server/internal/domain/model"
)

type WSMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Message   string `json:"message"`
	CreatedAt int64  `json:"created_at"`
}

func mapMessage(m *model.Message) *WSMessage {
	return &WSMessage{
		ID:        m.ID.String(),
		From:      m.From.String(),
		To:        m.To.String(),
		Message:   m.Text,
		CreatedAt: m.CreatedAt,
	}
}
