package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/snappy-im/snappy-server/internal/domain/model"
)

// messengerMiddleware decorates the Messenger with timing and outcome logging
// so the core service stays free of cross-cutting concerns.
type messengerMiddleware struct {
	next   Messenger
	logger *slog.Logger
}

func (m *messengerMiddleware) Send(ctx context.Context, from, to uuid.UUID, text string) (*model.Message, error) {
	start := time.Now()
	msg, err := m.next.Send(ctx, from, to, text)
	if err != nil {
		m.logger.Error("message send failed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.Any("err", err),
		)
		return nil, err
	}

	m.logger.Debug("message sent",
		slog.String("message_id", msg.ID.String()),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return msg, nil
}

func (m *messengerMiddleware) History(ctx context.Context, a, b uuid.UUID) ([]*model.Message, error) {
	return m.next.History(ctx, a, b)
}
