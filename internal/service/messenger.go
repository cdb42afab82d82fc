package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/snappy-im/snappy-server/internal/adapter/pubsub"
	"github.com/snappy-im/snappy-server/internal/domain/model"
	"github.com/snappy-im/snappy-server/internal/storage"
	"golang.org/x/sync/errgroup"
)

var ErrUnknownPeer = errors.New("unknown sender or recipient")

// Messenger is the persist-then-relay path behind POST /addmsg. Persistence
// is the only failure surfaced to the sender; the live push is a best-effort
// side channel.
type Messenger interface {
	Send(ctx context.Context, from, to uuid.UUID, text string) (*model.Message, error)
	History(ctx context.Context, a, b uuid.UUID) ([]*model.Message, error)
}

type MessengerService struct {
	store      storage.MessageStore
	users      storage.UserStore
	deliverer  Deliverer
	dispatcher pubsub.EventDispatcher
	logger     *slog.Logger
}

func NewMessengerService(store storage.MessageStore, users storage.UserStore, deliverer Deliverer, dispatcher pubsub.EventDispatcher, logger *slog.Logger) *MessengerService {
	return &MessengerService{
		store:      store,
		users:      users,
		deliverer:  deliverer,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (s *MessengerService) Send(ctx context.Context, from, to uuid.UUID, text string) (*model.Message, error) {
	if err := s.resolvePeers(ctx, from, to); err != nil {
		return nil, err
	}

	msg, err := s.store.Append(from, to, text)
	if err != nil {
		return nil, err
	}

	// Persisted; everything below is fire-and-forget.
	s.deliverer.Deliver(to, msg)

	if err := s.dispatcher.Publish(ctx, &model.MessageCreatedEvent{Message: msg}); err != nil {
		s.logger.Warn("message event publish failed",
			slog.String("message_id", msg.ID.String()),
			slog.Any("err", err),
		)
	}

	return msg, nil
}

// resolvePeers confirms both ends exist before anything lands in the store.
// Both lookups run concurrently and fail together.
func (s *MessengerService) resolvePeers(ctx context.Context, from, to uuid.UUID) error {
	g, _ := errgroup.WithContext(ctx)

	for _, id := range []uuid.UUID{from, to} {
		g.Go(func() error {
			if _, err := s.users.GetByID(id); err != nil {
				if errors.Is(err, storage.ErrUserNotFound) {
					return fmt.Errorf("%w: %s", ErrUnknownPeer, id)
				}
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *MessengerService) History(ctx context.Context, a, b uuid.UUID) ([]*model.Message, error) {
	return s.store.ListBetween(a, b)
}
