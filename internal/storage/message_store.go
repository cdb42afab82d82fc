package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/snappy-im/snappy-server/internal/domain/model"
)

// MessageStore is the append-only conversation log. Records are created on
// send and never mutated; the relay does not depend on this store for
// delivery, clients use it for history.
type MessageStore interface {
	Append(senderID, recipientID uuid.UUID, text string) (*model.Message, error)
	// ListBetween returns every message exchanged between the two users,
	// ascending by timestamp. Finite, not a live stream.
	ListBetween(a, b uuid.UUID) ([]*model.Message, error)
}

type messageStore struct {
	db *badger.DB
}

func NewMessageStore(db *badger.DB) MessageStore {
	return &messageStore{db: db}
}

// messageKey builds "msg:{pair}:{timestamp_padded}:{uuid}":
//  1. the 19-digit zero padding makes lexicographical order chronological, so
//     a plain forward prefix scan yields ascending timestamps;
//  2. the UUID tail disambiguates two messages landing on the same nanosecond.
func messageKey(pair string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", pair, at.UnixNano(), id))
}

func (s *messageStore) Append(senderID, recipientID uuid.UUID, text string) (*model.Message, error) {
	now := time.Now()
	msg := &model.Message{
		ID:        uuid.New(),
		From:      senderID,
		To:        recipientID,
		Text:      text,
		CreatedAt: now.UnixMilli(),
	}

	val, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("message store: marshal: %w", err)
	}

	key := messageKey(model.PairKey(senderID, recipientID), now, msg.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
	if err != nil {
		return nil, fmt.Errorf("message store: append: %w", err)
	}
	return msg, nil
}

func (s *messageStore) ListBetween(a, b uuid.UUID) ([]*model.Message, error) {
	prefix := []byte("msg:" + model.PairKey(a, b) + ":")

	var out []*model.Message
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var msg model.Message
				if err := json.Unmarshal(val, &msg); err != nil {
					return err
				}
				out = append(out, &msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("message store: list: %w", err)
	}
	return out, nil
}
