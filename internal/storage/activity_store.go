package storage

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/snappy-im/snappy-server/internal/domain/model"
)

// ActivityStore persists the audit trail written by the activity pipeline.
type ActivityStore interface {
	Record(ev *model.ActivityEvent) error
	// Recent returns up to limit records, newest first.
	Recent(limit int) ([]*model.ActivityEvent, error)
}

type activityStore struct {
	db *badger.DB
}

func NewActivityStore(db *badger.DB) ActivityStore {
	return &activityStore{db: db}
}

func activityKey(ev *model.ActivityEvent) []byte {
	return []byte(fmt.Sprintf("activity:%019d:%s", ev.OccurredAt, ev.ID))
}

func (s *activityStore) Record(ev *model.ActivityEvent) error {
	val, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("activity store: marshal: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(activityKey(ev), val)
	})
	if err != nil {
		return fmt.Errorf("activity store: record: %w", err)
	}
	return nil
}

func (s *activityStore) Recent(limit int) ([]*model.ActivityEvent, error) {
	prefix := []byte("activity:")

	var out []*model.ActivityEvent
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible key, then walk backwards.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var ev model.ActivityEvent
				if err := json.Unmarshal(val, &ev); err != nil {
					return err
				}
				out = append(out, &ev)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("activity store: recent: %w", err)
	}
	return out, nil
}
