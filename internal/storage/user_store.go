package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/snappy-im/snappy-server/internal/domain/model"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already in use")
	ErrEmailTaken    = errors.New("email already in use")
)

// UserStore holds account records plus two index keys per user so both login
// (by username) and registration uniqueness checks are single lookups.
type UserStore interface {
	Create(user *model.User) error
	GetByID(id uuid.UUID) (*model.User, error)
	GetByUsername(username string) (*model.User, error)
	// List returns every user except the given one, password stripped.
	List(except uuid.UUID) ([]*model.User, error)
	SetAvatar(id uuid.UUID, image string) (*model.User, error)
}

type userStore struct {
	db *badger.DB
}

func NewUserStore(db *badger.DB) UserStore {
	return &userStore{db: db}
}

func userKey(id uuid.UUID) []byte { return []byte("user:" + id.String()) }

func usernameKey(username string) []byte {
	return []byte("idx:username:" + strings.ToLower(username))
}

func emailKey(email string) []byte {
	return []byte("idx:email:" + strings.ToLower(email))
}

func (s *userStore) Create(user *model.User) error {
	val, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("user store: marshal: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(usernameKey(user.Username)); err == nil {
			return ErrUsernameTaken
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if _, err := txn.Get(emailKey(user.Email)); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		id := []byte(user.ID.String())
		if err := txn.Set(userKey(user.ID), val); err != nil {
			return err
		}
		if err := txn.Set(usernameKey(user.Username), id); err != nil {
			return err
		}
		return txn.Set(emailKey(user.Email), id)
	})
}

func (s *userStore) GetByID(id uuid.UUID) (*model.User, error) {
	var user *model.User
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = readUser(txn, userKey(id))
		return err
	})
	return user, err
}

func (s *userStore) GetByUsername(username string) (*model.User, error) {
	var user *model.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(usernameKey(username))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id, err := uuid.Parse(string(val))
			if err != nil {
				return fmt.Errorf("user store: corrupt username index: %w", err)
			}
			user, err = readUser(txn, userKey(id))
			return err
		})
	})
	return user, err
}

func (s *userStore) List(except uuid.UUID) ([]*model.User, error) {
	prefix := []byte("user:")

	var out []*model.User
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var user model.User
				if err := json.Unmarshal(val, &user); err != nil {
					return err
				}
				if user.ID != except {
					out = append(out, user.Public())
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("user store: list: %w", err)
	}
	return out, nil
}

func (s *userStore) SetAvatar(id uuid.UUID, image string) (*model.User, error) {
	var user *model.User
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		user, err = readUser(txn, userKey(id))
		if err != nil {
			return err
		}
		user.AvatarImage = image
		user.IsAvatarImageSet = true

		val, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return txn.Set(userKey(id), val)
	})
	return user, err
}

func readUser(txn *badger.Txn, key []byte) (*model.User, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	var user model.User
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
