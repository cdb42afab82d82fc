package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/snappy-im/snappy-server/internal/domain/model"
	"github.com/snappy-im/snappy-server/internal/domain/registry"
	"github.com/snappy-im/snappy-server/internal/storage"
)

var (
	// ErrInvalidCredentials deliberately covers both unknown username and
	// wrong password so login responses don't leak which one it was.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountDisabled    = errors.New("account is disabled")
)

// Accounts covers the ordinary CRUD glue around the core: registration,
// login, discovery and logout. UserIDs handed out here are opaque to the
// presence and relay logic.
type Accounts interface {
	Register(ctx context.Context, username, email, password string) (*model.User, error)
	Login(ctx context.Context, username, password string) (*model.User, string, error)
	AllUsers(ctx context.Context, except uuid.UUID) ([]*model.User, error)
	SetAvatar(ctx context.Context, id uuid.UUID, image string) (*model.User, error)
	Logout(ctx context.Context, id uuid.UUID)
}

type AccountService struct {
	users  storage.UserStore
	hub    registry.Hubber
	tokens *TokenIssuer
	logger *slog.Logger
}

func NewAccountService(users storage.UserStore, hub registry.Hubber, tokens *TokenIssuer, logger *slog.Logger) *AccountService {
	return &AccountService{
		users:  users,
		hub:    hub,
		tokens: tokens,
		logger: logger,
	}
}

func (s *AccountService) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	if err := ValidatePasswordPolicy(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:       uuid.New(),
		Username: username,
		Email:    email,
		Password: hash,
		IsActive: true,
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID.String()))
	return user.Public(), nil
}

func (s *AccountService) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	user, err := s.users.GetByUsername(username)
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}

	ok, err := ComparePassword(password, user.Password)
	if err != nil || !ok {
		return nil, "", ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, "", ErrAccountDisabled
	}

	token, err := s.tokens.Issue(user.ID.String())
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return user.Public(), token, nil
}

func (s *AccountService) AllUsers(ctx context.Context, except uuid.UUID) ([]*model.User, error) {
	return s.users.List(except)
}

func (s *AccountService) SetAvatar(ctx context.Context, id uuid.UUID, image string) (*model.User, error) {
	user, err := s.users.SetAvatar(id, image)
	if err != nil {
		return nil, err
	}
	return user.Public(), nil
}

// Logout drops the user's presence entry so no further live deliveries are
// attempted. The session, if still open, observes its connector closing.
func (s *AccountService) Logout(ctx context.Context, id uuid.UUID) {
	s.hub.Evict(id)
}
