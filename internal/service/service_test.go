package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/snappy-im/snappy-server/internal/adapter/pubsub"
	"github.com/snappy-im/snappy-server/internal/domain/model"
	"github.com/snappy-im/snappy-server/internal/domain/registry"
	"github.com/snappy-im/snappy-server/internal/storage"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger { return slog.Default() }

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestHub(t *testing.T) registry.Hubber {
	t.Helper()
	hub := registry.NewHub(
		registry.WithMailboxSize(16),
		registry.WithSendTimeout(50*time.Millisecond),
		registry.WithEvictionInterval(time.Hour),
	)
	t.Cleanup(hub.Shutdown)
	return hub
}

func newTestDispatcher(t *testing.T) pubsub.EventDispatcher {
	t.Helper()
	ch := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ch.Close() })
	return pubsub.NewEventDispatcher(ch)
}

func Test_Delivery_Subscribe_Then_Deliver(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t)
	svc := NewDeliveryService(hub, testLogger(), 8)

	alice := uuid.New()
	conn, err := svc.Subscribe(context.Background(), alice)
	req.NoError(err)
	defer svc.Unsubscribe(alice, conn.GetID())

	msg := &model.Message{ID: uuid.New(), From: uuid.New(), To: alice, Text: "hi", CreatedAt: time.Now().UnixMilli()}
	svc.Deliver(alice, msg)

	select {
	case ev := <-conn.Recv():
		req.Equal(msg, ev.GetPayload())
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}
}

func Test_Delivery_To_Offline_Recipient_Is_Not_An_Error(t *testing.T) {
	hub := newTestHub(t)
	svc := NewDeliveryService(hub, testLogger(), 8)

	// No registration, no panic, nothing to assert beyond completion.
	svc.Deliver(uuid.New(), &model.Message{ID: uuid.New(), Text: "void"})
}

func seedUser(t *testing.T, users storage.UserStore, username string) uuid.UUID {
	t.Helper()
	u := &model.User{
		ID:       uuid.New(),
		Username: username,
		Email:    username + "@example.com",
		Password: "irrelevant-hash",
	}
	require.NoError(t, users.Create(u))
	return u.ID
}

func Test_Messenger_Persists_Before_Relay(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t)
	db := openTestDB(t)
	store := storage.NewMessageStore(db)
	users := storage.NewUserStore(db)
	deliverer := NewDeliveryService(hub, testLogger(), 8)
	messenger := NewMessengerService(store, users, deliverer, newTestDispatcher(t), testLogger())

	alice, bob := seedUser(t, users, "alice"), seedUser(t, users, "bob")
	conn, err := deliverer.Subscribe(context.Background(), bob)
	req.NoError(err)

	msg, err := messenger.Send(context.Background(), alice, bob, "hello bob")
	req.NoError(err)

	// Persisted regardless of delivery.
	history, err := messenger.History(context.Background(), alice, bob)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(msg.ID, history[0].ID)

	// And pushed live since bob is online.
	select {
	case ev := <-conn.Recv():
		req.Equal(msg.ID.String(), ev.GetID())
	case <-time.After(2 * time.Second):
		t.Fatal("no live delivery")
	}
}

func Test_Messenger_Send_To_Offline_Recipient_Still_Persists(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	store := storage.NewMessageStore(db)
	users := storage.NewUserStore(db)
	messenger := NewMessengerService(store, users, NewDeliveryService(newTestHub(t), testLogger(), 8), newTestDispatcher(t), testLogger())

	alice, bob := seedUser(t, users, "alice"), seedUser(t, users, "bob")
	_, err := messenger.Send(context.Background(), alice, bob, "for later")
	req.NoError(err)

	history, err := messenger.History(context.Background(), alice, bob)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("for later", history[0].Text)
}

func Test_Messenger_Rejects_Unknown_Peer(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	store := storage.NewMessageStore(db)
	users := storage.NewUserStore(db)
	messenger := NewMessengerService(store, users, NewDeliveryService(newTestHub(t), testLogger(), 8), newTestDispatcher(t), testLogger())

	alice := seedUser(t, users, "alice")
	ghost := uuid.New()

	_, err := messenger.Send(context.Background(), alice, ghost, "anyone there")
	req.ErrorIs(err, ErrUnknownPeer)

	// Nothing may land in the store for a rejected send.
	history, err := messenger.History(context.Background(), alice, ghost)
	req.NoError(err)
	req.Empty(history)
}

func Test_Accounts_Register_And_Login(t *testing.T) {
	req := require.New(t)
	users := storage.NewUserStore(openTestDB(t))
	tokens := NewTokenIssuer("test-secret", time.Hour)
	accounts := NewAccountService(users, newTestHub(t), tokens, testLogger())

	user, err := accounts.Register(context.Background(), "alice", "alice@example.com", "S3cret!pass")
	req.NoError(err)
	req.Empty(user.Password, "register response must not carry the hash")

	got, token, err := accounts.Login(context.Background(), "alice", "S3cret!pass")
	req.NoError(err)
	req.Equal(user.ID, got.ID)
	req.Empty(got.Password)

	claims, err := tokens.Verify(token)
	req.NoError(err)
	req.Equal(user.ID.String(), claims.UserID)
}

func Test_Accounts_Login_Failures(t *testing.T) {
	req := require.New(t)
	users := storage.NewUserStore(openTestDB(t))
	accounts := NewAccountService(users, newTestHub(t), NewTokenIssuer("s", time.Hour), testLogger())

	_, err := accounts.Register(context.Background(), "alice", "alice@example.com", "S3cret!pass")
	req.NoError(err)

	_, _, err = accounts.Login(context.Background(), "alice", "wrong")
	req.ErrorIs(err, ErrInvalidCredentials)

	_, _, err = accounts.Login(context.Background(), "ghost", "S3cret!pass")
	req.ErrorIs(err, ErrInvalidCredentials)
}

func Test_Accounts_Register_Enforces_Policy_And_Uniqueness(t *testing.T) {
	req := require.New(t)
	users := storage.NewUserStore(openTestDB(t))
	accounts := NewAccountService(users, newTestHub(t), NewTokenIssuer("s", time.Hour), testLogger())

	_, err := accounts.Register(context.Background(), "alice", "alice@example.com", "weak")
	req.Error(err)

	_, err = accounts.Register(context.Background(), "alice", "alice@example.com", "S3cret!pass")
	req.NoError(err)

	_, err = accounts.Register(context.Background(), "alice", "other@example.com", "S3cret!pass")
	req.ErrorIs(err, storage.ErrUsernameTaken)
}

func Test_Accounts_Logout_Evicts_Presence(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t)
	accounts := NewAccountService(storage.NewUserStore(openTestDB(t)), hub, NewTokenIssuer("s", time.Hour), testLogger())
	deliverer := NewDeliveryService(hub, testLogger(), 8)

	alice := uuid.New()
	_, err := deliverer.Subscribe(context.Background(), alice)
	req.NoError(err)
	req.True(hub.IsConnected(alice))

	accounts.Logout(context.Background(), alice)
	req.False(hub.IsConnected(alice))
}

type captureMailer struct {
	to, subject, body string
}

func (m *captureMailer) Send(_ context.Context, to, subject, body string) error {
	m.to, m.subject, m.body = to, subject, body
	return nil
}

func Test_Verification_Code_Roundtrip(t *testing.T) {
	req := require.New(t)
	mailer := &captureMailer{}
	verifier := NewVerifier(mailer, testLogger())

	req.NoError(verifier.SendCode(context.Background(), "alice@example.com"))
	req.Equal("alice@example.com", mailer.to)
	req.Contains(mailer.subject, "verification")

	// Extract the code from the mail body the way a user would read it.
	var code string
	for _, field := range []byte(mailer.body) {
		if field >= '0' && field <= '9' {
			code += string(field)
		}
		if len(code) == 6 {
			break
		}
	}
	req.Len(code, 6)

	req.NoError(verifier.VerifyCode("alice@example.com", code))
	// Consumed: a second attempt fails.
	req.ErrorIs(verifier.VerifyCode("alice@example.com", code), ErrCodeNotFound)
}

func Test_Verification_Code_Mismatch_And_Missing(t *testing.T) {
	req := require.New(t)
	verifier := NewVerifier(&captureMailer{}, testLogger())

	req.ErrorIs(verifier.VerifyCode("ghost@example.com", "123456"), ErrCodeNotFound)

	req.NoError(verifier.SendCode(context.Background(), "alice@example.com"))
	req.ErrorIs(verifier.VerifyCode("alice@example.com", "000000"), ErrCodeMismatch)
}
