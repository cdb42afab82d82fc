package events

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/snappy-im/snappy-server/infra/pubsub"
	pubsubadapter "github.com/snappy-im/snappy-server/internal/adapter/pubsub"
	"github.com/snappy-im/snappy-server/internal/domain/model"
	"github.com/snappy-im/snappy-server/internal/storage"
	"github.com/stretchr/testify/require"
)

func startPipeline(t *testing.T) (pubsubadapter.EventDispatcher, storage.ActivityStore) {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	activities := storage.NewActivityStore(db)

	wmLogger := watermill.NopLogger{}
	bus := pubsub.NewBus(wmLogger)
	t.Cleanup(func() { _ = bus.Close() })

	router, err := NewRouter(wmLogger)
	require.NoError(t, err)

	RegisterHandlers(router, bus, &pubsub.MirrorPublisher{}, activities, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = router.Run(ctx) }()

	select {
	case <-router.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not start")
	}
	t.Cleanup(func() { _ = router.Close() })

	return pubsubadapter.NewEventDispatcher(bus), activities
}

func Test_Activity_Event_Is_Persisted_By_Pipeline(t *testing.T) {
	req := require.New(t)
	dispatcher, activities := startPipeline(t)

	userID := uuid.New()
	ev := model.NewActivityEvent(userID, "login", model.ActivitySuccess)
	ev.RemoteIP = "203.0.113.7"
	req.NoError(dispatcher.Publish(context.Background(), ev))

	req.Eventually(func() bool {
		records, err := activities.Recent(10)
		if err != nil || len(records) != 1 {
			return false
		}
		r := records[0]
		return r.UserID == userID && r.Action == "login" &&
			r.Status == model.ActivitySuccess && r.RemoteIP == "203.0.113.7"
	}, 5*time.Second, 20*time.Millisecond)
}

func Test_Malformed_Activity_Payload_Is_Dropped_Not_Retried(t *testing.T) {
	req := require.New(t)
	dispatcher, activities := startPipeline(t)

	// Raw publish bypassing the dispatcher's marshalling.
	bad := message.NewMessage(watermill.NewUUID(), []byte("{not json"))
	req.NoError(dispatcher.Publisher().Publish(model.TopicActivity, bad))

	// A valid event after the malformed one proves the handler survived.
	req.NoError(dispatcher.Publish(context.Background(),
		model.NewActivityEvent(uuid.New(), "register", model.ActivityFailure)))

	req.Eventually(func() bool {
		records, err := activities.Recent(10)
		return err == nil && len(records) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func Test_Message_Created_Without_Broker_Is_NoOp(t *testing.T) {
	req := require.New(t)
	dispatcher, _ := startPipeline(t)

	msg := &model.Message{
		ID:        uuid.New(),
		From:      uuid.New(),
		To:        uuid.New(),
		Text:      "mirrored",
		CreatedAt: time.Now().UnixMilli(),
	}
	// Must not error or wedge the router even though no mirror exists.
	req.NoError(dispatcher.Publish(context.Background(), &model.MessageCreatedEvent{Message: msg}))
}
