package events

import (
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/snappy-im/snappy-server/infra/pubsub"
	"github.com/snappy-im/snappy-server/internal/domain/model"
	"github.com/snappy-im/snappy-server/internal/storage"
)

type PipelineHandler struct {
	activities storage.ActivityStore
	mirror     *pubsub.MirrorPublisher
	logger     *slog.Logger
}

func (h *PipelineHandler) activityTopic() string       { return model.TopicActivity }
func (h *PipelineHandler) messageCreatedTopic() string { return model.TopicMessageCreated }

// OnActivity persists one audit record. Malformed payloads are acked and
// dropped, a broken record gains nothing from redelivery.
func (h *PipelineHandler) OnActivity(msg *message.Message) error {
	var ev model.ActivityEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		h.logger.Error("activity decode failed",
			slog.Any("error", err),
			slog.String("msg_id", msg.UUID))
		return nil
	}

	// Storage failure returns err so the retry middleware can have a go.
	return h.activities.Record(&ev)
}

// OnMessageCreated forwards persisted messages to the external broker.
// With no broker configured this handler is a no-op sink.
func (h *PipelineHandler) OnMessageCreated(msg *message.Message) error {
	if h.mirror.Publisher == nil {
		return nil
	}

	out := msg.Copy()

	if err := h.mirror.Publisher.Publish(model.TopicMessageCreated, out); err != nil {
		h.logger.Error("message mirror publish failed",
			slog.Any("error", err),
			slog.String("msg_id", msg.UUID))
		return err
	}
	return nil
}
