package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Routable is anything that knows the topic it belongs on.
type Routable interface {
	RoutingKey() string
}

// EventDispatcher is the high-level contract for outgoing events. Handlers
// stay agnostic of the transport behind it.
type EventDispatcher interface {
	Publish(ctx context.Context, ev Routable) error
	Publisher() message.Publisher
}

type eventDispatcher struct {
	publisher message.Publisher
}

// NewEventDispatcher returns the interface instead of the concrete type.
func NewEventDispatcher(pub message.Publisher) EventDispatcher {
	return &eventDispatcher{
		publisher: pub,
	}
}

func (d *eventDispatcher) Publish(ctx context.Context, ev Routable) error {
	if ev == nil {
		return fmt.Errorf("event dispatcher: cannot publish nil event")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("event dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := d.publisher.Publish(ev.RoutingKey(), msg); err != nil {
		return fmt.Errorf("event dispatcher: publish to topic %s: %w", ev.RoutingKey(), err)
	}
	return nil
}

func (d *eventDispatcher) Publisher() message.Publisher {
	return d.publisher
}
