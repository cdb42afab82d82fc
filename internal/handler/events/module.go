package events

import (
	"github.com/snappy-im/snappy-server/infra/pubsub"
	pubsubadapter "github.com/snappy-im/snappy-server/internal/adapter/pubsub"
	"go.uber.org/fx"
)

var Module = fx.Module("events-handler",
	fx.Provide(
		NewRouter,

		// The dispatcher publishes onto the in-process bus; the pipeline
		// handlers fan out from there.
		func(bus *pubsub.Bus) pubsubadapter.EventDispatcher {
			return pubsubadapter.NewEventDispatcher(bus)
		},
	),

	fx.Invoke(
		RegisterHandlers,
		RunRouter,
	),
)
