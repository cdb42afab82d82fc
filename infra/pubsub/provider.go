// Package pubsub provides the in-process event bus and, when a broker is
// configured, the AMQP publisher used to mirror events to external consumers.
package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/snappy-im/snappy-server/config"
	"go.uber.org/fx"
)

// Bus is the process-local pub/sub backbone. Handlers publish activity and
// message events here; the events router consumes them.
type Bus struct {
	*gochannel.GoChannel
}

func NewBus(wmLogger watermill.LoggerAdapter) *Bus {
	return &Bus{
		GoChannel: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, wmLogger),
	}
}

// MirrorPublisher is the optional AMQP leg. Nil Publisher means no broker is
// configured and mirroring is off.
type MirrorPublisher struct {
	Publisher message.Publisher
}

// NewMirrorPublisher builds a durable topic-exchange publisher when
// broker.url is set. Publish-only: this process never consumes from the
// broker, presence state stays local.
func NewMirrorPublisher(cfg *config.Config, wmLogger watermill.LoggerAdapter, logger *slog.Logger) (*MirrorPublisher, error) {
	if cfg.Broker.URL == "" {
		return &MirrorPublisher{}, nil
	}

	amqpCfg := amqp.NewDurablePubSubConfig(cfg.Broker.URL, nil)
	amqpCfg.Exchange.GenerateName = func(string) string { return cfg.Broker.Exchange }
	amqpCfg.Exchange.Type = "topic"
	amqpCfg.Publish.GenerateRoutingKey = func(topic string) string { return topic }

	pub, err := amqp.NewPublisher(amqpCfg, wmLogger)
	if err != nil {
		return nil, err
	}

	logger.Info("event mirroring enabled", slog.String("exchange", cfg.Broker.Exchange))
	return &MirrorPublisher{Publisher: pub}, nil
}

var Module = fx.Module("pubsub",
	fx.Provide(
		NewBus,
		NewMirrorPublisher,
	),
	fx.Invoke(func(lc fx.Lifecycle, bus *Bus, mirror *MirrorPublisher) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if mirror.Publisher != nil {
					_ = mirror.Publisher.Close()
				}
				return bus.Close()
			},
		})
	}),
)
