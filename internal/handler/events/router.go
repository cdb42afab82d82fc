// Package events runs the asynchronous pipeline behind the request path:
// activity records are persisted off the hot path, and persisted messages
// are mirrored to the external broker when one is configured.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/snappy-im/snappy-server/infra/pubsub"
	"github.com/snappy-im/snappy-server/internal/storage"
	"go.uber.org/fx"
)

func NewRouter(wmLogger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{
		CloseTimeout: 10 * time.Second,
	}, wmLogger)
}

// RegisterHandlers wires the pipeline handlers onto the router.
func RegisterHandlers(
	router *message.Router,
	bus *pubsub.Bus,
	mirror *pubsub.MirrorPublisher,
	activities storage.ActivityStore,
	logger *slog.Logger,
) {
	h := &PipelineHandler{
		activities: activities,
		mirror:     mirror,
		logger:     logger,
	}

	router.AddMiddleware(
		TraceIDMiddleware,
		LoggingMiddleware(logger),
		NewRetryMiddleware().Middleware,
		middleware.Recoverer,
		middleware.Timeout(30*time.Second),
	)

	router.AddNoPublisherHandler("persist_activity", h.activityTopic(), bus, h.OnActivity)
	router.AddNoPublisherHandler("mirror_message_created", h.messageCreatedTopic(), bus, h.OnMessageCreated)
}

// RunRouter starts the pipeline with the fx application and drains it on stop.
func RunRouter(lc fx.Lifecycle, router *message.Router, logger *slog.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := router.Run(runCtx); err != nil {
					logger.Error("event pipeline stopped", slog.Any("error", err))
				}
			}()

			select {
			case <-router.Running():
				logger.Info("event pipeline running")
				return nil
			case <-time.After(10 * time.Second):
				return context.DeadlineExceeded
			}
		},
		OnStop: func(context.Context) error {
			cancel()
			return router.Close()
		},
	})
}
