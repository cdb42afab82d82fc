package cmd

import (
	"github.com/snappy-im/snappy-server/config"
	"github.com/snappy-im/snappy-server/infra/pubsub"
	httpsrv "github.com/snappy-im/snappy-server/infra/server/http"
	"github.com/snappy-im/snappy-server/internal/domain/registry"
	"github.com/snappy-im/snappy-server/internal/handler/events"
	"github.com/snappy-im/snappy-server/internal/handler/rest"
	"github.com/snappy-im/snappy-server/internal/service"
	"github.com/snappy-im/snappy-server/internal/storage"
	"go.uber.org/fx"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
		),
		fx.Decorate(service.WithLogging),
		storage.Module,
		registry.Module,
		service.Module,
		pubsub.Module,
		events.Module,
		rest.Module,
		httpsrv.Module,
	)
}
