package rest

import (
	"github.com/snappy-im/snappy-server/internal/handler/lp"
	"github.com/snappy-im/snappy-server/internal/handler/ws"
	"go.uber.org/fx"
)

var Module = fx.Module("rest-handler",
	fx.Provide(
		NewAuthHandler,
		NewMessagesHandler,
		NewStatsHandler,
		ws.NewWSHandler,
		lp.NewLPHandler,
		NewRouter,
	),
)
