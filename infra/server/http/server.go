// Package http hosts the chi router inside the application lifecycle.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/snappy-im/snappy-server/config"
	"go.uber.org/fx"
)

func NewServer(cfg *config.Config, router chi.Router) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// No global write timeout: the long-poll and WebSocket endpoints
		// hold connections open far beyond any sane request deadline.
	}
}

// RunServer binds the listener during OnStart so a busy port fails startup
// instead of surfacing later in a goroutine.
func RunServer(lc fx.Lifecycle, srv *http.Server, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}

			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped", slog.Any("error", err))
				}
			}()

			logger.Info("http server listening", slog.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Module("http-server",
	fx.Provide(NewServer),
	fx.Invoke(RunServer),
)
