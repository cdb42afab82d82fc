package rest

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/snappy-im/snappy-server/config"
	"github.com/snappy-im/snappy-server/internal/handler/lp"
	"github.com/snappy-im/snappy-server/internal/handler/ws"
	"github.com/snappy-im/snappy-server/internal/service"
)

// NewRouter assembles the public HTTP surface: REST endpoints, the
// WebSocket upgrade path and the long-poll fallback.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	tokens *service.TokenIssuer,
	auth *AuthHandler,
	messages *MessagesHandler,
	stats *StatsHandler,
	wsHandler *ws.WSHandler,
	lpHandler *lp.LPHandler,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))
	r.Use(RateLimit(cfg.RateLimit.RequestsPerMinute))

	r.Get("/ping", Ping)
	r.Handle("/ws", wsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Credential endpoints get the tighter bucket on top of the
			// general one.
			r.Group(func(r chi.Router) {
				r.Use(AuthRateLimit(
					cfg.RateLimit.AuthRequestsPerWindow,
					time.Duration(cfg.RateLimit.AuthWindowMinutes)*time.Minute,
				))
				r.Post("/register", auth.Register)
				r.Post("/login", auth.Login)
				r.Post("/send-verification-code", auth.SendVerificationCode)
				r.Post("/verify-code", auth.VerifyCode)
			})

			r.Group(func(r chi.Router) {
				r.Use(Authenticator(tokens))
				r.Get("/allusers/{id}", auth.AllUsers)
				r.Post("/setavatar/{id}", auth.SetAvatar)
				r.Get("/logout/{id}", auth.Logout)
			})
		})

		r.Route("/messages", func(r chi.Router) {
			r.Use(Authenticator(tokens))
			r.Post("/addmsg", messages.Add)
			r.Post("/getmsg", messages.Get)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Use(Authenticator(tokens))
			r.Get("/", stats.Stats)
			r.Get("/activity", stats.Activity)
		})

		r.Get("/poll/{userID}", lpHandler.Poll)
	})

	return r
}
