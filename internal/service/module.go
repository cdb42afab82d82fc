package service

import (
	"log/slog"

	"github.com/snappy-im/snappy-server/config"
	"github.com/snappy-im/snappy-server/internal/domain/registry"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		fx.Annotate(
			func(hub registry.Hubber, logger *slog.Logger, cfg *config.Config) *DeliveryService {
				return NewDeliveryService(hub, logger, cfg.Hub.SessionBuffer)
			},
			fx.As(new(Deliverer)),
		),
		fx.Annotate(
			NewMessengerService,
			fx.As(new(Messenger)),
		),
		fx.Annotate(
			NewAccountService,
			fx.As(new(Accounts)),
		),
		func(cfg *config.Config) *TokenIssuer {
			return NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		},
		NewMailer,
		NewVerifier,
		func(cfg *config.Config) CaptchaVerifier {
			if !cfg.Captcha.Enabled {
				return NewPassVerifier()
			}
			return NewCaptchaVerifier(cfg.Captcha.Secret, cfg.Captcha.VerifyURL)
		},
	),
)

// WithLogging intercepts the Messenger to add timing and outcome logging
// without touching the business logic. Applied at the application root so
// every consumer sees the decorated path.
func WithLogging(orig Messenger, logger *slog.Logger) Messenger {
	return &messengerMiddleware{
		next:   orig,
		logger: logger,
	}
}
