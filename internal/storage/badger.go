// Package storage provides the durable side of the system: users, the
// append-only message log and the activity trail, all backed by a single
// BadgerDB instance. The live-delivery path never reads any of this; peers
// consult the message log for history and recovery after reconnect.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/snappy-im/snappy-server/config"
	"go.uber.org/fx"
)

// badgerSlog adapts badger's internal logger onto slog so storage noise ends
// up in the same stream as everything else.
type badgerSlog struct {
	l *slog.Logger
}

func (b badgerSlog) msg(f string, args ...any) string {
	return strings.TrimRight(fmt.Sprintf(f, args...), "\n")
}

func (b badgerSlog) Errorf(f string, args ...any)   { b.l.Error(b.msg(f, args...)) }
func (b badgerSlog) Warningf(f string, args ...any) { b.l.Warn(b.msg(f, args...)) }
func (b badgerSlog) Infof(f string, args ...any)    { b.l.Debug(b.msg(f, args...)) }
func (b badgerSlog) Debugf(f string, args ...any)   { b.l.Debug(b.msg(f, args...)) }

func OpenDB(cfg *config.Config, logger *slog.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Storage.Path).
		WithLogger(badgerSlog{l: logger.With("component", "badger")})
	if cfg.Storage.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	return badger.Open(opts)
}

var Module = fx.Module("storage",
	fx.Provide(
		OpenDB,
		NewMessageStore,
		NewUserStore,
		NewActivityStore,
	),
	fx.Invoke(func(lc fx.Lifecycle, db *badger.DB) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return db.Close()
			},
		})
	}),
)
