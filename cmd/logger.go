package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/snappy-im/snappy-server/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ProvideLogger builds the process-wide structured logger. With log.file
// set, output goes to stdout and a size-rotated file. The level is the
// config's LevelVar, so a config file reload retunes verbosity live.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Log.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename: cfg.Log.File,
			MaxSize:  cfg.Log.MaxSizeMB,
			MaxAge:   cfg.Log.MaxAge,
			Compress: true,
		})
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	})).With(
		slog.String("service", ServiceName),
	)

	slog.SetDefault(logger)
	return logger
}

// ProvideWatermillLogger adapts the slog logger for the event pipeline.
func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger)
}
