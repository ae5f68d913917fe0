package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger and installs it as the slog default.
// Production runs JSON for the log shipper; development keeps the readable
// text handler.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}

	var handler slog.Handler
	if cfg != nil && (cfg.LogFormat == "json" || cfg.IsProduction()) {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	env := "development"
	if cfg != nil && cfg.AppEnv != "" {
		env = cfg.AppEnv
	}
	logger := slog.New(handler).With(slog.String("env", env))
	slog.SetDefault(logger)
	return logger
}
