// Package slogx builds the structured logger of the service and carries a
// request scoped logger through contexts.
package slogx

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Service string
	Version string
	Env     string // e.g. "dev", "prod"
	Level   string // e.g. "debug", "info", "warn", "error"
	Format  string // "json" (default) or "text"

	// Output defaults to stdout.
	Output io.Writer
}

// Redacted replaces the value of attributes keyed by a credential name.
const Redacted = "[redacted]"

var sensitiveKeys = map[string]bool{
	"password":      true,
	"secret":        true,
	"client_secret": true,
	"totp_secret":   true,
	"token":         true,
	"id_token":      true,
	"access_token":  true,
	"cookie":        true,
}

// New returns the process logger and installs it as the slog default.
// Records get service, version and env attached; credential attributes are
// redacted whatever the caller passes.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		AddSource:   cfg.Env == "dev",
		Level:       level,
		ReplaceAttr: redact,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler).With(
		slog.String("service", cfg.Service),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Env),
	)
	slog.SetDefault(logger)
	return logger
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, Redacted)
	}
	return a
}
