package slogx

import (
	"io"
	"log/slog"
)

// Discard returns a logger that drops every record. Handy in tests and as a
// fallback when a component was built without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
