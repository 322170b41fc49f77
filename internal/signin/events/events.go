// Package events delivers sign-in audit events to logs and metrics.
package events

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
)

// Sink receives audit events.
type Sink interface {
	Raise(ctx context.Context, ev domain.Event)
}

// Fanout delivers each event to every sink in order.
type Fanout []Sink

func (f Fanout) Raise(ctx context.Context, ev domain.Event) {
	for _, s := range f {
		s.Raise(ctx, ev)
	}
}

// LogSink writes events as structured log records. Failures log at warn.
type LogSink struct {
	// Logger overrides the request logger when set.
	Logger *slog.Logger
}

func (s LogSink) Raise(ctx context.Context, ev domain.Event) {
	log := s.Logger
	if log == nil {
		log = slogx.FromContext(ctx)
	}

	attrs := []any{
		slog.String("event_id", ev.ID),
		slog.String("event", string(ev.Type)),
		slog.Bool("success", ev.Success),
	}
	for _, kv := range [][2]string{
		{"req_id", ev.RequestID},
		{"signin_id", ev.SignInID},
		{"client_id", ev.ClientID},
		{"username", ev.Username},
		{"subject", ev.Subject},
		{"provider", ev.Provider},
		{"reason", ev.Reason},
	} {
		if kv[1] != "" {
			attrs = append(attrs, slog.String(kv[0], kv[1]))
		}
	}

	if ev.Success {
		log.InfoContext(ctx, "audit event", attrs...)
	} else {
		log.WarnContext(ctx, "audit event", attrs...)
	}
}

// Metrics counts events by type and outcome.
type Metrics struct {
	total *prometheus.CounterVec
}

// NewMetrics registers signin_events_total with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signin_events_total",
		Help: "Sign-in audit events by type and outcome.",
	}, []string{"type", "success"})
	if err := reg.Register(total); err != nil {
		return nil, err
	}
	return &Metrics{total: total}, nil
}

func (m *Metrics) Raise(_ context.Context, ev domain.Event) {
	m.total.WithLabelValues(string(ev.Type), strconv.FormatBool(ev.Success)).Inc()
}
