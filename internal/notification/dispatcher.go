// Package notification renders and sends card lifecycle emails. Delivery is
// best-effort: failures are logged and counted, never returned to callers.
package notification

import (
	"context"
	"log/slog"

	"cardvault/internal/cards/metrics"
	"cardvault/pkg/email"
)

// Dispatcher renders card notices and hands them to a Sender. Every failure is
// logged and counted, never returned.
type Dispatcher struct {
	sender  Sender
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{sender: sender, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Notify(ctx context.Context, kind Kind, notice CardNotice) {
	if !email.IsValidAddress(notice.To) {
		d.logger.DebugContext(ctx, "skipping notification without a valid recipient",
			"kind", string(kind), "reference", notice.Reference)
		return
	}

	msg, err := Render(kind, notice)
	if err != nil {
		d.metrics.IncrementNotificationFailure()
		d.logger.ErrorContext(ctx, "failed to render notification", "kind", string(kind), "error", err)
		return
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		d.metrics.IncrementNotificationFailure()
		d.logger.WarnContext(ctx, "failed to send notification",
			"kind", string(kind),
			"reference", notice.Reference,
			"error", err,
		)
		return
	}
	d.logger.InfoContext(ctx, "notification sent", "kind", string(kind), "reference", notice.Reference)
}
