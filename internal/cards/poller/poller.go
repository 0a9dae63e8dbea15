// Package poller is the background reconciler: it drains verification checks
// from the queue and applies final provider verdicts.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cardvault/internal/cards/metrics"
	"cardvault/internal/cards/models"
	"cardvault/internal/cards/service"
	"cardvault/internal/queue"
	"cardvault/internal/verification"
	"cardvault/pkg/platform/sentinel"
	"cardvault/pkg/requestcontext"
)

// Receiver is the consuming side of the work queue.
type Receiver interface {
	Receive(ctx context.Context, max int, wait time.Duration) ([]queue.Message, error)
	Ack(ctx context.Context, receiptHandle string) error
}

// CardFinder resolves the card a verification check refers to.
type CardFinder interface {
	FindByReference(ctx context.Context, reference string) (*models.CreditCard, error)
}

// StatusChecker polls the provider once per message.
type StatusChecker interface {
	GetStatus(ctx context.Context, reference string) verification.StatusResult
}

// Applier is the transition applier shared with the read path.
type Applier interface {
	Apply(ctx context.Context, card *models.CreditCard, status models.Status, opts service.ApplyOptions) (service.Outcome, error)
}

// disposition decides what happens to a delivered message.
type disposition string

const (
	dispositionAck   disposition = "ack"
	dispositionLeave disposition = "leave"
)

// Config tunes batching and pacing of the receive loop.
type Config struct {
	BatchSize int
	Wait      time.Duration // long-poll wait per Receive
	Interval  time.Duration // sleep after an empty batch or a receive error
}

// DefaultConfig matches the queue defaults: batches of 5, a 10s long poll and
// a 15s pause when idle.
func DefaultConfig() Config {
	return Config{BatchSize: 5, Wait: 10 * time.Second, Interval: 15 * time.Second}
}

// Poller drains verification checks. Every message whose card exists costs
// one provider call; final verdicts go through the Applier, which decides
// whether a terminal card is left alone or the signal is a conflict.
type Poller struct {
	queue    Receiver
	cards    CardFinder
	provider StatusChecker
	applier  Applier
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Poller)

func WithConfig(cfg Config) Option {
	return func(p *Poller) { p.cfg = cfg }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) { p.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// New builds a poller with DefaultConfig and the default logger.
func New(q Receiver, cards CardFinder, provider StatusChecker, applier Applier, opts ...Option) *Poller {
	p := &Poller{
		queue:    q,
		cards:    cards,
		provider: provider,
		applier:  applier,
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("cardvault/poller"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is cancelled. No single failure stops the loop.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "cards poller started",
		"batch", p.cfg.BatchSize, "wait", p.cfg.Wait.String(), "interval", p.cfg.Interval.String())
	defer p.logger.Info("cards poller stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		processed, err := p.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.ErrorContext(ctx, "failed to receive verification checks", "error", err)
		}
		if err != nil || processed == 0 {
			if !sleep(ctx, p.cfg.Interval) {
				return nil
			}
		}
	}
}

// RunOnce receives one batch and handles every message in it.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	msgs, err := p.queue.Receive(ctx, p.cfg.BatchSize, p.cfg.Wait)
	if err != nil {
		return 0, err
	}
	for _, msg := range msgs {
		p.handle(ctx, msg)
	}
	return len(msgs), nil
}

func (p *Poller) handle(ctx context.Context, msg queue.Message) {
	ctx, span := p.tracer.Start(ctx, "cards.poller.message")
	defer span.End()
	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.Int("message.receive_count", msg.ReceiveCount),
	)

	d, reason := p.decide(ctx, msg)
	span.SetAttributes(attribute.String("message.disposition", string(d)+":"+reason))
	p.metrics.IncrementQueueMessage(reason)

	if d != dispositionAck {
		return
	}
	if err := p.queue.Ack(ctx, msg.ReceiptHandle); err != nil {
		p.logger.WarnContext(ctx, "failed to ack verification check", "message_id", msg.ID, "error", err)
	}
}

// decide processes one message and returns what to do with it plus a short
// reason used as the metric label.
func (p *Poller) decide(ctx context.Context, msg queue.Message) (disposition, string) {
	check, ok := models.DecodeVerificationCheck(msg.Body)
	if !ok {
		p.logger.WarnContext(ctx, "dropping malformed verification check", "message_id", msg.ID)
		return dispositionAck, "malformed"
	}

	card, err := p.cards.FindByReference(ctx, check.Reference)
	if errors.Is(err, sentinel.ErrNotFound) {
		p.logger.WarnContext(ctx, "dropping verification check for unknown card", "reference", check.Reference)
		return dispositionAck, "unknown_card"
	}
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to load card for verification check",
			"reference", check.Reference, "error", err)
		return dispositionLeave, "store_error"
	}
	result := p.provider.GetStatus(ctx, card.Reference)
	if result.Code != verification.CodeFinal {
		p.logger.DebugContext(ctx, "verification still open",
			"card_id", card.ID.String(), "reference", card.Reference, "code", string(result.Code))
		return dispositionLeave, "not_final"
	}

	outcome, err := p.applier.Apply(ctx, card, result.Status, service.ApplyOptions{
		Issuer:  result.Issuer,
		Source:  service.SourcePoller,
		Contact: requestcontext.Contact{
			Email:    check.Email,
			FullName: check.FullName,
		},
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to apply polled status",
			"card_id", card.ID.String(), "reference", card.Reference, "error", err)
		return dispositionLeave, "apply_error"
	}
	return dispositionAck, string(outcome)
}

// sleep waits d or until ctx is done; it reports false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
