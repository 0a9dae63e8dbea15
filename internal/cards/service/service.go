// Package service implements card registration and status reconciliation.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"cardvault/internal/cards/metrics"
	"cardvault/internal/events"
	"cardvault/internal/notification"
	id "cardvault/pkg/domain"
)

// RefreshPolicy bounds the on-demand poll run from the read path.
type RefreshPolicy struct {
	MinAge         time.Duration // grace period before a pending card is polled
	MaxWait        time.Duration // wall-clock budget for one refresh
	BackoffInitial time.Duration
	BackoffStep    time.Duration
	BackoffMax     time.Duration
}

// DefaultRefreshPolicy matches the deployment defaults.
func DefaultRefreshPolicy() RefreshPolicy {
	return RefreshPolicy{
		MinAge:         3 * time.Second,
		MaxWait:        12 * time.Second,
		BackoffInitial: 500 * time.Millisecond,
		BackoffStep:    50 * time.Millisecond,
		BackoffMax:     600 * time.Millisecond,
	}
}

// Service orchestrates the card registry, the verification provider and the
// best-effort side effects.
type Service struct {
	cards    CardStore
	provider Provider
	queue    Enqueuer
	notifier Notifier
	events   EventPublisher

	fingerprintKey []byte
	refresh        RefreshPolicy
	flights        singleflight.Group
	background     sync.WaitGroup

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() id.CardID
}

type Option func(s *Service)

func WithQueue(q Enqueuer) Option {
	return func(s *Service) {
		s.queue = q
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithFingerprintPepper enables registration. Without a pepper Register fails
// with a configuration error.
func WithFingerprintPepper(pepper string) Option {
	return func(s *Service) {
		s.fingerprintKey = deriveFingerprintKey(pepper)
	}
}

func WithRefreshPolicy(p RefreshPolicy) Option {
	return func(s *Service) {
		s.refresh = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithIDGenerator(fn func() id.CardID) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// New constructs a Service.
func New(cards CardStore, provider Provider, opts ...Option) *Service {
	s := &Service{
		cards:    cards,
		provider: provider,
		queue:    noopQueue{},
		notifier: noopNotifier{},
		events:   events.Noop{},
		refresh:  DefaultRefreshPolicy(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("cardvault/cards"),
		now:      time.Now,
		newID:    id.NewCardID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until side effects started by earlier calls have finished.
// Shutdown calls it after the HTTP server has drained.
func (s *Service) Wait() {
	s.background.Wait()
}

type noopQueue struct{}

func (noopQueue) Enqueue(context.Context, []byte) error { return nil }

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, notification.Kind, notification.CardNotice) {}
