package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"cardvault/internal/cards/metrics"
	"cardvault/internal/cards/models"
	"cardvault/internal/cards/store"
	"cardvault/internal/events"
	"cardvault/internal/notification"
	"cardvault/internal/queue"
	"cardvault/internal/verification"
	id "cardvault/pkg/domain"
)

const testPepper = "test-pepper"

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: t0} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeProvider accepts every registration and answers GetStatus from status.
// When gate is set GetStatus blocks on it after signalling entered.
type fakeProvider struct {
	mu       sync.Mutex
	status   verification.StatusResult
	issuer   string
	gate     chan struct{}
	entered  chan struct{}
	calls    atomic.Int32
	register atomic.Int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{status: verification.StatusResult{Code: verification.CodePending}}
}

func (p *fakeProvider) Register(_ context.Context, _ verification.Card) (verification.Registration, error) {
	n := p.register.Add(1)
	return verification.Registration{
		Reference: fmt.Sprintf("ruv-%03d", n),
		Token:     "tok-" + uuid.NewString(),
		Issuer:    p.issuer,
	}, nil
}

func (p *fakeProvider) GetStatus(ctx context.Context, _ string) verification.StatusResult {
	p.calls.Add(1)
	if p.entered != nil {
		select {
		case p.entered <- struct{}{}:
		default:
		}
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return verification.StatusResult{Code: verification.CodeUnexpected}
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *fakeProvider) answer(result verification.StatusResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = result
}

func final(status models.Status) verification.StatusResult {
	return verification.StatusResult{Code: verification.CodeFinal, Status: status}
}

type sentNotice struct {
	Kind   notification.Kind
	Notice notification.CardNotice
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
}

func (n *recordingNotifier) Notify(_ context.Context, kind notification.Kind, notice notification.CardNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotice{Kind: kind, Notice: notice})
}

func (n *recordingNotifier) kinds() []notification.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notification.Kind, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}

func (n *recordingNotifier) count(kind notification.Kind) int {
	c := 0
	for _, k := range n.kinds() {
		if k == kind {
			c++
		}
	}
	return c
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// harness wires a Service over real in-memory collaborators.
type harness struct {
	svc      *Service
	store    *store.InMemoryStore
	provider *fakeProvider
	queue    *queue.Memory
	notifier *recordingNotifier
	events   *recordingPublisher
	clock    *testClock
	metrics  *metrics.Metrics
}

func fastPolicy() RefreshPolicy {
	return RefreshPolicy{
		MinAge:         3 * time.Second,
		MaxWait:        300 * time.Millisecond,
		BackoffInitial: 20 * time.Millisecond,
		BackoffStep:    10 * time.Millisecond,
		BackoffMax:     50 * time.Millisecond,
	}
}

func newHarness(opts ...Option) *harness {
	h := &harness{
		store:    store.NewInMemory(),
		provider: newFakeProvider(),
		queue:    queue.NewMemory(time.Minute),
		notifier: &recordingNotifier{},
		events:   &recordingPublisher{},
		clock:    newTestClock(),
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	base := []Option{
		WithQueue(h.queue),
		WithNotifier(h.notifier),
		WithEventPublisher(h.events),
		WithFingerprintPepper(testPepper),
		WithRefreshPolicy(fastPolicy()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(h.metrics),
		WithClock(h.clock.Now),
	}
	h.svc = New(h.store, h.provider, append(base, opts...)...)
	return h
}

func newUserID() id.UserID { return id.UserID(uuid.New()) }

func validRequest() models.RegisterCardRequest {
	return models.RegisterCardRequest{
		CardNumber:     "4111 1111 1111 1111",
		CVV:            "123",
		ExpirationDate: "30/12",
		CardHolderName: "Ada Lovelace",
	}
}

func registerCommand(user id.UserID) RegisterCommand {
	return RegisterCommand{
		UserID:   user,
		Email:    "ada@example.com",
		FullName: "Ada Lovelace",
		Card:     validRequest(),
	}
}
