package poller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	cardsmetrics "cardvault/internal/cards/metrics"
	"cardvault/internal/cards/models"
	"cardvault/internal/cards/service"
	"cardvault/internal/cards/store"
	"cardvault/internal/notification"
	"cardvault/internal/queue"
	"cardvault/internal/verification"
	id "cardvault/pkg/domain"
)

type stubProvider struct {
	mu     sync.Mutex
	result verification.StatusResult
	calls  int
}

func (p *stubProvider) Register(context.Context, verification.Card) (verification.Registration, error) {
	return verification.Registration{}, errors.New("not used")
}

func (p *stubProvider) GetStatus(context.Context, string) verification.StatusResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.result
}

type countingNotifier struct {
	mu   sync.Mutex
	sent []notification.Kind
	to   []string
}

func (n *countingNotifier) Notify(_ context.Context, kind notification.Kind, notice notification.CardNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, kind)
	n.to = append(n.to, notice.To)
}

// failingApplier always fails, leaving messages on the queue.
type failingApplier struct{}

func (failingApplier) Apply(context.Context, *models.CreditCard, models.Status, service.ApplyOptions) (service.Outcome, error) {
	return "", errors.New("store unavailable")
}

type PollerSuite struct {
	suite.Suite
	store    *store.InMemoryStore
	queue    *queue.Memory
	provider *stubProvider
	notifier *countingNotifier
	svc      *service.Service
	poller   *Poller
	metrics  *cardsmetrics.Metrics
	logs     *bytes.Buffer
	now      time.Time
}

func TestPollerSuite(t *testing.T) {
	suite.Run(t, new(PollerSuite))
}

func (s *PollerSuite) SetupTest() {
	s.now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s.store = store.NewInMemory()
	s.queue = queue.NewMemory(50 * time.Millisecond)
	s.provider = &stubProvider{result: verification.StatusResult{Code: verification.CodePending}}
	s.notifier = &countingNotifier{}
	s.metrics = cardsmetrics.New(prometheus.NewRegistry())
	s.logs = &bytes.Buffer{}
	s.svc = service.New(s.store, s.provider,
		service.WithNotifier(s.notifier),
		service.WithLogger(slog.New(slog.NewTextHandler(s.logs, nil))),
		service.WithMetrics(s.metrics),
		service.WithClock(func() time.Time { return s.now }),
	)
	s.poller = s.newPoller(s.svc)
}

func (s *PollerSuite) newPoller(applier Applier) *Poller {
	return New(s.queue, s.store, s.provider, applier,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithConfig(Config{BatchSize: 5, Wait: 10 * time.Millisecond, Interval: 10 * time.Millisecond}),
	)
}

func (s *PollerSuite) seed(status models.Status) *models.CreditCard {
	cardID := id.NewCardID()
	card := &models.CreditCard{
		ID:          cardID,
		UserID:      id.UserID(uuid.New()),
		Token:       "tok",
		LastFour:    "4242",
		Issuer:      models.IssuerVisa,
		Status:      status,
		Reference:   "ruv-" + cardID.String(),
		Fingerprint: "fp-" + cardID.String(),
		CreatedAt:   s.now,
		UpdatedAt:   s.now,
	}
	s.Require().NoError(s.store.Create(context.Background(), card))
	return card
}

func (s *PollerSuite) enqueue(card *models.CreditCard) {
	body, err := models.VerificationCheck{
		Reference: card.Reference,
		CardID:    card.ID.String(),
		UserID:    card.UserID.String(),
		Email:     "ada@example.com",
		FullName:  "Ada Lovelace",
	}.Encode()
	s.Require().NoError(err)
	s.Require().NoError(s.queue.Enqueue(context.Background(), body))
}

func (s *PollerSuite) runOnce() int {
	n, err := s.poller.RunOnce(context.Background())
	s.Require().NoError(err)
	return n
}

func (s *PollerSuite) TestApprovedVerdictTransitionsAndAcks() {
	card := s.seed(models.StatusPendingVerification)
	s.enqueue(card)
	s.provider.result = verification.StatusResult{Code: verification.CodeFinal, Status: models.StatusApproved}

	s.Equal(1, s.runOnce())

	stored, err := s.store.FindByID(context.Background(), card.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, stored.Status)
	s.Equal([]notification.Kind{notification.KindApproved}, s.notifier.sent)
	s.Equal([]string{"ada@example.com"}, s.notifier.to)
	s.Zero(s.queue.Len())
}

func (s *PollerSuite) TestRedeliveryAfterTransitionIsAckedSilently() {
	card := s.seed(models.StatusPendingVerification)
	s.enqueue(card)
	s.enqueue(card)
	s.provider.result = verification.StatusResult{Code: verification.CodeFinal, Status: models.StatusApproved}

	s.Equal(2, s.runOnce())

	s.Len(s.notifier.sent, 1)
	s.Zero(s.queue.Len())
}

func (s *PollerSuite) TestTerminalCardWithMatchingVerdictIsAckedSilently() {
	card := s.seed(models.StatusApproved)
	s.enqueue(card)
	s.provider.result = verification.StatusResult{Code: verification.CodeFinal, Status: models.StatusApproved}

	s.runOnce()

	s.Equal(1, s.provider.calls)
	s.Empty(s.notifier.sent)
	s.Zero(s.queue.Len())
	s.Zero(promtest.ToFloat64(s.metrics.InvariantViolations))
}

func (s *PollerSuite) TestConflictingVerdictForTerminalCardIsRecorded() {
	card := s.seed(models.StatusApproved)
	s.enqueue(card)
	s.provider.result = verification.StatusResult{Code: verification.CodeFinal, Status: models.StatusRejected}

	s.runOnce()

	s.Equal(1, s.provider.calls)
	stored, err := s.store.FindByID(context.Background(), card.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, stored.Status, "terminal status never changes")
	s.Empty(s.notifier.sent)
	s.Zero(s.queue.Len(), "conflict is acked once recorded")
	s.Equal(1.0, promtest.ToFloat64(s.metrics.InvariantViolations))
	s.Contains(s.logs.String(), "invariant violation")
	s.Equal(1.0, promtest.ToFloat64(s.metrics.QueueMessages.WithLabelValues(string(service.OutcomeRejected))))
}

func (s *PollerSuite) TestMalformedMessageIsDropped() {
	s.Require().NoError(s.queue.Enqueue(context.Background(), []byte("{not json")))
	s.Require().NoError(s.queue.Enqueue(context.Background(), []byte(`{"cardId":"x"}`)))

	s.Equal(2, s.runOnce())
	s.Zero(s.queue.Len())
	s.Zero(s.provider.calls)
}

func (s *PollerSuite) TestUnknownCardIsDropped() {
	body, err := models.VerificationCheck{Reference: "ruv-gone"}.Encode()
	s.Require().NoError(err)
	s.Require().NoError(s.queue.Enqueue(context.Background(), body))

	s.runOnce()
	s.Zero(s.queue.Len())
}

func (s *PollerSuite) TestOpenVerificationStaysQueued() {
	for _, code := range []verification.Code{
		verification.CodePending,
		verification.CodeUnauthorized,
		verification.CodeNotFound,
		verification.CodeUnexpected,
	} {
		s.Run(string(code), func() {
			s.SetupTest()
			card := s.seed(models.StatusPendingVerification)
			s.enqueue(card)
			s.provider.result = verification.StatusResult{Code: code}

			s.runOnce()

			s.Equal(1, s.queue.Len())
			stored, err := s.store.FindByID(context.Background(), card.ID)
			s.Require().NoError(err)
			s.Equal(models.StatusPendingVerification, stored.Status)
		})
	}
}

func (s *PollerSuite) TestApplyErrorLeavesMessage() {
	card := s.seed(models.StatusPendingVerification)
	s.enqueue(card)
	s.provider.result = verification.StatusResult{Code: verification.CodeFinal, Status: models.StatusApproved}
	p := s.newPoller(failingApplier{})

	_, err := p.RunOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(1, s.queue.Len())
}

func (s *PollerSuite) TestLeftMessageIsRetriedAfterVisibility() {
	card := s.seed(models.StatusPendingVerification)
	s.enqueue(card)

	s.Equal(1, s.runOnce())
	s.provider.result = verification.StatusResult{Code: verification.CodeFinal, Status: models.StatusApproved}

	time.Sleep(80 * time.Millisecond)
	s.Equal(1, s.runOnce())
	s.Zero(s.queue.Len())
	s.Len(s.notifier.sent, 1)
}

func TestRun_StopsOnCancel(t *testing.T) {
	q := queue.NewMemory(time.Second)
	p := New(q, store.NewInMemory(), &stubProvider{}, failingApplier{},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithConfig(Config{BatchSize: 5, Wait: 20 * time.Millisecond, Interval: 20 * time.Millisecond}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.Wait)
	assert.Equal(t, 15*time.Second, cfg.Interval)
}
