package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for card registration and reconciliation.
// All methods are nil-safe so components can run without metrics in tests.
type Metrics struct {
	Registrations        *prometheus.CounterVec
	Transitions          *prometheus.CounterVec
	InvariantViolations  prometheus.Counter
	RefreshDuration      prometheus.Histogram
	RefreshOutcomes      *prometheus.CounterVec
	ProviderCalls        *prometheus.CounterVec
	QueueMessages        *prometheus.CounterVec
	NotificationFailures prometheus.Counter
}

// New creates card metrics registered on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardvault_card_registrations_total",
			Help: "Card registration attempts by result",
		}, []string{"result"}), // result: created, duplicate, rejected, provider_error, invalid
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardvault_card_transitions_total",
			Help: "Applied status transitions by target status and path",
		}, []string{"status", "path"}), // path: refresh, poller, override
		InvariantViolations: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardvault_card_invariant_violations_total",
			Help: "Conflicting status signals received for terminal cards",
		}),
		RefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardvault_card_refresh_duration_seconds",
			Help:    "Wall-clock time spent in on-demand refresh polls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 12, 15},
		}),
		RefreshOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardvault_card_refresh_outcomes_total",
			Help: "On-demand refresh results",
		}, []string{"outcome"}), // outcome: changed, unchanged, timeout
		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardvault_provider_calls_total",
			Help: "Verification provider calls by operation and result code",
		}, []string{"operation", "code"}),
		QueueMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardvault_queue_messages_total",
			Help: "Poller message dispositions",
		}, []string{"disposition"}), // disposition: acked, retained, dropped
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardvault_notification_failures_total",
			Help: "Best-effort notifications that failed to send",
		}),
	}
}

func (m *Metrics) IncrementRegistration(result string) {
	if m != nil {
		m.Registrations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncrementTransition(status, path string) {
	if m != nil {
		m.Transitions.WithLabelValues(status, path).Inc()
	}
}

func (m *Metrics) IncrementInvariantViolation() {
	if m != nil {
		m.InvariantViolations.Inc()
	}
}

// ObserveRefresh records a completed refresh poll started at start.
func (m *Metrics) ObserveRefresh(outcome string, start time.Time) {
	if m != nil {
		m.RefreshDuration.Observe(time.Since(start).Seconds())
		m.RefreshOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementProviderCall(operation, code string) {
	if m != nil {
		m.ProviderCalls.WithLabelValues(operation, code).Inc()
	}
}

func (m *Metrics) IncrementQueueMessage(disposition string) {
	if m != nil {
		m.QueueMessages.WithLabelValues(disposition).Inc()
	}
}

func (m *Metrics) IncrementNotificationFailure() {
	if m != nil {
		m.NotificationFailures.Inc()
	}
}
