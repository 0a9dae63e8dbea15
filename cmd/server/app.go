package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	cardshandler "cardvault/internal/cards/handler"
	cardsmetrics "cardvault/internal/cards/metrics"
	"cardvault/internal/cards/poller"
	"cardvault/internal/cards/service"
	"cardvault/internal/cards/store"
	"cardvault/internal/events"
	"cardvault/internal/identity"
	"cardvault/internal/notification"
	"cardvault/internal/platform/config"
	"cardvault/internal/platform/kafka"
	"cardvault/internal/platform/metrics"
	"cardvault/internal/platform/middleware"
	"cardvault/internal/platform/postgres"
	"cardvault/internal/platform/redis"
	"cardvault/internal/platform/sqlite"
	"cardvault/internal/queue"
	"cardvault/internal/verification"
	"cardvault/pkg/platform/circuit"
	"cardvault/pkg/platform/middleware/admin"
	"cardvault/pkg/platform/middleware/requesttime"
)

// cardStore is a service.CardStore that can report its health.
type cardStore interface {
	service.CardStore
	Ping(ctx context.Context) error
}

// workQueue is a queue.Queue that can report its health.
type workQueue interface {
	queue.Queue
	Ping(ctx context.Context) error
}

type app struct {
	cfg    *config.Config
	log    *slog.Logger
	cards  cardStore
	queue  workQueue
	redis  *redis.Client
	svc    *service.Service
	poller *poller.Poller

	httpMetrics *metrics.Metrics
	closers     []func()
}

// newApp builds every collaborator from cfg. On error, whatever was already
// opened is closed.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	reg := prometheus.DefaultRegisterer
	a.httpMetrics = metrics.New(reg)
	cm := cardsmetrics.New(reg)

	var db *sql.DB
	if cfg.Store.Backend == "postgres" || cfg.Queue.Provider == "postgres" {
		if db, err = postgres.Connect(ctx, cfg.Database, log); err != nil {
			return nil, err
		}
		a.onClose(func() { _ = db.Close() })
		if err = postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
	}

	if a.cards, err = a.openStore(ctx, db); err != nil {
		return nil, err
	}
	if a.queue, err = a.openQueue(ctx); err != nil {
		return nil, err
	}

	publisher, err := a.openPublisher(ctx)
	if err != nil {
		return nil, err
	}

	var provider service.Provider = verification.Unconfigured{}
	if cfg.Provider.Configured() {
		breaker := circuit.New("truenative",
			circuit.WithFailureThreshold(cfg.Provider.BreakerFailures),
			circuit.WithSuccessThreshold(cfg.Provider.BreakerSuccesses),
			circuit.WithCooldown(cfg.Provider.BreakerCooldown),
		)
		provider = verification.New(cfg.Provider.BaseURL, cfg.Provider.SecretToken, cfg.Provider.Timeout, uuid.NewString,
			verification.WithBreaker(breaker),
			verification.WithLogger(log),
			verification.WithMetrics(cm),
		)
	} else {
		log.WarnContext(ctx, "verification provider not configured, registration will fail")
	}

	var sender notification.Sender = notification.LogSender{Logger: log}
	if cfg.Notification.SMTPHost != "" {
		sender = notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.Notification.SMTPHost,
			Port:     cfg.Notification.SMTPPort,
			From:     cfg.Notification.From,
			Username: cfg.Notification.Username,
			Password: cfg.Notification.Password,
		})
	}
	notifier := notification.NewDispatcher(sender,
		notification.WithLogger(log),
		notification.WithMetrics(cm),
	)

	a.svc = service.New(a.cards, provider,
		service.WithQueue(a.queue),
		service.WithNotifier(notifier),
		service.WithEventPublisher(publisher),
		service.WithFingerprintPepper(cfg.FingerprintPepper),
		service.WithRefreshPolicy(service.RefreshPolicy{
			MinAge:         cfg.Refresh.MinAge,
			MaxWait:        cfg.Refresh.MaxWait,
			BackoffInitial: cfg.Refresh.BackoffInitial,
			BackoffStep:    cfg.Refresh.BackoffStep,
			BackoffMax:     cfg.Refresh.BackoffMax,
		}),
		service.WithLogger(log),
		service.WithMetrics(cm),
	)
	a.onClose(a.svc.Wait)

	if cfg.Queue.Provider != "off" {
		a.poller = poller.New(a.queue, a.cards, provider, a.svc,
			poller.WithConfig(poller.Config{
				BatchSize: cfg.Queue.MaxBatch,
				Wait:      cfg.Queue.Wait,
				Interval:  cfg.Poller.Interval,
			}),
			poller.WithLogger(log),
			poller.WithMetrics(cm),
		)
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context, db *sql.DB) (cardStore, error) {
	switch a.cfg.Store.Backend {
	case "postgres":
		return store.NewPostgres(db), nil
	case "sqlite":
		sdb, err := sqlite.Open(ctx, a.cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		s := store.NewSQLite(sdb)
		a.onClose(func() {
			s.Close()
			_ = sdb.Close()
		})
		return s, nil
	default:
		a.log.WarnContext(ctx, "using in-memory card store, data is lost on restart")
		return store.NewInMemory(), nil
	}
}

func (a *app) openQueue(ctx context.Context) (workQueue, error) {
	cfg := a.cfg.Queue
	switch cfg.Provider {
	case "memory":
		return queue.NewMemory(cfg.VisibilityTimeout), nil
	case "redis":
		rc, err := redis.New(ctx, a.cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.redis = rc
		a.onClose(func() { _ = rc.Close() })
		return queue.NewRedis(rc.Client, cfg.Name, cfg.VisibilityTimeout), nil
	case "postgres":
		pool, err := postgres.NewPool(ctx, a.cfg.Database)
		if err != nil {
			return nil, err
		}
		a.onClose(pool.Close)
		return queue.NewPostgres(pool, cfg.Name, cfg.VisibilityTimeout), nil
	default:
		return queue.Noop{}, nil
	}
}

func (a *app) openPublisher(ctx context.Context) (service.EventPublisher, error) {
	client, err := kafka.NewClient(a.cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return events.Noop{}, nil
	}
	if err := kafka.EnsureTopic(ctx, client, a.cfg.Kafka.Topic, 3); err != nil {
		a.log.WarnContext(ctx, "could not ensure kafka topic", "topic", a.cfg.Kafka.Topic, "error", err)
	}
	p := events.NewKafkaPublisher(client, a.cfg.Kafka.Topic, a.log)
	a.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Close(ctx)
	})
	return p, nil
}

// router assembles the HTTP API.
func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(a.log))
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(a.log, a.httpMetrics))
	r.Use(middleware.ContentTypeJSON)

	checks := map[string]cardshandler.Pinger{
		"store": a.cards,
		"queue": a.queue,
	}
	if a.redis != nil {
		checks["redis"] = cardshandler.PingFunc(a.redis.Health)
	}
	r.Method(http.MethodGet, "/healthz", cardshandler.NewHealth(checks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	users := identity.New(a.cfg.Identity.UsersBaseURL, a.cfg.Identity.Timeout)
	cardshandler.New(a.svc, a.log).Register(r,
		middleware.RequireUser(users, a.log),
		admin.RequireAdminToken(a.cfg.Server.AdminToken, a.log),
	)
	return r
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
