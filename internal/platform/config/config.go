package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, loaded once at startup.
type Config struct {
	Server       Server
	Store        StoreConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Provider     ProviderConfig
	Refresh      RefreshConfig
	Queue        QueueConfig
	Poller       PollerConfig
	Kafka        KafkaConfig
	Identity     IdentityConfig
	Notification NotificationConfig

	// FingerprintPepper keys the card fingerprint HMAC. Registration fails
	// with a configuration error while it is empty.
	FingerprintPepper string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	LogLevel        string
	LogFormat       string
	AdminToken      string
	ShutdownTimeout time.Duration
}

// Store selects the card registry backend.
type StoreConfig struct {
	Backend    string // memory | postgres | sqlite
	SQLitePath string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ProviderConfig points at the TrueNative verification API.
type ProviderConfig struct {
	BaseURL          string
	SecretToken      string
	Timeout          time.Duration
	BreakerFailures  int
	BreakerSuccesses int
	BreakerCooldown  time.Duration
}

// Configured reports whether registration can reach the provider.
func (p ProviderConfig) Configured() bool {
	return p.BaseURL != "" && p.SecretToken != ""
}

// RefreshConfig bounds the on-demand poll run from the read path.
type RefreshConfig struct {
	MinAge         time.Duration
	MaxWait        time.Duration
	BackoffInitial time.Duration
	BackoffStep    time.Duration
	BackoffMax     time.Duration
}

type QueueConfig struct {
	Provider          string // off | memory | redis | postgres
	Name              string
	VisibilityTimeout time.Duration
	MaxBatch          int
	Wait              time.Duration
}

type PollerConfig struct {
	Enabled  bool
	Interval time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type IdentityConfig struct {
	UsersBaseURL string
	Timeout      time.Duration
}

type NotificationConfig struct {
	SMTPHost string
	SMTPPort int
	From     string
	Username string
	Password string
}

var (
	validStores = map[string]bool{"memory": true, "postgres": true, "sqlite": true}
	validQueues = map[string]bool{"off": true, "memory": true, "redis": true, "postgres": true}
)

// Load builds a Config from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: Server{
			Addr:            getEnv("CARDVAULT_ADDR", ":8080"),
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			LogFormat:       getEnv("LOG_FORMAT", "json"),
			AdminToken:      os.Getenv("ADMIN_API_TOKEN"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Store: StoreConfig{
			Backend:    strings.ToLower(getEnv("STORE_BACKEND", "memory")),
			SQLitePath: getEnv("SQLITE_PATH", "./data/cardvault.db"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Provider: ProviderConfig{
			BaseURL:          strings.TrimRight(os.Getenv("TRUENATIVE_BASE_URL"), "/"),
			SecretToken:      os.Getenv("SECRET_TOKEN"),
			Timeout:          getEnvAsDuration("PROVIDER_TIMEOUT", 10*time.Second),
			BreakerFailures:  getEnvAsInt("PROVIDER_BREAKER_FAILURES", 5),
			BreakerSuccesses: getEnvAsInt("PROVIDER_BREAKER_SUCCESSES", 2),
			BreakerCooldown:  getEnvAsDuration("PROVIDER_BREAKER_COOLDOWN", 30*time.Second),
		},
		Refresh: RefreshConfig{
			MinAge:         getEnvAsSeconds("MIN_REFRESH_AGE_SECONDS", 3*time.Second),
			MaxWait:        getEnvAsSeconds("MAX_REFRESH_SECONDS", 12*time.Second),
			BackoffInitial: getEnvAsDuration("REFRESH_BACKOFF_INITIAL", 500*time.Millisecond),
			BackoffStep:    getEnvAsDuration("REFRESH_BACKOFF_STEP", 50*time.Millisecond),
			BackoffMax:     getEnvAsDuration("REFRESH_BACKOFF_MAX", 600*time.Millisecond),
		},
		Queue: QueueConfig{
			Provider:          strings.ToLower(getEnv("EVENT_QUEUE_PROVIDER", "off")),
			Name:              getEnv("QUEUE_NAME", "card-verification"),
			VisibilityTimeout: getEnvAsDuration("QUEUE_VISIBILITY_TIMEOUT", 30*time.Second),
			MaxBatch:          getEnvAsInt("QUEUE_MAX_BATCH", 5),
			Wait:              getEnvAsDuration("QUEUE_WAIT", 10*time.Second),
		},
		Poller: PollerConfig{
			Enabled:  getEnvAsBool("CARDS_POLLER_ENABLED", true),
			Interval: getEnvAsSeconds("CARDS_POLLER_INTERVAL", 15*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", "card-lifecycle"),
		},
		Identity: IdentityConfig{
			UsersBaseURL: strings.TrimRight(getEnv("USERS_BASE_URL", "http://users-app-service"), "/"),
			Timeout:      getEnvAsDuration("USERS_TIMEOUT", 5*time.Second),
		},
		Notification: NotificationConfig{
			SMTPHost: os.Getenv("SMTP_HOST"),
			SMTPPort: getEnvAsInt("SMTP_PORT", 587),
			From:     getEnv("NOTIFY_FROM", os.Getenv("GMAIL_USER")),
			Username: os.Getenv("GMAIL_USER"),
			Password: os.Getenv("GMAIL_PASS"),
		},
		FingerprintPepper: os.Getenv("CARD_FINGERPRINT_PEPPER"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements. Provider credentials and the
// fingerprint pepper are checked per request so the service can still boot
// and answer reads without them.
func (c *Config) Validate() error {
	var errs []error

	if !validStores[c.Store.Backend] {
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be one of memory, postgres, sqlite (got %q)", c.Store.Backend))
	}
	if c.Store.Backend == "postgres" && c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required when STORE_BACKEND=postgres"))
	}
	if !validQueues[c.Queue.Provider] {
		errs = append(errs, fmt.Errorf("EVENT_QUEUE_PROVIDER must be one of off, memory, redis, postgres (got %q)", c.Queue.Provider))
	}
	if c.Queue.Provider == "redis" && c.Redis.URL == "" {
		errs = append(errs, errors.New("REDIS_URL is required when EVENT_QUEUE_PROVIDER=redis"))
	}
	if c.Queue.Provider == "postgres" && c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required when EVENT_QUEUE_PROVIDER=postgres"))
	}
	if c.Queue.MaxBatch < 1 {
		errs = append(errs, errors.New("QUEUE_MAX_BATCH must be at least 1"))
	}
	if c.Refresh.BackoffInitial <= 0 || c.Refresh.BackoffMax < c.Refresh.BackoffInitial {
		errs = append(errs, errors.New("refresh backoff must satisfy 0 < initial <= max"))
	}
	if c.Refresh.MaxWait <= 0 {
		errs = append(errs, errors.New("MAX_REFRESH_SECONDS must be positive"))
	}
	if c.Poller.Interval <= 0 {
		errs = append(errs, errors.New("CARDS_POLLER_INTERVAL must be positive"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsSeconds accepts either a Go duration ("12s") or a bare number of
// seconds ("12", "0.5"), which is how the deployment manifests set them.
func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
