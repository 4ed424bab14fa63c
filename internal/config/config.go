package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default. DATABASE_URL and NATS_URL are
// optional: without them deliveries are logged in memory and projections
// arrive over HTTP only.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database (delivery log)
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Scheduler loop
	TimeBudget     time.Duration
	TickInterval   time.Duration
	IngressBuffer  int
	RequestTimeout time.Duration

	// Webhook listeners
	WebhookTimeout     time.Duration
	WebhookRateLimit   int
	WebhookMaxAttempts int

	// Retry backoff durations: index 0 = delay after the first failed attempt, etc.
	WebhookRetryBackoff []time.Duration

	// NATS projection ingress
	NATSURL           string
	NATSSubjectPrefix string
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),

		TimeBudget:     getDuration("SCHEDULER_TIME_BUDGET", 10*time.Millisecond),
		TickInterval:   getDuration("SCHEDULER_TICK_INTERVAL", 20*time.Millisecond),
		IngressBuffer:  getInt("SCHEDULER_INGRESS_BUFFER", 256),
		RequestTimeout: getDuration("SCHEDULER_REQUEST_TIMEOUT", 2*time.Second),

		WebhookTimeout:     getDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		WebhookRateLimit:   getInt("WEBHOOK_RATE_LIMIT", 50),
		WebhookMaxAttempts: getInt("WEBHOOK_MAX_ATTEMPTS", 3),
		WebhookRetryBackoff: []time.Duration{
			getDuration("WEBHOOK_RETRY_BACKOFF_1", 500*time.Millisecond),
			getDuration("WEBHOOK_RETRY_BACKOFF_2", 2*time.Second),
			getDuration("WEBHOOK_RETRY_BACKOFF_3", 10*time.Second),
		},

		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "projections."),
	}

	if cfg.TimeBudget < 0 {
		return nil, fmt.Errorf("SCHEDULER_TIME_BUDGET must not be negative")
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("SCHEDULER_TICK_INTERVAL must be positive")
	}
	if cfg.WebhookMaxAttempts < 1 {
		return nil, fmt.Errorf("WEBHOOK_MAX_ATTEMPTS must be at least 1")
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
