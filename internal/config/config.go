package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port                string
	DatabaseURL         string
	Store               string
	JWTSecret           string
	AdminRole           string
	// JoinConflictRetries is taken literally: 0 runs each transaction once.
	JoinConflictRetries int
	RateLimitPerMinute  int
	RateLimitBurst      int
	RateLimitFailOpen   bool
	RedisAddr           string
	KafkaBrokers        string
	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
	OTLPEndpoint        string
	OTLPInsecure        bool
	ShutdownTimeout     time.Duration
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	storeKind := strings.ToLower(strings.TrimSpace(os.Getenv("STORE")))
	if storeKind == "" {
		storeKind = StorePostgres
	}
	adminRole := os.Getenv("ADMIN_ROLE")
	if adminRole == "" {
		adminRole = "admin"
	}

	return Config{
		Port:                port,
		DatabaseURL:         os.Getenv("DB_DSN"),
		Store:               storeKind,
		JWTSecret:           os.Getenv("JWT_SECRET"),
		AdminRole:           adminRole,
		JoinConflictRetries: readInt("JOIN_CONFLICT_RETRIES", 3),
		RateLimitPerMinute:  readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:      readInt("RATE_LIMIT_BURST", 30),
		RateLimitFailOpen:   readBool("RATE_LIMIT_FAIL_OPEN", false),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		KafkaBrokers:        os.Getenv("KAFKA_BROKERS"),
		OutboxPollInterval:  readDurationSeconds("OUTBOX_POLL_SECONDS", 2),
		OutboxBatchSize:     readInt("OUTBOX_BATCH_SIZE", 50),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:        readBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ShutdownTimeout:     readDurationSeconds("SHUTDOWN_TIMEOUT_SECONDS", 10),
	}
}

// Validate reports settings the service cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DB_DSN is required for the postgres store"))
		}
	case StoreMemory:
		// The relay publishes inside a store transaction, and the memory
		// store serializes every transaction behind one mutex.
		if c.KafkaBrokers != "" {
			errs = append(errs, errors.New("KAFKA_BROKERS requires the postgres store"))
		}
	default:
		errs = append(errs, errors.New("STORE must be postgres or memory"))
	}
	if c.JoinConflictRetries < 0 {
		errs = append(errs, errors.New("JOIN_CONFLICT_RETRIES must not be negative"))
	}
	return errors.Join(errs...)
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
