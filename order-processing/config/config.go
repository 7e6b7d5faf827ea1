package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"go-fulfillment-saga/order-processing/types"
)

// Config holds everything the worker and starter need
type Config struct {
	Environment string

	TemporalHost string
	TaskQueue    string
	HTTPAddr     string

	Store    StoreConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Payments PaymentsConfig

	SLA      types.SLAPolicy
	Schedule ScheduleConfig

	// Entities accepted on order creation. Empty accepts all.
	Entities []string

	WebhookDedupTTL time.Duration
}

// StoreConfig selects the document store backend
type StoreConfig struct {
	Backend     string // memory|pebble|postgres
	PebbleDir   string
	DatabaseURL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers      []string
	WebhookTopic string
	GroupID      string
}

type PaymentsConfig struct {
	DefaultProvider string
	StripeAPIKey    string
}

// ScheduleConfig drives how soon a non-terminal order is looked at again
type ScheduleConfig struct {
	CreatedRecoveryDelay    time.Duration
	BookedPollInterval      time.Duration
	FulfilledRecoveryDelay  time.Duration
	InitialFulfillmentDelay time.Duration
	ForceFailDelay          time.Duration
	TransientRetryBackoff   time.Duration
}

// Load reads configuration from the environment, after an optional .env file
func Load() (*Config, error) {
	// .env is optional; real deployments inject the environment directly
	_ = godotenv.Load()

	cfg := &Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		TemporalHost: getEnv("TEMPORAL_HOST", "localhost:7233"),
		TaskQueue:    getEnv("ORDER_TASK_QUEUE", "order-fulfillment-task-queue"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		Store: StoreConfig{
			Backend:     getEnv("STORE_BACKEND", "pebble"),
			PebbleDir:   getEnv("PEBBLE_DIR", "./data/fulfillment"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Brokers:      splitList(getEnv("KAFKA_BROKERS", "")),
			WebhookTopic: getEnv("WEBHOOK_TOPIC", "payments.provider-events"),
			GroupID:      getEnv("WEBHOOK_GROUP_ID", "order-fulfillment"),
		},
		Payments: PaymentsConfig{
			DefaultProvider: getEnv("DEFAULT_PROVIDER", "stripe"),
			StripeAPIKey:    getEnv("STRIPE_API_KEY", ""),
		},
		Entities: splitList(getEnv("ENTITIES", "")),
	}

	var err error
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	defaults := types.DefaultSLAPolicy()
	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"ORDER_CREATED_SLA", defaults.OrderCreated, &cfg.SLA.OrderCreated},
		{"ORDER_BOOKED_SLA", defaults.OrderBooked, &cfg.SLA.OrderBooked},
		{"RECORD_CREATED_SLA", defaults.RecordCreated, &cfg.SLA.RecordCreated},
		{"RECORD_READY_SLA", defaults.RecordReady, &cfg.SLA.RecordReady},
		{"RECORD_PROCESSING_SLA", defaults.RecordProcessing, &cfg.SLA.RecordProcessing},
		{"CREATED_RECOVERY_DELAY", time.Minute, &cfg.Schedule.CreatedRecoveryDelay},
		{"BOOKED_POLL_INTERVAL", 15 * time.Minute, &cfg.Schedule.BookedPollInterval},
		{"FULFILLED_RECOVERY_DELAY", 5 * time.Second, &cfg.Schedule.FulfilledRecoveryDelay},
		{"INITIAL_FULFILLMENT_DELAY", 10 * time.Second, &cfg.Schedule.InitialFulfillmentDelay},
		{"FORCE_FAIL_DELAY", 5 * time.Second, &cfg.Schedule.ForceFailDelay},
		{"TRANSIENT_RETRY_BACKOFF", time.Hour, &cfg.Schedule.TransientRetryBackoff},
		{"WEBHOOK_DEDUP_TTL", 72 * time.Hour, &cfg.WebhookDedupTTL},
	}
	for _, d := range durations {
		if *d.dest, err = getEnvDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "pebble":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (use memory, pebble or postgres)", c.Store.Backend)
	}
	if c.Payments.DefaultProvider == "" {
		return fmt.Errorf("DEFAULT_PROVIDER must not be empty")
	}
	if c.Schedule.TransientRetryBackoff <= 0 {
		return fmt.Errorf("TRANSIENT_RETRY_BACKOFF must be positive")
	}
	if c.Schedule.BookedPollInterval <= 0 {
		return fmt.Errorf("BOOKED_POLL_INTERVAL must be positive")
	}
	return nil
}

// IsDevelopment reports whether the service runs locally
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
