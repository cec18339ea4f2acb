package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/FulfillmentGo/pkg/config"
	"github.com/utafrali/FulfillmentGo/pkg/database"
)

// Config holds all configuration for the fulfillment service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"fulfillment"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"fulfillment_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"fulfillment"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	DBMaxConns        int `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns        int `env:"DB_MIN_CONNS" envDefault:"5"`
	DBSlowQueryMillis int `env:"DB_SLOW_QUERY_MS" envDefault:"200"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers      []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	OrderUpdatesTopic string   `env:"ORDER_UPDATES_TOPIC" envDefault:"fulfillment.order-updates"`

	// Payment provider
	PaymentDuration          time.Duration `env:"PAYMENT_DURATION_MS" envDefault:"2000ms"`
	PaymentFailedProbability float64       `env:"PAYMENT_FAILED_PROBABILITY" envDefault:"20"`
	PaymentMaxAttempts       int           `env:"PAYMENT_MAX_ATTEMPTS" envDefault:"3"`

	// Durable queue
	EventMaxAttempts  int           `env:"EVENT_MAX_ATTEMPTS" envDefault:"5"`
	QueuePollInterval time.Duration `env:"QUEUE_POLL_INTERVAL_MS" envDefault:"250ms"`
	QueueRetryBase    time.Duration `env:"QUEUE_RETRY_BASE_MS" envDefault:"1000ms"`
	QueueRetryMax     time.Duration `env:"QUEUE_RETRY_MAX_MS" envDefault:"60000ms"`
	QueueJobLease     time.Duration `env:"QUEUE_JOB_LEASE_MS" envDefault:"300000ms"`
	PaymentWorkers    int           `env:"PAYMENT_WORKERS" envDefault:"4"`
	EventWorkers      int           `env:"EVENT_WORKERS" envDefault:"4"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load fulfillment config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PaymentFailedProbability < 0 || c.PaymentFailedProbability > 100 {
		return fmt.Errorf("payment failed probability must be between 0 and 100, got %v", c.PaymentFailedProbability)
	}
	if c.PaymentMaxAttempts < 1 {
		return fmt.Errorf("payment max attempts must be at least 1, got %d", c.PaymentMaxAttempts)
	}
	if c.EventMaxAttempts < 1 {
		return fmt.Errorf("event max attempts must be at least 1, got %d", c.EventMaxAttempts)
	}
	if c.PaymentWorkers < 1 || c.EventWorkers < 1 {
		return fmt.Errorf("worker counts must be at least 1")
	}
	return nil
}

// Postgres returns the pool configuration for the fulfillment database.
func (c *Config) Postgres() *database.PostgresConfig {
	cfg := database.DefaultPostgresConfig()
	cfg.Host = c.PostgresHost
	cfg.Port = c.PostgresPort
	cfg.User = c.PostgresUser
	cfg.Password = c.PostgresPass
	cfg.DBName = c.PostgresDB
	cfg.SSLMode = c.PostgresSSL
	cfg.MaxConns = int32(c.DBMaxConns)
	cfg.MinConns = int32(c.DBMinConns)
	return &cfg
}

// Redis returns the Redis client configuration.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// SlowQueryThreshold returns the slow query warning threshold.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.DBSlowQueryMillis) * time.Millisecond
}
