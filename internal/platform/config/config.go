// Package config loads node configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	escrowmodels "rotrust/internal/escrow/models"
)

// Ledger backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendLevelDB  = "leveldb"
)

// Config is the full node configuration.
type Config struct {
	Server   Server
	Ledger   Ledger
	Postgres Postgres
	Redis    Redis
	LevelDB  LevelDB
	Kafka    Kafka
	Otel     Otel
	Log      Log
	Escrow   Escrow
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ROTRUST_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"ROTRUST_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"ROTRUST_WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"ROTRUST_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Ledger selects and bounds the state store.
type Ledger struct {
	Backend   string        `env:"ROTRUST_LEDGER_BACKEND" envDefault:"memory"`
	TxTimeout time.Duration `env:"ROTRUST_TX_TIMEOUT" envDefault:"5s"`
}

// Postgres configures the SQL ledger backend.
type Postgres struct {
	DSN          string        `env:"ROTRUST_POSTGRES_DSN"`
	MaxOpenConns int           `env:"ROTRUST_POSTGRES_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int           `env:"ROTRUST_POSTGRES_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLife  time.Duration `env:"ROTRUST_POSTGRES_CONN_MAX_LIFETIME" envDefault:"30m"`
	Migrate      bool          `env:"ROTRUST_POSTGRES_MIGRATE" envDefault:"true"`
}

// Redis configures the Redis ledger backend.
type Redis struct {
	URL          string        `env:"ROTRUST_REDIS_URL"`
	Prefix       string        `env:"ROTRUST_REDIS_PREFIX" envDefault:"rotrust"`
	PoolSize     int           `env:"ROTRUST_REDIS_POOL_SIZE" envDefault:"20"`
	MinIdleConns int           `env:"ROTRUST_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"ROTRUST_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"ROTRUST_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"ROTRUST_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// LevelDB configures the embedded ledger backend.
type LevelDB struct {
	Path       string `env:"ROTRUST_LEVELDB_PATH" envDefault:"./data/ledger"`
	SyncWrites bool   `env:"ROTRUST_LEVELDB_SYNC" envDefault:"true"`
}

// Kafka configures event streaming. Empty brokers disable it.
type Kafka struct {
	Brokers          []string      `env:"ROTRUST_KAFKA_BROKERS" envSeparator:","`
	Topic            string        `env:"ROTRUST_KAFKA_TOPIC" envDefault:"rotrust.ledger-events"`
	Partitions       int32         `env:"ROTRUST_KAFKA_PARTITIONS" envDefault:"3"`
	Replication      int16         `env:"ROTRUST_KAFKA_REPLICATION" envDefault:"1"`
	EnsureTopic      bool          `env:"ROTRUST_KAFKA_ENSURE_TOPIC" envDefault:"true"`
	FailureThreshold int           `env:"ROTRUST_KAFKA_FAILURE_THRESHOLD" envDefault:"5"`
	Cooldown         time.Duration `env:"ROTRUST_KAFKA_COOLDOWN" envDefault:"30s"`
}

// Otel configures tracing. An empty endpoint installs no exporter.
type Otel struct {
	Endpoint    string  `env:"ROTRUST_OTEL_ENDPOINT"`
	ServiceName string  `env:"ROTRUST_OTEL_SERVICE_NAME" envDefault:"rotrust-node"`
	SampleRatio float64 `env:"ROTRUST_OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// Log configures the structured logger.
type Log struct {
	Level      string `env:"ROTRUST_LOG_LEVEL" envDefault:"info"`
	Format     string `env:"ROTRUST_LOG_FORMAT" envDefault:"json"`
	File       string `env:"ROTRUST_LOG_FILE"`
	MaxSizeMB  int    `env:"ROTRUST_LOG_MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"ROTRUST_LOG_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"ROTRUST_LOG_MAX_AGE_DAYS" envDefault:"28"`
}

// Escrow configures the state machine.
type Escrow struct {
	ReadinessPolicy string `env:"ROTRUST_READINESS_POLICY" envDefault:"on_condition"`
}

// Policy returns the parsed readiness policy.
func (e Escrow) Policy() (escrowmodels.ReadinessPolicy, error) {
	return escrowmodels.ParseReadinessPolicy(e.ReadinessPolicy)
}

// FromEnv loads and validates the configuration.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Ledger.Backend = strings.ToLower(strings.TrimSpace(cfg.Ledger.Backend))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	switch c.Ledger.Backend {
	case BackendMemory, BackendLevelDB:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("ROTRUST_POSTGRES_DSN is required for the postgres backend")
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("ROTRUST_REDIS_URL is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	if _, err := c.Escrow.Policy(); err != nil {
		return err
	}
	if c.Otel.SampleRatio < 0 || c.Otel.SampleRatio > 1 {
		return fmt.Errorf("ROTRUST_OTEL_SAMPLE_RATIO must be within [0,1]")
	}
	return nil
}
