// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	defaultSigningKey = "dev-secret-key-change-in-production"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `env:"LOAN_ADDR" envDefault:":8080"`
	Environment       string        `env:"LOAN_ENV" envDefault:"development"`
	ReadHeaderTimeout time.Duration `env:"LOAN_READ_HEADER_TIMEOUT" envDefault:"5s"`
	RequestTimeout    time.Duration `env:"LOAN_REQUEST_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout   time.Duration `env:"LOAN_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel          string        `env:"LOAN_LOG_LEVEL" envDefault:"info"`

	Auth      AuthConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Tracing   TracingConfig
	Bootstrap BootstrapAdmin
}

// AuthConfig configures access-token issuance and validation.
type AuthConfig struct {
	JWTSigningKey  string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer      string        `env:"JWT_ISSUER" envDefault:"loanmanager"`
	JWTAudience    string        `env:"JWT_AUDIENCE" envDefault:"loanmanager-api"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
	BcryptCost     int           `env:"BCRYPT_COST" envDefault:"12"`
}

// DatabaseConfig selects PostgreSQL. An empty URL runs the in-memory stores.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
	TxTimeout       time.Duration `env:"DATABASE_TX_TIMEOUT" envDefault:"5s"`
	AutoMigrate     bool          `env:"DATABASE_AUTO_MIGRATE" envDefault:"true"`
}

// RedisConfig enables the application read-through cache when URL is set.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	CacheTTL     time.Duration `env:"REDIS_CACHE_TTL" envDefault:"5m"`
}

// KafkaConfig enables the audit outbox relay when Brokers is set. The relay
// also requires DATABASE_URL since the outbox lives in PostgreSQL.
type KafkaConfig struct {
	Brokers      []string      `env:"KAFKA_BROKERS" envSeparator:","`
	Topic        string        `env:"KAFKA_AUDIT_TOPIC" envDefault:"loan.audit.events"`
	Partitions   int32         `env:"KAFKA_AUDIT_PARTITIONS" envDefault:"3"`
	PollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
}

// TracingConfig exports spans over OTLP/HTTP when Endpoint is set.
type TracingConfig struct {
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"loanmanager"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLE_RATIO" envDefault:"1"`
}

// BootstrapAdmin creates the first administrator on startup when the email
// is not registered yet.
type BootstrapAdmin struct {
	Email     string `env:"BOOTSTRAP_ADMIN_EMAIL"`
	Password  string `env:"BOOTSTRAP_ADMIN_PASSWORD"`
	FirstName string `env:"BOOTSTRAP_ADMIN_FIRST_NAME" envDefault:"System"`
	LastName  string `env:"BOOTSTRAP_ADMIN_LAST_NAME" envDefault:"Administrator"`
}

// Enabled reports whether bootstrap credentials were supplied.
func (b BootstrapAdmin) Enabled() bool {
	return b.Email != "" && b.Password != ""
}

// IsProduction reports whether the server runs with production settings.
func (s Server) IsProduction() bool {
	return s.Environment == EnvProduction
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// FromEnv builds a Server config from environment variables so main stays
// lean. A .env file in the working directory is loaded first when present;
// variables already set in the environment take precedence.
func FromEnv() (Server, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Server{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects settings that are unsafe or contradictory.
func (s Server) Validate() error {
	if s.IsProduction() && s.Auth.JWTSigningKey == defaultSigningKey {
		return errors.New("JWT_SIGNING_KEY must be set in production")
	}
	if len(s.Auth.JWTSigningKey) < 16 {
		return errors.New("JWT_SIGNING_KEY must be at least 16 bytes")
	}
	if s.Auth.AccessTokenTTL <= 0 {
		return errors.New("ACCESS_TOKEN_TTL must be positive")
	}
	if len(s.Kafka.Brokers) > 0 && s.Database.URL == "" {
		return errors.New("KAFKA_BROKERS requires DATABASE_URL for the audit outbox")
	}
	if s.Tracing.SampleRatio < 0 || s.Tracing.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLE_RATIO must be between 0 and 1")
	}
	if s.Kafka.BatchSize <= 0 {
		return errors.New("OUTBOX_BATCH_SIZE must be positive")
	}
	return nil
}
