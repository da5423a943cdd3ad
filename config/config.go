package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"API_PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	// Polling loop / execution pipeline parameters (spec §4.3).
	PollingIntervalSeconds        int `env:"POLLING_INTERVAL_SECONDS" envDefault:"10" validate:"min=1,max=300"`
	MaxThreads                    int `env:"MAX_THREADS" envDefault:"10" validate:"min=1,max=1000"`
	LeaseTimeoutSeconds           int `env:"LEASE_TIMEOUT_SECONDS" envDefault:"240" validate:"min=10"`
	LeaseHeartbeatIntervalSeconds int `env:"LEASE_HEARTBEAT_INTERVAL_SECONDS" envDefault:"60" validate:"min=1"`
	BatchSize                     int `env:"BATCH_SIZE" envDefault:"30" validate:"min=1,max=10000"`

	// Broker (pub/sub) connection settings. This build has no broker
	// client and no subscriber: runStart only logs a warning when
	// PUBSUB_PROJECT_ID is set, and publishing stays log-only.
	PubSubProjectID       string `env:"PUBSUB_PROJECT_ID"`
	PubSubSubscription    string `env:"PUBSUB_SUBSCRIPTION"`
	PubSubCredentialsPath string `env:"PUBSUB_CREDENTIALS_PATH"`

	// HTTP ingress auth (spec §6/§7): Basic Auth gates the submit endpoint.
	APIUsername string `env:"API_USERNAME" validate:"required_if=Env production,required_if=Env staging"`
	APIPassword string `env:"API_PASSWORD" validate:"required_if=Env production,required_if=Env staging"`

	// JWTSecret gates the internal forwarded-call endpoint (HS256 bearer).
	JWTSecret string `env:"JWT_SECRET"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production"`
	ResendFrom   string `env:"RESEND_FROM" validate:"required_if=Env production"`
	AlertTo      string `env:"ALERT_TO" validate:"required_if=Env production"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
