package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	SeedDemo bool `env:"SEED_DEMO" default:"true"`

	SubscriberBuffer     int      `env:"SUBSCRIBER_BUFFER" default:"16"`
	MaxListeners         int      `env:"MAX_LISTENERS" default:"10000"`
	MaxListenersPerIP    int      `env:"MAX_LISTENERS_PER_IP" default:"50"`
	ListenerConnectRate  float64  `env:"LISTENER_CONNECT_RATE" default:"10"`
	ListenerConnectBurst int      `env:"LISTENER_CONNECT_BURST" default:"20"`
	AllowedOrigins       []string `env:"ALLOWED_ORIGINS"` // space separated

	VoteRateLimit float64 `env:"VOTE_RATE_LIMIT" default:"50"` // per client IP per second
	VoteRateBurst int     `env:"VOTE_RATE_BURST" default:"100"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.AppEnv != "development" && cfg.AppEnv != "production" {
		return fmt.Errorf("APP_ENV must be development or production, got %q", cfg.AppEnv)
	}

	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", cfg.Port)
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	positive := []struct {
		name  string
		value float64
	}{
		{"SUBSCRIBER_BUFFER", float64(cfg.SubscriberBuffer)},
		{"MAX_LISTENERS", float64(cfg.MaxListeners)},
		{"MAX_LISTENERS_PER_IP", float64(cfg.MaxListenersPerIP)},
		{"LISTENER_CONNECT_RATE", cfg.ListenerConnectRate},
		{"LISTENER_CONNECT_BURST", float64(cfg.ListenerConnectBurst)},
		{"VOTE_RATE_LIMIT", cfg.VoteRateLimit},
		{"VOTE_RATE_BURST", float64(cfg.VoteRateBurst)},
		{"SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout.Seconds()},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}

	if cfg.MaxListenersPerIP > cfg.MaxListeners {
		return errors.New("MAX_LISTENERS_PER_IP must not exceed MAX_LISTENERS")
	}

	if !cfg.IsDevelopment() && slices.Contains(cfg.AllowedOrigins, "*") {
		return errors.New("ALLOWED_ORIGINS must not contain * in production")
	}

	return nil
}
