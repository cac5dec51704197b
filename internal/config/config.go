// Package config loads runtime settings from SAGA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/saga/internal/rules"
	"github.com/roach88/saga/internal/store"
)

// Config holds process-wide settings. CLI flags override these values.
type Config struct {
	DBPath              string        `env:"SAGA_DB"                    envDefault:"saga.db"`
	MaxOpenConns        int           `env:"SAGA_MAX_OPEN_CONNS"        envDefault:"4"`
	ReserveRetryBudget  int           `env:"SAGA_RESERVE_RETRY_BUDGET"  envDefault:"8"`
	ReserveRetryBackoff time.Duration `env:"SAGA_RESERVE_RETRY_BACKOFF" envDefault:"2ms"`
	WorldEventCap       int           `env:"SAGA_WORLD_EVENT_CAP"       envDefault:"20"`
	RecapWindow         int           `env:"SAGA_RECAP_WINDOW"          envDefault:"5"`
	OTLPEndpoint        string        `env:"SAGA_OTEL_ENDPOINT"`
	LogLevel            string        `env:"SAGA_LOG_LEVEL"             envDefault:"info"`
}

// Parse loads configuration from the process environment.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// ParseFrom loads configuration from an explicit environment map instead
// of the process environment.
func ParseFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings that can never work.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("SAGA_DB must not be empty"))
	}
	if c.MaxOpenConns < 1 {
		errs = append(errs, fmt.Errorf("SAGA_MAX_OPEN_CONNS must be at least 1, got %d", c.MaxOpenConns))
	}
	if c.ReserveRetryBudget < 1 {
		errs = append(errs, fmt.Errorf("SAGA_RESERVE_RETRY_BUDGET must be at least 1, got %d", c.ReserveRetryBudget))
	}
	if c.ReserveRetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("SAGA_RESERVE_RETRY_BACKOFF must not be negative, got %s", c.ReserveRetryBackoff))
	}
	if c.WorldEventCap < 1 {
		errs = append(errs, fmt.Errorf("SAGA_WORLD_EVENT_CAP must be at least 1, got %d", c.WorldEventCap))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// StoreOptions returns the storage settings.
func (c Config) StoreOptions() store.Options {
	return store.Options{
		MaxOpenConns:        c.MaxOpenConns,
		ReserveRetryBudget:  c.ReserveRetryBudget,
		ReserveRetryBackoff: c.ReserveRetryBackoff,
	}
}

// RuleOptions returns the event handler settings.
func (c Config) RuleOptions() rules.Options {
	return rules.Options{WorldEventCap: c.WorldEventCap}
}

// Level parses LogLevel (debug, info, warn, error).
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("SAGA_LOG_LEVEL: %w", err)
	}
	return level, nil
}
