// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the rulesd configuration.
type Config struct {
	Port        int           `env:"HEXRULES_PORT" envDefault:"8080"`
	DBPath      string        `env:"HEXRULES_DB_PATH" envDefault:"data/hexrules.db"`
	Rulebook    string        `env:"HEXRULES_RULEBOOK"`
	AdminKey    string        `env:"HEXRULES_ADMIN_KEY"`
	Watch       bool          `env:"HEXRULES_WATCH" envDefault:"true"`
	LogLevel    string        `env:"HEXRULES_LOG_LEVEL" envDefault:"info"`
	CORSOrigins []string      `env:"HEXRULES_CORS_ORIGINS" envSeparator:","`
	Autosave    time.Duration `env:"HEXRULES_AUTOSAVE" envDefault:"5m"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the rulesd configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Level(); err != nil {
		return Config{}, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("HEXRULES_PORT: %d out of range", cfg.Port)
	}
	return cfg, nil
}

// Level maps LogLevel onto a slog level.
func (c Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("HEXRULES_LOG_LEVEL: unknown level %q", c.LogLevel)
}
