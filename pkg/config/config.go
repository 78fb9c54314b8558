// Package config provides configuration loading for the engine services.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EscalationConfig controls the escalation scheduler.
type EscalationConfig struct {
	// ScanInterval is the fixed tick interval; ignored when ScanCron is set.
	ScanInterval time.Duration `yaml:"scan_interval"`
	// ScanCron optionally replaces the fixed interval with a cron schedule.
	ScanCron string `yaml:"scan_cron"`
	// LockRedisAddr enables the cross-process scan lock; empty means the
	// in-process lock.
	LockRedisAddr     string `yaml:"lock_redis_addr"`
	LockRedisPassword string `yaml:"lock_redis_password"`
	LockRedisDB       int    `yaml:"lock_redis_db"`
}

// DispatchConfig controls the action dispatch worker pool.
type DispatchConfig struct {
	Workers int `yaml:"workers" validate:"gte=0"`
}

// Config is the engine service configuration.
type Config struct {
	// DatabaseURL selects the persistence backend by scheme
	// (file://path or postgres://...).
	DatabaseURL string `yaml:"database_url" validate:"required"`
	// EventBusProvider selects the message transport (kafka or gochannel).
	EventBusProvider string `yaml:"event_bus_provider" validate:"required,oneof=kafka gochannel"`
	LogLevel         string `yaml:"log_level"`

	Escalation EscalationConfig `yaml:"escalation"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
}

// Load reads and validates a YAML config file, applying defaults for
// omitted fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is given;
// environment variables fill the required fields.
func Default() *Config {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		EventBusProvider: os.Getenv("EVENT_BUS_PROVIDER"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
	}

	cfg.applyDefaults()

	return cfg
}

func (c *Config) applyDefaults() {
	if c.EventBusProvider == "" {
		c.EventBusProvider = "gochannel"
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Escalation.ScanInterval <= 0 {
		c.Escalation.ScanInterval = time.Minute
	}

	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = 4
	}
}
