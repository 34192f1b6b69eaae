package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	Compliance ComplianceConfig `koanf:"compliance"`
	Provider   ProviderConfig   `koanf:"provider"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"gt=0,lte=65535"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr" validate:"required"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type ComplianceConfig struct {
	// DefaultTimezone is the platform fallback when a recipient timezone is
	// unknown or invalid.
	DefaultTimezone string `koanf:"default_timezone" validate:"required"`
	// DecisionCacheTTL bounds how long a stale "can send" may outlive a
	// revocation if invalidation fails. Quiet hours are never cached.
	DecisionCacheTTL time.Duration `koanf:"decision_cache_ttl"`
	// RateLimitPerSecond / RateBurst guard the transport per tenant.
	RateLimitPerSecond float64 `koanf:"rate_limit_per_second"`
	RateBurst          int     `koanf:"rate_burst"`
}

type ProviderConfig struct {
	// BaseURL of the upstream SMS provider API. Empty selects the logging
	// transport, which accepts every message without delivering it.
	BaseURL    string        `koanf:"base_url"`
	AccountSID string        `koanf:"account_sid"`
	AuthToken  string        `koanf:"auth_token"`
	Timeout    time.Duration `koanf:"timeout"`
}

// Load layers defaults, an optional yaml file, and SCG_-prefixed environment
// variables, then validates the result.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			URL:             "postgres://localhost:5432/compliance?sslmode=disable",
			MaxOpenConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Compliance: ComplianceConfig{
			DefaultTimezone:    "America/Chicago",
			DecisionCacheTTL:   5 * time.Minute,
			RateLimitPerSecond: 10,
			RateBurst:          20,
		},
		Provider: ProviderConfig{
			Timeout: 10 * time.Second,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	// Config file is optional.
	_ = k.Load(file.Provider(configPath), yaml.Parser())

	if err := k.Load(env.Provider("SCG_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "SCG_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
