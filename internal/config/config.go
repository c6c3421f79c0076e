package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Config holds all application configuration.
type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	Generator    GeneratorConfig    `mapstructure:"generator"`
	Store        StoreConfig        `mapstructure:"store"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Server       ServerConfig       `mapstructure:"server"`
	Conversation ConversationConfig `mapstructure:"conversation"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GeneratorConfig points at an OpenAI-compatible completion server.
type GeneratorConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// StoreConfig selects where run history is kept.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// CacheConfig enables the Redis response cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// MetricsPort serves /metrics on its own listener when non-zero.
	MetricsPort    int      `mapstructure:"metrics_port"`
}

// ConversationConfig holds the defaults of chat, trace and compare.
type ConversationConfig struct {
	Model     string `mapstructure:"model"`
	MaxLength int    `mapstructure:"max_length"`
}

var validStoreDrivers = []string{"memory", "sqlite", "postgres"}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, errors.Errorf(format, args...).Error())
	}

	if !contains(validStoreDrivers, c.Store.Driver) {
		add("store.driver must be one of %s (got %q)", strings.Join(validStoreDrivers, ", "), c.Store.Driver)
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		add("store.dsn is required for driver %q", c.Store.Driver)
	}
	if c.Generator.BaseURL == "" {
		add("generator.base_url is required")
	}
	if c.Generator.Timeout <= 0 {
		add("generator.timeout must be positive (got %s)", c.Generator.Timeout)
	}
	if c.Generator.MaxRetries < 0 {
		add("generator.max_retries cannot be negative (got %d)", c.Generator.MaxRetries)
	}
	if c.Generator.RequestsPerSecond <= 0 {
		add("generator.requests_per_second must be positive (got %v)", c.Generator.RequestsPerSecond)
	}
	if c.Generator.Burst <= 0 {
		add("generator.burst must be positive (got %d)", c.Generator.Burst)
	}
	if c.Cache.RedisAddr != "" && c.Cache.TTL <= 0 {
		add("cache.ttl must be positive when the cache is enabled (got %s)", c.Cache.TTL)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port out of range (got %d)", c.Server.Port)
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		add("server.metrics_port out of range (got %d)", c.Server.MetricsPort)
	}
	if c.Conversation.MaxLength <= 0 {
		add("conversation.max_length must be positive (got %d)", c.Conversation.MaxLength)
	}

	if len(problems) > 0 {
		return errors.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
