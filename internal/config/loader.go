package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "AGENTTRACE"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
}

func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags bound through Viper()
// 2. Environment variables (AGENTTRACE_*), including those from .env
// 3. Project config (.agenttrace.yaml in the current directory)
// 4. User config (~/.config/agenttrace/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	l.setDefaults()
	l.v.SetEnvPrefix(envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", l.configFile)
		}
	} else {
		l.v.SetConfigName(".agenttrace")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if err := l.v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.Wrap(err, "reading config")
			}
			if err := l.readUserConfig(); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}
	return &cfg, nil
}

func (l *Loader) readUserConfig() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(home, ".config", "agenttrace", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "reading config %s", path)
	}
	return nil
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "text")

	l.v.SetDefault("generator.base_url", "http://localhost:8000")
	l.v.SetDefault("generator.api_key", "")
	l.v.SetDefault("generator.timeout", "2m")
	l.v.SetDefault("generator.max_retries", 2)
	l.v.SetDefault("generator.requests_per_second", 5)
	l.v.SetDefault("generator.burst", 1)

	l.v.SetDefault("store.driver", "sqlite")
	l.v.SetDefault("store.dsn", filepath.Join(".agenttrace", "runs.db"))

	l.v.SetDefault("cache.redis_addr", "")
	l.v.SetDefault("cache.redis_password", "")
	l.v.SetDefault("cache.redis_db", 0)
	l.v.SetDefault("cache.ttl", "1h")

	l.v.SetDefault("server.port", 8080)
	l.v.SetDefault("server.allowed_origins", []string{"*"})
	l.v.SetDefault("server.metrics_port", 0)

	l.v.SetDefault("conversation.model", "distilgpt2")
	l.v.SetDefault("conversation.max_length", 50)
}
