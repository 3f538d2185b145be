// Package config loads the settings of the tutor binaries from a YAML file,
// an optional .env file and TUTOR_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sky-flux/tutor"
)

// Config is the full application configuration.
type Config struct {
	Engine    tutor.Config    `yaml:"engine"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Neighbors NeighborsConfig `yaml:"neighbors"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`
	RoundSize    int           `yaml:"round_size" validate:"gte=1"` // answers per stored round
}

// StoreConfig selects the history store.
type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite file"`
	Path   string `yaml:"path" validate:"required"`
}

// NeighborsConfig selects the similarity source. An empty Path and
// RedisURL disable similarity terms.
type NeighborsConfig struct {
	Path      string        `yaml:"path"`
	RedisURL  string        `yaml:"redis_url"`
	Prefix    string        `yaml:"prefix"`
	TopK      int           `yaml:"top_k" validate:"gte=0"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
	CacheSize int           `yaml:"cache_size" validate:"gte=0"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Engine: tutor.DefaultConfig(),
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			RoundSize:    10,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "./data/tutor.db",
		},
		Neighbors: NeighborsConfig{
			TopK:    100,
			Timeout: 50 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

var validate = validator.New()

// Load builds the configuration. path names a YAML file; when empty,
// TUTOR_CONFIG is consulted and a missing file is not an error. A .env file
// in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = os.Getenv("TUTOR_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = "tutor.yaml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the application settings and the engine configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	return c.Engine.Validate()
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "TUTOR_ADDR")
	setString(&c.Store.Driver, "TUTOR_STORE_DRIVER")
	setString(&c.Store.Path, "TUTOR_STORE_PATH")
	setString(&c.Neighbors.Path, "TUTOR_NEIGHBORS_PATH")
	setString(&c.Neighbors.RedisURL, "TUTOR_REDIS_URL")
	setString(&c.Logging.Level, "TUTOR_LOG_LEVEL")
	setString(&c.Logging.Format, "TUTOR_LOG_FORMAT")

	if v := os.Getenv("TUTOR_ROUND_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TUTOR_ROUND_SIZE: %w", err)
		}
		c.Server.RoundSize = n
	}
	if v := os.Getenv("TUTOR_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TUTOR_SEED: %w", err)
		}
		c.Engine.Session.Seed = n
	}
	if v := os.Getenv("TUTOR_STRATEGY"); v != "" {
		if err := c.Engine.Selection.Strategy.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("TUTOR_STRATEGY: %w", err)
		}
	}
	if v := os.Getenv("TUTOR_REVIEW_POLICY"); v != "" {
		if err := c.Engine.Review.Policy.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("TUTOR_REVIEW_POLICY: %w", err)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
