package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type APIConfig struct {
	BaseURL string `yaml:"base_url" env:"QUIZ_API_BASE_URL"`
	PushURL string `yaml:"push_url" env:"QUIZ_PUSH_URL"`
	Timeout string `yaml:"timeout" env:"QUIZ_API_TIMEOUT"`
	// RetryDelay is the pause between push channel reconnects.
	RetryDelay string `yaml:"retry_delay" env:"QUIZ_PUSH_RETRY_DELAY"`
}

type QuizConfig struct {
	DurationSeconds int `yaml:"duration_seconds" env:"QUIZ_DURATION_SECONDS"`
}

type StorageConfig struct {
	Driver          string `yaml:"driver" env:"QUIZ_STORAGE_DRIVER"`
	ExpirationHours int    `yaml:"expiration_hours" env:"QUIZ_STORAGE_EXPIRATION_HOURS"`
	Path            string `yaml:"path" env:"QUIZ_STORAGE_PATH"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"QUIZ_REDIS_ADDR"`
	Password string `yaml:"password" env:"QUIZ_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"QUIZ_REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"QUIZ_REDIS_PREFIX"`
	// TTL mirrors expiry natively in Redis; empty leaves keys persistent.
	TTL string `yaml:"ttl" env:"QUIZ_REDIS_TTL"`
}

type PostgresConfig struct {
	URL string `yaml:"url" env:"QUIZ_POSTGRES_URL"`
}

type LogConfig struct {
	Format string `yaml:"format" env:"QUIZ_LOG_FORMAT"`
	Level  string `yaml:"level" env:"QUIZ_LOG_LEVEL"`
}

type Config struct {
	API      APIConfig      `yaml:"api"`
	Quiz     QuizConfig     `yaml:"quiz"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Log      LogConfig      `yaml:"log"`
}

// Default is the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		API:     APIConfig{BaseURL: "http://localhost:3000", Timeout: "15s", RetryDelay: "3s"},
		Quiz:    QuizConfig{DurationSeconds: 120},
		Storage: StorageConfig{Driver: DriverFile, ExpirationHours: 8},
		Redis:   RedisConfig{Prefix: "quiz:"},
		Log:     LogConfig{Format: "text", Level: "info"},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when empty or missing), then a .env file, then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case DriverFile, DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis storage requires redis.addr")
		}
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return errors.New("postgres storage requires postgres.url")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is empty")
	}
	return nil
}

// QuizDuration is the length of one attempt.
func (c Config) QuizDuration() time.Duration {
	if c.Quiz.DurationSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.Quiz.DurationSeconds) * time.Second
}

// StorageTTL is how long a persisted session survives.
func (c Config) StorageTTL() time.Duration {
	if c.Storage.ExpirationHours <= 0 {
		return 8 * time.Hour
	}
	return time.Duration(c.Storage.ExpirationHours) * time.Hour
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
