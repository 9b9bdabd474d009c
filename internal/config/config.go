package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/plainhr/plain/internal/logger"
)

// EnvPrefix - префикс переменных окружения, например PLAIN_SERVER_PORT.
const EnvPrefix = "PLAIN"

type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Storage  string         `yaml:"storage" envconfig:"STORAGE"`
	Postgres PostgresConfig `yaml:"postgres" envconfig:"POSTGRES"`
	Redis    RedisConfig    `yaml:"redis" envconfig:"REDIS"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq" envconfig:"RABBITMQ"`
	Auth     AuthConfig     `yaml:"auth" envconfig:"AUTH"`
	Cache    CacheConfig    `yaml:"cache" envconfig:"CACHE"`
	Batch    BatchConfig    `yaml:"batch" envconfig:"BATCH"`
	Retry    RetryConfig    `yaml:"retry" envconfig:"RETRY"`
	Level    LevelConfig    `yaml:"level" envconfig:"LEVEL"`
	Log      logger.Config  `yaml:"log" envconfig:"LOG"`
}

type ServerConfig struct {
	Port            string        `yaml:"port" envconfig:"PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn" envconfig:"DSN"`
}

// RedisConfig. Пустой Addr отключает Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB"`
}

// RabbitMQConfig. Пустой URL отключает публикацию уведомлений.
type RabbitMQConfig struct {
	URL               string `yaml:"url" envconfig:"URL"`
	NotificationQueue string `yaml:"notification_queue" envconfig:"NOTIFICATION_QUEUE"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" envconfig:"TOKEN_TTL"`
}

type CacheConfig struct {
	Backend    string        `yaml:"backend" envconfig:"BACKEND"` // memory или redis
	TTL        time.Duration `yaml:"ttl" envconfig:"TTL"`
	MaxEntries int           `yaml:"max_entries" envconfig:"MAX_ENTRIES"`
	StaleGrace time.Duration `yaml:"stale_grace" envconfig:"STALE_GRACE"`
}

type BatchConfig struct {
	Wait     time.Duration `yaml:"wait" envconfig:"WAIT"`
	MaxBatch int           `yaml:"max_batch" envconfig:"MAX_BATCH"`
}

type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval" envconfig:"INITIAL_INTERVAL"`
	MaxInterval     time.Duration `yaml:"max_interval" envconfig:"MAX_INTERVAL"`
	MaxAttempts     int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	Jitter          float64       `yaml:"jitter" envconfig:"JITTER"`
}

type LevelConfig struct {
	ExcellentLikeThreshold int `yaml:"excellent_like_threshold" envconfig:"EXCELLENT_LIKE_THRESHOLD"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Storage: "memory",
		RabbitMQ: RabbitMQConfig{
			NotificationQueue: "plain_notifications",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 1000,
			StaleGrace: 30 * time.Minute,
		},
		Batch: BatchConfig{
			Wait:     10 * time.Millisecond,
			MaxBatch: 100,
		},
		Retry: RetryConfig{
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			MaxAttempts:     3,
			Jitter:          0.5,
		},
		Level: LevelConfig{
			ExcellentLikeThreshold: 20,
		},
		Log: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Load читает конфигурацию: значения по умолчанию, затем YAML-файл,
// затем .env и переменные окружения с префиксом PLAIN.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// .env необязателен
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	switch c.Storage {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("postgres dsn is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("jwt secret is required")
	}
	if c.Cache.TTL <= 0 {
		return errors.New("cache ttl must be positive")
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("redis addr is required for redis cache")
		}
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry max attempts must be at least 1")
	}
	return nil
}
