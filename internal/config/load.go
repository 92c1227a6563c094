package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "TASKFLOW"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile behaves like Load but reads the given config file instead of
// searching the working directory for config.yaml.
func LoadFile(path string) (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the rules that span sections.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Events.Backend == "rabbitmq" && cfg.RabbitMQ.URL == "" {
		return errors.New("config validation failed: rabbitmq.url is required when events.backend is rabbitmq")
	}
	if cfg.Events.Backend == "rabbitmq" && cfg.RabbitMQ.Queue == "" {
		return errors.New("config validation failed: rabbitmq.queue is required when events.backend is rabbitmq")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.environment", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.fluent.enabled", false)
	v.SetDefault("log.fluent.host", "localhost")
	v.SetDefault("log.fluent.port", 24224)
	v.SetDefault("log.fluent.tag_prefix", "taskflow")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.connect_timeout", 5*time.Second)
	v.SetDefault("database.query_timeout", 10*time.Second)
	v.SetDefault("database.lock_timeout", 3*time.Second)

	v.SetDefault("events.backend", "redis")
	v.SetDefault("events.stream", "task-events")
	v.SetDefault("events.group", "notifications")
	v.SetDefault("events.consumer", "worker-1")
	v.SetDefault("events.batch_size", 10)
	v.SetDefault("events.block", time.Second)
	v.SetDefault("events.claim_min_idle", time.Minute)
	v.SetDefault("events.max_len", 100000)
	v.SetDefault("events.max_deliveries", 5)
	v.SetDefault("events.retry_backoff", 2*time.Second)
	v.SetDefault("events.notify_types", []string{
		"task.created", "task.completed", "task.assigned", "task.cancelled",
	})
	v.SetDefault("events.run_consumer_in_api", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.pool_timeout", 4*time.Second)

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.queue", "task-events")
	v.SetDefault("rabbitmq.dial_timeout", 5*time.Second)
	v.SetDefault("rabbitmq.prefetch", 10)

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.api_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", 10*time.Second)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime", 24*time.Hour)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", 60*time.Second)

	v.SetDefault("worker.health_port", 8081)
}
