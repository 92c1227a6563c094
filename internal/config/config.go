package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"     validate:"required"`
	Log       LogConfig       `mapstructure:"log"        validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"   validate:"required"`
	Events    EventsConfig    `mapstructure:"events"     validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port         int           `mapstructure:"port"          validate:"required,gt=0,lt=65536"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"  validate:"gte=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	Environment  string        `mapstructure:"environment"`
}

// LogConfig controls the root logger.
type LogConfig struct {
	Level  string       `mapstructure:"level"  validate:"required,oneof=debug info warn error"`
	Format string       `mapstructure:"format" validate:"required,oneof=json text"`
	Fluent FluentConfig `mapstructure:"fluent"`
}

// FluentConfig forwards log records to a Fluent Bit / Fluentd agent.
type FluentConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"       validate:"required_if=Enabled true"`
	Port      int    `mapstructure:"port"       validate:"omitempty,gt=0,lt=65536"`
	TagPrefix string `mapstructure:"tag_prefix"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	// Driver selects the task store backend.
	Driver          string        `mapstructure:"driver"            validate:"required,oneof=postgres sqlite"`
	URL             string        `mapstructure:"url"               validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"   validate:"gt=0"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"     validate:"gte=0"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"      validate:"gte=0"`
}

// EventsConfig configures the event log and the notification consumer.
type EventsConfig struct {
	Backend       string        `mapstructure:"backend"        validate:"required,oneof=redis rabbitmq memory"`
	Stream        string        `mapstructure:"stream"         validate:"required"`
	Group         string        `mapstructure:"group"          validate:"required"`
	Consumer      string        `mapstructure:"consumer"       validate:"required"`
	BatchSize     int           `mapstructure:"batch_size"     validate:"gt=0"`
	Block         time.Duration `mapstructure:"block"          validate:"gte=0"`
	ClaimMinIdle  time.Duration `mapstructure:"claim_min_idle" validate:"gte=0"`
	MaxLen        int64         `mapstructure:"max_len"        validate:"gte=0"`
	MaxDeliveries int64         `mapstructure:"max_deliveries" validate:"gte=0"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"  validate:"gte=0"`
	NotifyTypes   []string      `mapstructure:"notify_types"`
	// RunConsumerInAPI starts the notification consumer inside the serve process.
	RunConsumerInAPI bool `mapstructure:"run_consumer_in_api"`
}

// RedisConfig holds the connection settings shared by the event stream and the
// rate limiter.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"          validate:"required"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"            validate:"gte=0"`
	PoolSize     int           `mapstructure:"pool_size"     validate:"gt=0"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"  validate:"gt=0"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"  validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"  validate:"gt=0"`
}

// RabbitMQConfig configures the RabbitMQ event log backend.
type RabbitMQConfig struct {
	URL         string        `mapstructure:"url"`
	Queue       string        `mapstructure:"queue"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"gte=0"`
	Prefetch    int           `mapstructure:"prefetch"     validate:"gte=0"`
}

// TelegramConfig configures the notification sender. Notifications are
// disabled when BotToken is empty.
type TelegramConfig struct {
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"   validate:"required_with=BotToken"`
	APIURL   string        `mapstructure:"api_url"   validate:"required,url"`
	Timeout  time.Duration `mapstructure:"timeout"   validate:"gt=0"`
}

// GeminiConfig enables the Gemini health probe when APIKey is set.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	// JWTSecret enables bearer token actor resolution when set.
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`

	// TokenLifetime is the validity of tokens minted by the token command.
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}

// RateLimitConfig configures the per-client request limiter.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests" validate:"gt=0"`
	Window   time.Duration `mapstructure:"window"   validate:"gt=0"`
}

// WorkerConfig configures the worker process.
type WorkerConfig struct {
	HealthPort int `mapstructure:"health_port" validate:"gte=0,lt=65536"`
}
