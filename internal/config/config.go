package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Provider ProviderConfig `yaml:"provider"`
	Server   ServerConfig   `yaml:"server"`
	Sync     SyncConfig     `yaml:"sync"`
	LogLevel string         `yaml:"log_level"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type CacheConfig struct {
	Type          string `yaml:"type"` // "memory" or "redis"
	RedisHost     string `yaml:"redis_host"`
	RedisPort     int    `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

func (c CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type ProviderConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	AdminToken      string        `yaml:"admin_token"`
	AllowUnauth     bool          `yaml:"allow_unauth"` // non-production escape hatch
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type SyncConfig struct {
	Interval     time.Duration `yaml:"interval"`
	WindowDays   int           `yaml:"window_days"`
	LeaseTTL     time.Duration `yaml:"lease_ttl"`
	BatchSize    int           `yaml:"-"`
	RequestDelay time.Duration `yaml:"-"`
}

// Bounds for the environment-tunable runtime values. Malformed or
// out-of-range input falls back to the default, never errors: a bad
// operator override must not break a scheduled run.
const (
	DefaultBatchSize = 75
	MinBatchSize     = 1
	MaxBatchSize     = 500

	DefaultRequestDelayMs = 100
	MinRequestDelayMs     = 0
	MaxRequestDelayMs     = 5000
)

// SyncRuntime holds the per-run tunables resolved from environment input.
type SyncRuntime struct {
	BatchSize    int
	RequestDelay time.Duration
}

// ResolveRuntime parses the optional batch-size and request-delay overrides.
// It is a pure function so the fallback behavior is testable in one place.
func ResolveRuntime(batchSize, delayMs string) SyncRuntime {
	rt := SyncRuntime{
		BatchSize:    DefaultBatchSize,
		RequestDelay: DefaultRequestDelayMs * time.Millisecond,
	}

	if n, err := strconv.Atoi(batchSize); err == nil && n >= MinBatchSize && n <= MaxBatchSize {
		rt.BatchSize = n
	}
	if n, err := strconv.Atoi(delayMs); err == nil && n >= MinRequestDelayMs && n <= MaxRequestDelayMs {
		rt.RequestDelay = time.Duration(n) * time.Millisecond
	}

	return rt
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	rt := ResolveRuntime(os.Getenv("SYNC_BATCH_SIZE"), os.Getenv("SYNC_REQUEST_DELAY_MS"))
	cfg.Sync.BatchSize = rt.BatchSize
	cfg.Sync.RequestDelay = rt.RequestDelay

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Cache.RedisHost == "" {
		c.Cache.RedisHost = "localhost"
	}
	if c.Cache.RedisPort == 0 {
		c.Cache.RedisPort = 6379
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "streakboard"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "sync_runs"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "sync_run_events"
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 30 * time.Second
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 15 * time.Minute
	}
	if c.Sync.WindowDays == 0 {
		c.Sync.WindowDays = 7
	}
	if c.Sync.LeaseTTL == 0 {
		c.Sync.LeaseTTL = 10 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
