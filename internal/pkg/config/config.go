// Package config loads service settings from defaults, an optional YAML
// file named by SAGA_CONFIG_FILE and SAGA_* environment variables, in
// increasing order of precedence.
//
//	SAGA_NATS_URL=nats://nats:4222 SAGA_LOG_LEVEL=debug ./payment-service
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	natsbus "github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging/nats"
)

const (
	EnvPrefix     = "SAGA"
	EnvConfigFile = "SAGA_CONFIG_FILE"
)

type Config struct {
	Service  string         `mapstructure:"service"`
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	NATS     NATSConfig     `mapstructure:"nats"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	OTel     OTelConfig     `mapstructure:"otel"`
	Saga     SagaConfig     `mapstructure:"saga"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	// Addr serves /healthz and /metrics, plus the API on the order service.
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Stream        string        `mapstructure:"stream"`
	MaxDeliver    int           `mapstructure:"max_deliver"`
	AckWait       time.Duration `mapstructure:"ack_wait"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	// DSN empty selects the in-memory payment store.
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"`
}

type OTelConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Environment string  `mapstructure:"environment"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type SagaConfig struct {
	MinAmount float64 `mapstructure:"min_amount"`
}

// Load builds the configuration of service.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	if path := os.Getenv(EnvConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	nd := natsbus.DefaultConfig()

	v.SetDefault("service", service)
	v.SetDefault("log.level", "info")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("nats.url", nd.URL)
	v.SetDefault("nats.stream", nd.Stream)
	v.SetDefault("nats.max_deliver", nd.MaxDeliver)
	v.SetDefault("nats.ack_wait", nd.AckWait)
	v.SetDefault("nats.retry_delay", nd.RetryDelay)
	v.SetDefault("nats.reconnect_wait", nd.ReconnectWait)
	v.SetDefault("nats.max_reconnects", nd.MaxReconnects)
	v.SetDefault("sqlite.path", fmt.Sprintf("./data/%s.db", service))
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.environment", "local")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("saga.min_amount", 0.1)
}

func (c *Config) validate() error {
	if c.Service == "" {
		return fmt.Errorf("config: service name is required")
	}
	if c.NATS.MaxDeliver < 1 {
		return fmt.Errorf("config: nats.max_deliver must be at least 1, got %d", c.NATS.MaxDeliver)
	}
	if c.Saga.MinAmount < 0 {
		return fmt.Errorf("config: saga.min_amount must not be negative, got %v", c.Saga.MinAmount)
	}
	return nil
}

// Bus converts the NATS section to the JetStream bus settings. The
// connection is named after the service.
func (c *Config) Bus(topics []string) natsbus.Config {
	nc := natsbus.DefaultConfig()
	nc.URL = c.NATS.URL
	nc.Name = c.Service
	nc.Stream = c.NATS.Stream
	nc.Topics = topics
	nc.MaxDeliver = c.NATS.MaxDeliver
	nc.AckWait = c.NATS.AckWait
	nc.RetryDelay = c.NATS.RetryDelay
	nc.ReconnectWait = c.NATS.ReconnectWait
	nc.MaxReconnects = c.NATS.MaxReconnects
	return nc
}
