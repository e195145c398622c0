// Package config loads the server configuration from YAML with ${VAR}
// expansion. A .env file next to the process, when present, is loaded into
// the environment first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Broker    BrokerConfig    `yaml:"broker"`
	Rooms     RoomsConfig     `yaml:"rooms"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Queue     QueueConfig     `yaml:"queue"`
	Registry  RegistryConfig  `yaml:"registry"`
	Draft     DraftConfig     `yaml:"draft"`
	Notify    NotifyConfig    `yaml:"notify"`
	Auth      AuthConfig      `yaml:"auth"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	InstanceID      string        `yaml:"instance_id"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	OriginPatterns  []string      `yaml:"origin_patterns"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DatabaseConfig selects PostgreSQL when DSN or Host is set; otherwise the
// server runs on in-memory stores.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

func (d DatabaseConfig) Enabled() bool {
	return d.DSN != "" || d.Host != ""
}

type BrokerConfig struct {
	Kind           string        `yaml:"kind"` // none | memory | redis | nats
	ChannelPrefix  string        `yaml:"channel_prefix"`
	RetryInterval  time.Duration `yaml:"retry_interval"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	MaxFailures    uint32        `yaml:"max_failures"`
	ResetTimeout   time.Duration `yaml:"reset_timeout"`
	Redis          RedisConfig   `yaml:"redis"`
	NATS           NATSConfig    `yaml:"nats"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type RoomsConfig struct {
	Capacity int `yaml:"capacity"`
	// AutoCleanup defaults to true when omitted.
	AutoCleanup *bool `yaml:"auto_cleanup"`
}

type RateLimitConfig struct {
	PerSecond     int           `yaml:"per_second"`
	PerMinute     int           `yaml:"per_minute"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	MaxViolations int           `yaml:"max_violations"`
}

type QueueConfig struct {
	MaxDepth      int           `yaml:"max_depth"`
	BatchSize     int           `yaml:"batch_size"`
	DrainInterval time.Duration `yaml:"drain_interval"`
	WriteBuffer   int           `yaml:"write_buffer"`
}

type RegistryConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// Websocket pings; a pong counts as activity, so keep it below IdleTimeout.
	PingInterval time.Duration `yaml:"ping_interval"`
}

type DraftConfig struct {
	TickInterval                time.Duration `yaml:"tick_interval"`
	DefaultPickTimeLimitSeconds int           `yaml:"default_pick_time_limit_seconds"`
	StoreTimeout                time.Duration `yaml:"store_timeout"`
}

type NotifyConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"` // per SSE frame
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// LoadDotEnv loads the given .env files into the environment. Missing files
// are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes after ${VAR} expansion.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates. An empty
// path skips the file and uses defaults only.
func LoadAndValidate(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = &Config{}
		cfg.applyDefaults()
	} else {
		var err error
		if cfg, err = LoadWithDefaults(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func newInstanceID() string {
	return uuid.NewString()
}
