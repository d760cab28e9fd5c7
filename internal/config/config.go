// Package config loads application configuration in layers: built-in
// defaults, then an optional YAML file, then FANOUT_-prefixed environment
// variables, each layer overriding the last. Env vars use double
// underscores for nesting, e.g. FANOUT_EVENTBUS__PARTITIONS maps to
// eventbus.partitions.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the environment variable that overrides the config
// file location.
const ConfigPathEnvVar = "FANOUT_CONFIG_PATH"

// DefaultConfigPaths are searched in order when ConfigPathEnvVar is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"./config/config.yaml",
	"/etc/fanout/config.yaml",
}

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Postgres  PostgresConfig  `koanf:"postgres"`
	Redis     RedisConfig     `koanf:"redis"`
	Timeline  TimelineConfig  `koanf:"timeline"`
	EventBus  EventBusConfig  `koanf:"eventbus"`
	Outbox    OutboxConfig    `koanf:"outbox"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Port string `koanf:"port"`
}

type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DB       string `koanf:"db"`
	SSLMode  string `koanf:"sslmode"`
}

// DSN returns the libpq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DB, p.SSLMode)
}

type RedisConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// Addr returns the host:port address.
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type TimelineConfig struct {
	CelebrityThreshold int `koanf:"celebrityThreshold"`
	CacheSize          int `koanf:"cacheSize"`
	DefaultPageSize    int `koanf:"defaultPageSize"`
	MaxPageSize        int `koanf:"maxPageSize"`
}

type EventBusConfig struct {
	// EmbeddedServer runs an in-process NATS JetStream server instead of
	// dialing an external cluster.
	EmbeddedServer  bool   `koanf:"embeddedServer"`
	URL             string `koanf:"url"`
	StoreDir        string `koanf:"storeDir"`
	Partitions      int    `koanf:"partitions"`
	StreamName      string `koanf:"streamName"`
	MaxReconnects   int    `koanf:"maxReconnects"`
	TrackMsgID      bool   `koanf:"trackMsgId"`
}

type OutboxConfig struct {
	PollInterval      string `koanf:"pollInterval"`
	BatchSize         int    `koanf:"batchSize"`
	CompactInterval   string `koanf:"compactInterval"`
	CompactAfterHours int    `koanf:"compactAfterHours"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Defaults returns the built-in baseline configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Postgres: PostgresConfig{
			Host: "localhost", Port: "5432",
			User: "fanout", Password: "fanout", DB: "fanout",
			SSLMode: "disable",
		},
		Redis: RedisConfig{Host: "localhost", Port: "6379", DB: 0},
		Timeline: TimelineConfig{
			CelebrityThreshold: 10000,
			CacheSize:          800,
			DefaultPageSize:    20,
			MaxPageSize:        100,
		},
		EventBus: EventBusConfig{
			EmbeddedServer: true,
			URL:            "nats://127.0.0.1:4222",
			StoreDir:       "./data/nats",
			Partitions:     8,
			StreamName:     "FANOUT_EVENTS",
			MaxReconnects:  10,
			TrackMsgID:     true,
		},
		Outbox: OutboxConfig{
			PollInterval:      "1s",
			BatchSize:         100,
			CompactInterval:   "1h",
			CompactAfterHours: 24,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load builds the layered configuration: defaults, then file (if present),
// then environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	cfg := Defaults()
	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := resolveConfigPath(); path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: load file %s: %w", path, err)
			}
		}
	}

	envProvider := env.Provider("FANOUT_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "FANOUT_")
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	out := &Config{}
	if err := k.Unmarshal("", out); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return out, nil
}

func resolveConfigPath() string {
	if v := os.Getenv(ConfigPathEnvVar); v != "" {
		return v
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
