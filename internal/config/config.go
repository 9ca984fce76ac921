// Package config loads the service configuration from an optional YAML file
// with environment-variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	Addr string `yaml:"addr"`

	Store StoreConfig `yaml:"store"`
	Sweep SweepConfig `yaml:"sweep"`
	Chat  ChatConfig  `yaml:"chat"`
}

type StoreConfig struct {
	Backend       string `yaml:"backend"`
	SQLitePath    string `yaml:"sqlitePath"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDb"`
	RedisPassword string `yaml:"redisPassword"`
}

type SweepConfig struct {
	Schedule           string        `yaml:"schedule"`
	MaxPendingAge      time.Duration `yaml:"maxPendingAge"`
	MaxConversationAge time.Duration `yaml:"maxConversationAge"`
}

type ChatConfig struct {
	ArtifactToolName  string        `yaml:"artifactToolName"`
	SourceToolName    string        `yaml:"sourceToolName"`
	InlineAnnotations bool          `yaml:"inlineAnnotations"`
	KeepAliveInterval time.Duration `yaml:"keepAliveInterval"`
}

func Default() Config {
	return Config{
		Addr: "127.0.0.1:8080",
		Store: StoreConfig{
			Backend:    BackendMemory,
			SQLitePath: "./data/agentwire.db",
		},
		Sweep: SweepConfig{
			Schedule:           "0 * * * *",
			MaxPendingAge:      24 * time.Hour,
			MaxConversationAge: 30 * 24 * time.Hour,
		},
		Chat: ChatConfig{
			KeepAliveInterval: 15 * time.Second,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path when
// given, then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Addr = StringEnv("AGENTWIRE_ADDR", c.Addr)
	c.Store.Backend = StringEnv("AGENTWIRE_STORE_BACKEND", c.Store.Backend)
	c.Store.SQLitePath = StringEnv("AGENTWIRE_SQLITE_PATH", c.Store.SQLitePath)
	c.Store.RedisAddr = StringEnv("AGENTWIRE_REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisDB = ParseIntEnv("AGENTWIRE_REDIS_DB", c.Store.RedisDB)
	c.Store.RedisPassword = StringEnv("AGENTWIRE_REDIS_PASSWORD", c.Store.RedisPassword)
	c.Sweep.Schedule = StringEnv("AGENTWIRE_SWEEP_SCHEDULE", c.Sweep.Schedule)
	c.Sweep.MaxPendingAge = ParseDurationEnv("AGENTWIRE_SWEEP_MAX_PENDING_AGE", c.Sweep.MaxPendingAge)
	c.Sweep.MaxConversationAge = ParseDurationEnv("AGENTWIRE_SWEEP_MAX_CONVERSATION_AGE", c.Sweep.MaxConversationAge)
	c.Chat.ArtifactToolName = StringEnv("AGENTWIRE_ARTIFACT_TOOL", c.Chat.ArtifactToolName)
	c.Chat.SourceToolName = StringEnv("AGENTWIRE_SOURCE_TOOL", c.Chat.SourceToolName)
	c.Chat.InlineAnnotations = ParseBoolEnv("AGENTWIRE_INLINE_ANNOTATIONS", c.Chat.InlineAnnotations)
	c.Chat.KeepAliveInterval = ParseDurationEnv("AGENTWIRE_KEEPALIVE_INTERVAL", c.Chat.KeepAliveInterval)
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return fmt.Errorf("sqlite backend requires a path")
		}
	case BackendRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return fmt.Errorf("redis backend requires an address")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}
