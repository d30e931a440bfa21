package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds all configuration loaded from YAML and env.
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Limiter LimiterConfig `yaml:"limiter"`
	Stats   StatsConfig   `yaml:"stats"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr                   string `yaml:"addr"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// LimiterConfig selects the admission control strategy and its limits.
// Bounds of the limits are enforced when the strategy is built.
type LimiterConfig struct {
	Strategy                 string `yaml:"strategy"`
	MaxWeightAllowedInWindow int    `yaml:"max_weight_allowed_in_window"`
	WindowSizeInSeconds      int    `yaml:"window_size_in_seconds"`
	// UserHeader identifies users by header instead of by client address.
	UserHeader string `yaml:"user_header"`
}

// StatsConfig controls where admission decisions are recorded.
type StatsConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Prefix        string `yaml:"prefix"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
	TrackUsers    bool   `yaml:"track_users"`
}

// LoggingConfig controls log level/output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	StatsNone   = "none"
	StatsMemory = "memory"
	StatsRedis  = "redis"
)

// Load reads YAML config (if present) and overrides with env vars.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			b, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("parse yaml: %w", err)
			}
		}
	}

	overrideFromEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:                   ":3000",
			ShutdownTimeoutSeconds: 10,
		},
		Limiter: LimiterConfig{
			Strategy:                 "sliding_window",
			MaxWeightAllowedInWindow: 100,
			WindowSizeInSeconds:      60 * 60 * 24,
		},
		Stats: StatsConfig{
			Backend:    StatsNone,
			Prefix:     "admission:stats",
			TTLSeconds: 24 * 60 * 60,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

func overrideFromEnv(cfg *AppConfig) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ADMISSION_STRATEGY"); v != "" {
		cfg.Limiter.Strategy = strings.ToLower(v)
	}
	if v := os.Getenv("ADMISSION_MAX_WEIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limiter.MaxWeightAllowedInWindow = n
		}
	}
	if v := os.Getenv("ADMISSION_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limiter.WindowSizeInSeconds = n
		}
	}
	if v := os.Getenv("ADMISSION_USER_HEADER"); v != "" {
		cfg.Limiter.UserHeader = v
	}
	if v := os.Getenv("STATS_BACKEND"); v != "" {
		cfg.Stats.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("STATS_REDIS_ADDR"); v != "" {
		cfg.Stats.RedisAddr = v
	}
	if v := os.Getenv("STATS_REDIS_PASSWORD"); v != "" {
		cfg.Stats.RedisPassword = v
	}
	if v := os.Getenv("STATS_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stats.RedisDB = n
		}
	}
	if v := os.Getenv("STATS_TRACK_USERS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Stats.TrackUsers = b
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *AppConfig) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server addr required")
	}
	if c.Limiter.MaxWeightAllowedInWindow <= 0 {
		return errors.New("max weight allowed in window must be >0")
	}
	if c.Limiter.WindowSizeInSeconds <= 0 {
		return errors.New("window size must be >0")
	}
	backend := strings.ToLower(c.Stats.Backend)
	switch backend {
	case "":
		c.Stats.Backend = StatsNone
	case StatsNone, StatsMemory:
		c.Stats.Backend = backend
	case StatsRedis:
		if c.Stats.RedisAddr == "" {
			return errors.New("stats redis addr required when stats backend is redis")
		}
		c.Stats.Backend = backend
	default:
		return fmt.Errorf("invalid stats backend: %s", c.Stats.Backend)
	}
	return nil
}

// ShutdownTimeout returns the graceful shutdown timeout as duration.
func (c *AppConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// StatsTTL returns the expiration of per-minute and per-user stats.
func (c *AppConfig) StatsTTL() time.Duration {
	return time.Duration(c.Stats.TTLSeconds) * time.Second
}
