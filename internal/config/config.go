// Package config loads the wizard server configuration from an optional YAML
// file and WIZARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/gabrielmiguelok/golivekit-wizard/pkg/logging"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the full server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Wizard WizardConfig `yaml:"wizard"`
	Store  StoreConfig  `yaml:"store"`
	Limits LimitsConfig `yaml:"limits"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins,omitempty"` // websocket origin patterns; empty means same-origin only
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// WizardConfig configures wizard sessions.
type WizardConfig struct {
	SubmitDelay   time.Duration `yaml:"submit_delay"`
	SessionTTL    time.Duration `yaml:"session_ttl"`    // idle time before a session and its stored draft expire
	SweepSchedule string        `yaml:"sweep_schedule"` // cron spec, e.g. "@every 1m"
}

// StoreConfig selects where drafts are persisted.
type StoreConfig struct {
	Backend      string      `yaml:"backend"`                 // memory, sqlite or redis
	SnapshotPath string      `yaml:"snapshot_path,omitempty"` // memory: file restored at start and written at shutdown
	SQLitePath   string      `yaml:"sqlite_path,omitempty"`
	Redis        RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// LimitsConfig bounds client traffic.
type LimitsConfig struct {
	EventsPerSecond float64 `yaml:"events_per_second"` // 0 disables event limiting
	EventBurst      int     `yaml:"event_burst"`
	MaxConnsPerIP   int     `yaml:"max_conns_per_ip"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Wizard: WizardConfig{
			SubmitDelay:   time.Second,
			SessionTTL:    24 * time.Hour,
			SweepSchedule: "@every 1m",
		},
		Store: StoreConfig{
			Backend:    BackendMemory,
			SQLitePath: "wizard.db",
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Limits: LimitsConfig{
			EventsPerSecond: 20,
			EventBurst:      40,
			MaxConnsPerIP:   32,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configPath over the defaults, then applies environment
// overrides. An empty or missing path yields the defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
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

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from WIZARD_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("WIZARD_ADDR", &c.Server.Addr)
	if v, ok := lookup("WIZARD_ALLOWED_ORIGINS"); ok {
		c.Server.AllowedOrigins = splitList(v)
	}
	dur("WIZARD_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)

	dur("WIZARD_SUBMIT_DELAY", &c.Wizard.SubmitDelay)
	dur("WIZARD_SESSION_TTL", &c.Wizard.SessionTTL)
	str("WIZARD_SWEEP_SCHEDULE", &c.Wizard.SweepSchedule)

	str("WIZARD_STORE", &c.Store.Backend)
	str("WIZARD_SNAPSHOT_PATH", &c.Store.SnapshotPath)
	str("WIZARD_SQLITE_PATH", &c.Store.SQLitePath)
	str("WIZARD_REDIS_ADDR", &c.Store.Redis.Addr)
	str("WIZARD_REDIS_PASSWORD", &c.Store.Redis.Password)
	if v, ok := lookup("WIZARD_REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WIZARD_REDIS_DB: %w", err))
		} else {
			c.Store.Redis.DB = n
		}
	}

	if v, ok := lookup("WIZARD_EVENTS_PER_SECOND"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("WIZARD_EVENTS_PER_SECOND: %w", err))
		} else {
			c.Limits.EventsPerSecond = f
		}
	}

	str("WIZARD_LOG_LEVEL", &c.Log.Level)
	if v, ok := lookup("WIZARD_LOG_JSON"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WIZARD_LOG_JSON: %w", err))
		} else {
			c.Log.JSON = b
		}
	}

	return errors.Join(errs...)
}

// Configuration errors.
var (
	ErrUnknownBackend   = configError("store backend must be memory, sqlite or redis")
	ErrSQLitePath       = configError("sqlite backend needs a sqlite_path")
	ErrRedisAddr        = configError("redis backend needs a redis addr")
	ErrNegativeDelay    = configError("submit_delay must not be negative")
	ErrSessionTTL       = configError("session_ttl must be positive")
	ErrEventBurst       = configError("event_burst must be positive when events are limited")
	ErrAddrRequired     = configError("server addr is required")
	ErrInvalidSweepSpec = configError("sweep_schedule is not a valid cron spec")
)

type configError string

func (e configError) Error() string { return string(e) }

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return ErrAddrRequired
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return ErrSQLitePath
		}
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return ErrRedisAddr
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Store.Backend)
	}
	if c.Wizard.SubmitDelay < 0 {
		return ErrNegativeDelay
	}
	if c.Wizard.SessionTTL <= 0 {
		return ErrSessionTTL
	}
	if c.Wizard.SweepSchedule != "" {
		if _, err := cron.ParseStandard(c.Wizard.SweepSchedule); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSweepSpec, err)
		}
	}
	if c.Limits.EventsPerSecond > 0 && c.Limits.EventBurst <= 0 {
		return ErrEventBurst
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

// Logger builds the logger described by the log section.
func (c *Config) Logger() *logging.SlogLogger {
	opts := []logging.LoggerOption{logging.WithLevelName(c.Log.Level)}
	if c.Log.JSON {
		opts = append(opts, logging.WithJSON())
	}
	return logging.NewSlogLogger(opts...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
