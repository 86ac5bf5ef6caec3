// Package config loads the YAML configuration of the coach server and CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/discochess/coach/internal/accuracy"
	"github.com/discochess/coach/internal/live"
	"github.com/discochess/coach/internal/review"
)

// ErrInvalid indicates a configuration that fails validation.
var ErrInvalid = errors.New("config: invalid")

// Store kinds.
const (
	StoreMemory = "memory"
	StoreDisk   = "disk"
	StoreS3     = "s3"
	StoreGCS    = "gcs"
)

// Config is the complete configuration.
type Config struct {
	Engine   Engine   `yaml:"engine"`
	Analysis Analysis `yaml:"analysis"`
	Live     Live     `yaml:"live"`
	Store    Store    `yaml:"store"`
	Server   Server   `yaml:"server"`
	Log      Log      `yaml:"log"`
}

// Engine configures the engine process and its supervision.
type Engine struct {
	Path    string            `yaml:"path"`
	Args    []string          `yaml:"args"`
	HashMB  int               `yaml:"hash_mb"`
	Threads int               `yaml:"threads"`
	Options map[string]string `yaml:"options"`

	StartupTimeout    time.Duration `yaml:"startup_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	SearchGrace       time.Duration `yaml:"search_grace"`
	KillGrace         time.Duration `yaml:"kill_grace"`
	MaxRestarts       int           `yaml:"max_restarts"`
	RestartWindow     time.Duration `yaml:"restart_window"`
	DefaultTimeLimit  time.Duration `yaml:"default_time_limit"`
}

// Analysis configures batch game review.
type Analysis struct {
	review.Options `yaml:",inline"`

	Thresholds accuracy.Thresholds `yaml:"thresholds"`
}

// Live configures interactive sessions.
type Live struct {
	live.Settings `yaml:",inline"`

	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	EventBuffer       int           `yaml:"event_buffer"`
	Backoff           live.Backoff  `yaml:"backoff"`
}

// Store configures persistence.
type Store struct {
	// Kind is one of memory, disk, s3 or gcs.
	Kind string `yaml:"kind"`

	// Dir is the root directory of the disk store.
	Dir string `yaml:"dir"`

	// Bucket, Prefix, Endpoint and Region locate the s3 and gcs stores.
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`

	// Compression is zstd, gzip or none.
	Compression string `yaml:"compression"`

	// CacheSize is the number of games and analyses kept in memory. Zero
	// disables the cache.
	CacheSize int `yaml:"cache_size"`
}

// Server configures the HTTP server.
type Server struct {
	Addr string `yaml:"addr"`
}

// Log configures logging.
type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: Engine{
			Path:              "stockfish",
			HashMB:            128,
			Threads:           1,
			StartupTimeout:    10 * time.Second,
			HeartbeatInterval: 30 * time.Second,
			HeartbeatTimeout:  5 * time.Second,
			SearchGrace:       2 * time.Second,
			KillGrace:         2 * time.Second,
			MaxRestarts:       5,
			RestartWindow:     10 * time.Minute,
			DefaultTimeLimit:  30 * time.Second,
		},
		Analysis: Analysis{
			Options:    review.DefaultOptions(),
			Thresholds: accuracy.DefaultThresholds(),
		},
		Live: Live{
			Settings:          live.DefaultSettings(),
			IdleTimeout:       10 * time.Minute,
			HeartbeatInterval: 15 * time.Second,
			EventBuffer:       64,
			Backoff:           live.DefaultBackoff(),
		},
		Store: Store{
			Kind:        StoreMemory,
			Dir:         "data",
			Compression: "zstd",
			CacheSize:   256,
		},
		Server: Server{Addr: ":8080"},
		Log:    Log{Level: "info"},
	}
}

// Load reads the file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	e := c.Engine
	check(e.Path != "", "engine.path is required")
	check(e.HashMB >= 0, "engine.hash_mb must not be negative")
	check(e.Threads >= 0, "engine.threads must not be negative")
	check(e.StartupTimeout > 0, "engine.startup_timeout must be positive")
	check(e.HeartbeatInterval >= 0, "engine.heartbeat_interval must not be negative")
	check(e.HeartbeatTimeout > 0, "engine.heartbeat_timeout must be positive")
	check(e.SearchGrace > 0, "engine.search_grace must be positive")
	check(e.KillGrace > 0, "engine.kill_grace must be positive")
	check(e.MaxRestarts > 0, "engine.max_restarts must be positive")
	check(e.RestartWindow > 0, "engine.restart_window must be positive")
	check(e.DefaultTimeLimit > 0, "engine.default_time_limit must be positive")

	a := c.Analysis
	check(a.Depth > 0, "analysis.depth must be positive")
	check(a.SkipOpeningMoves == nil || *a.SkipOpeningMoves >= 0, "analysis.skip_opening_moves must not be negative")
	check(a.MaxPositions == nil || *a.MaxPositions >= 0, "analysis.max_positions must not be negative")
	check(a.MultiPV > 0, "analysis.multipv must be positive")
	check(a.TimeLimit > 0, "analysis.time_limit must be positive")
	if err := a.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("analysis.thresholds: %w", err))
	}

	l := c.Live
	check(l.Depth > 0, "live.depth must be positive")
	check(l.TimeLimitMs > 0, "live.time_limit_ms must be positive")
	check(l.MultiPV > 0, "live.multipv must be positive")
	check(l.IdleTimeout > 0, "live.idle_timeout must be positive")
	check(l.HeartbeatInterval > 0, "live.heartbeat_interval must be positive")
	check(l.EventBuffer > 0, "live.event_buffer must be positive")
	check(l.Backoff.Base > 0, "live.backoff.base must be positive")
	check(l.Backoff.Factor >= 1, "live.backoff.factor must be at least 1")
	check(l.Backoff.Max >= l.Backoff.Base, "live.backoff.max must not be below base")
	check(l.Backoff.MaxAttempts > 0, "live.backoff.max_attempts must be positive")

	s := c.Store
	switch s.Kind {
	case StoreMemory:
	case StoreDisk:
		check(s.Dir != "", "store.dir is required for the disk store")
	case StoreS3, StoreGCS:
		check(s.Bucket != "", "store.bucket is required for the %s store", s.Kind)
	default:
		errs = append(errs, fmt.Errorf("store.kind %q is not one of memory, disk, s3, gcs", s.Kind))
	}
	switch s.Compression {
	case "zstd", "gzip", "none":
	default:
		errs = append(errs, fmt.Errorf("store.compression %q is not one of zstd, gzip, none", s.Compression))
	}
	check(s.CacheSize >= 0, "store.cache_size must not be negative")

	check(c.Server.Addr != "", "server.addr is required")
	if _, err := c.Log.ZapLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// ZapLevel parses the log level.
func (l Log) ZapLevel() (zapcore.Level, error) {
	return zapcore.ParseLevel(l.Level)
}
