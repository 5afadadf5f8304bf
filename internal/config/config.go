// Package config loads timetrack's TOML configuration.
//
// The file lives at <data dir>/config.toml. Values missing from the file keep
// their [DefaultConfig] value. A handful of deployment settings can also come
// from the environment or a .env file next to the config; see [Config.ApplyEnv].
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"

	"tools.zach/dev/timetrack/internal/activity"
	"tools.zach/dev/timetrack/internal/atomicfile"
	"tools.zach/dev/timetrack/internal/migrate"
	"tools.zach/dev/timetrack/internal/paths"
	"tools.zach/dev/timetrack/internal/project"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config is the top-level configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Tracker holds session state machine timing.
	Tracker TrackerConfig `toml:"tracker"`
	// Matcher holds project code inference settings.
	Matcher MatcherConfig `toml:"matcher"`
	// Source holds where window snapshots come from.
	Source SourceConfig `toml:"source"`
	// Store holds the session persistence backend.
	Store StoreConfig `toml:"store"`
	// Confirm holds how project confirmation requests are delivered.
	Confirm ConfirmConfig `toml:"confirm"`
	// API holds the local control server.
	API APIConfig `toml:"api"`
	// Privacy holds windows that are never recorded.
	Privacy PrivacyConfig `toml:"privacy"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

type TrackerConfig struct {
	// PollIntervalSeconds is how often the snapshot source is polled.
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	// MinSessionSeconds is the shortest session that is kept.
	MinSessionSeconds float64 `toml:"min_session_seconds"`
	// StoreTimeoutSeconds bounds each store write.
	StoreTimeoutSeconds int `toml:"store_timeout_seconds"`
}

type MatcherConfig struct {
	// Prefixes are the project code prefixes, 2-4 uppercase letters each.
	Prefixes []string `toml:"prefixes"`
	// RecentSize is how many confirmed codes the recency cache holds.
	RecentSize int `toml:"recent_size"`
	// PersistRecent keeps the recency cache across restarts.
	PersistRecent bool `toml:"persist_recent"`
}

type SourceConfig struct {
	// Kind is "file" or "command".
	Kind string `toml:"kind"`
	// File is the probe file for kind "file". Empty means <data dir>/window.json.
	File string `toml:"file,omitempty"`
	// Command is the program and arguments for kind "command".
	Command []string `toml:"command,omitempty"`
	// CommandTimeoutSeconds bounds one command run.
	CommandTimeoutSeconds int `toml:"command_timeout_seconds"`
	// Watch reacts to probe file changes between polls.
	Watch bool `toml:"watch"`
}

type StoreConfig struct {
	// Driver is "json", "sqlite", "postgres", or "memory".
	Driver string `toml:"driver"`
	// DSN is the directory, database file, or connection string for Driver.
	DSN string `toml:"dsn,omitempty"`
	// WarnSizeMB logs a warning once the json store grows past it. 0 disables.
	WarnSizeMB int `toml:"warn_size_mb"`
}

type ConfirmConfig struct {
	// Mode is "log", "webhook", or "none".
	Mode string `toml:"mode"`
	// WebhookURL receives confirmation requests in webhook mode.
	WebhookURL string `toml:"webhook_url,omitempty"`
}

type APIConfig struct {
	// Enabled starts the local HTTP server.
	Enabled bool `toml:"enabled"`
	// Listen is the host:port the server binds.
	Listen string `toml:"listen"`
}

type PrivacyConfig struct {
	// IgnoreApps are glob patterns matched against the application name.
	IgnoreApps []string `toml:"ignore_apps"`
	// IgnorePaths are glob patterns matched against the document path.
	IgnorePaths []string `toml:"ignore_paths"`
}

type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the log file size that triggers rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Defaults
// ///////////////////////////////////////////////

// DefaultListen is the API address when none is configured.
const DefaultListen = "127.0.0.1:7315"

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Tracker: TrackerConfig{
			PollIntervalSeconds: 15,
			MinSessionSeconds:   5,
			StoreTimeoutSeconds: 10,
		},
		Matcher: MatcherConfig{
			Prefixes:      append([]string(nil), project.DefaultPrefixes...),
			RecentSize:    project.DefaultRecentSize,
			PersistRecent: true,
		},
		Source: SourceConfig{
			Kind:                  "file",
			CommandTimeoutSeconds: 5,
			Watch:                 true,
		},
		Store: StoreConfig{
			Driver:     "json",
			WarnSizeMB: 100,
		},
		Confirm: ConfirmConfig{
			Mode: "log",
		},
		API: APIConfig{
			Enabled: true,
			Listen:  DefaultListen,
		},
		Privacy: PrivacyConfig{
			IgnoreApps:  []string{},
			IgnorePaths: []string{},
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ExampleConfig returns the Config written to config.default.toml. It shows
// the optional fields filled in so the generated file documents them.
func ExampleConfig() *Config {
	cfg := DefaultConfig()
	cfg.Privacy.IgnoreApps = []string{"1Password*", "Keychain Access"}
	cfg.Privacy.IgnorePaths = []string{"/**/private/**"}
	return cfg
}

// ///////////////////////////////////////////////
// Durations
// ///////////////////////////////////////////////

// PollInterval is the time between snapshot polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Tracker.PollIntervalSeconds) * time.Second
}

// MinSession is the shortest session kept when a window changes.
func (c *Config) MinSession() time.Duration {
	return time.Duration(c.Tracker.MinSessionSeconds * float64(time.Second))
}

// StoreTimeout bounds each store call.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Tracker.StoreTimeoutSeconds) * time.Second
}

// CommandTimeout bounds one run of the probe command.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Source.CommandTimeoutSeconds) * time.Second
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil || v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads dataDir/config.toml over the defaults. A missing file yields
// DefaultConfig. Older files are backed up, migrated and saved back.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)
	migrated := migrate.Config.NeedsMigration(version)
	if migrated {
		migrate.Backup(path, data)
		data, _, err = migrate.Config.Run(data, version)
		if err != nil {
			return nil, fmt.Errorf("migrate config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if migrated {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}
	return cfg, nil
}

// Save writes the config as TOML with an atomic replace.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Environment
// ///////////////////////////////////////////////

// Environment variables that override config values.
const (
	EnvStoreDSN   = "TIMETRACK_STORE_DSN"
	EnvWebhookURL = "TIMETRACK_WEBHOOK_URL"
	EnvAPIListen  = "TIMETRACK_API_LISTEN"
)

// ApplyEnv loads envFile into the process environment, without replacing
// variables already set, then applies the TIMETRACK_* overrides. A missing
// envFile is not an error. Call Validate afterwards.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if v := os.Getenv(EnvStoreDSN); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv(EnvWebhookURL); v != "" {
		c.Confirm.WebhookURL = v
	}
	if v := os.Getenv(EnvAPIListen); v != "" {
		c.API.Listen = v
	}
	return nil
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	if c.Tracker.PollIntervalSeconds <= 0 {
		return fmt.Errorf("tracker.poll_interval_seconds must be > 0, got %d", c.Tracker.PollIntervalSeconds)
	}
	if c.Tracker.MinSessionSeconds < 0 {
		return fmt.Errorf("tracker.min_session_seconds must be >= 0, got %g", c.Tracker.MinSessionSeconds)
	}
	if c.Tracker.StoreTimeoutSeconds <= 0 {
		return fmt.Errorf("tracker.store_timeout_seconds must be > 0, got %d", c.Tracker.StoreTimeoutSeconds)
	}

	for _, p := range c.Matcher.Prefixes {
		if !project.ValidatePrefix(p) {
			return fmt.Errorf("invalid matcher.prefixes entry %q: must be 2-4 uppercase letters", p)
		}
	}
	if c.Matcher.RecentSize <= 0 {
		return fmt.Errorf("matcher.recent_size must be > 0, got %d", c.Matcher.RecentSize)
	}

	switch c.Source.Kind {
	case "file":
	case "command":
		if len(c.Source.Command) == 0 || c.Source.Command[0] == "" {
			return errors.New("source.command is required when source.kind is command")
		}
	default:
		return fmt.Errorf("invalid source.kind %q: must be file or command", c.Source.Kind)
	}
	if c.Source.CommandTimeoutSeconds <= 0 {
		return fmt.Errorf("source.command_timeout_seconds must be > 0, got %d", c.Source.CommandTimeoutSeconds)
	}

	switch c.Store.Driver {
	case "json", "sqlite", "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required when store.driver is postgres")
		}
	default:
		return fmt.Errorf("invalid store.driver %q: must be json, sqlite, postgres, or memory", c.Store.Driver)
	}
	if c.Store.WarnSizeMB < 0 {
		return fmt.Errorf("store.warn_size_mb must be >= 0, got %d", c.Store.WarnSizeMB)
	}

	switch c.Confirm.Mode {
	case "log", "none":
	case "webhook":
		if c.Confirm.WebhookURL == "" {
			return errors.New("confirm.webhook_url is required when confirm.mode is webhook")
		}
	default:
		return fmt.Errorf("invalid confirm.mode %q: must be log, webhook, or none", c.Confirm.Mode)
	}

	if c.API.Enabled && c.API.Listen == "" {
		return errors.New("api.listen is required when the api is enabled")
	}

	for _, pattern := range append(append([]string(nil), c.Privacy.IgnoreApps...), c.Privacy.IgnorePaths...) {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid privacy glob %q", pattern)
		}
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}
	return nil
}

// ///////////////////////////////////////////////
// Privacy Helpers
// ///////////////////////////////////////////////

// IsIgnored reports whether snap matches a privacy rule. Application patterns
// match the application name; path patterns match the document path and are
// skipped when the path is empty.
func (c *Config) IsIgnored(snap activity.WindowSnapshot) bool {
	if matchAny(c.Privacy.IgnoreApps, snap.Application) {
		return true
	}
	return snap.Path != "" && matchAny(c.Privacy.IgnorePaths, filepath.ToSlash(snap.Path))
}

func matchAny(patterns []string, s string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, s)
		if err != nil {
			slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
