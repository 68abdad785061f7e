// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for lorebook-cli.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/lorebook-cli/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete lorebook-cli configuration.
type Config struct {
	Version string `toml:"version"`

	// Server connection
	Server ServerConfig `toml:"server"`

	// Chat/retrieval settings
	Chat ChatConfig `toml:"chat"`

	// Logging
	Log LogConfig `toml:"log"`

	// Local history cache
	History HistoryConfig `toml:"history"`
}

// ServerConfig describes the Lorebook server connection.
type ServerConfig struct {
	// BaseURL is the server base URL.
	BaseURL string `toml:"base_url"`
	// APIToken is the bearer credential attached to every request.
	APIToken string `toml:"api_token"`
	// TimeoutSecs is the timeout for non-streaming requests.
	TimeoutSecs int `toml:"timeout_secs"`
}

// ChatConfig contains the per-query retrieval knobs.
type ChatConfig struct {
	// Streaming selects the incremental answer path.
	Streaming bool `toml:"streaming"`
	// MaxSources caps how many retrieval sources back an answer.
	MaxSources int `toml:"max_sources"`
	// MinSimilarity filters retrieval candidates (0..1).
	MinSimilarity float64 `toml:"min_similarity"`
	// IncludeImages adds image and image-analysis sources to retrieval.
	IncludeImages bool `toml:"include_images"`
	// IncludeGraph adds wikilink-graph neighbors to retrieval.
	IncludeGraph bool `toml:"include_graph"`
	// Temperature controls answer sampling.
	Temperature float64 `toml:"temperature"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
	// File is the log file path (empty = ~/.lorebook/lorebook.log).
	File string `toml:"file"`
	// MaxSizeMB rotates the log file beyond this size.
	MaxSizeMB int `toml:"max_size_mb"`
	// MaxBackups is how many rotated files to keep.
	MaxBackups int `toml:"max_backups"`
	// MaxAgeDays prunes rotated files older than this.
	MaxAgeDays int `toml:"max_age_days"`
	// Console mirrors log output to stderr.
	Console bool `toml:"console"`
}

// HistoryConfig controls the local conversation cache.
type HistoryConfig struct {
	Enabled bool `toml:"enabled"`
	// Path is the cache database path (empty = ~/.lorebook/history.db).
	Path string `toml:"path"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a config with all defaults applied.
func Default() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			BaseURL:     "http://localhost:8500",
			TimeoutSecs: 60,
		},
		Chat: ChatConfig{
			Streaming:     true,
			MaxSources:    5,
			MinSimilarity: 0.35,
			Temperature:   0.2,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
}

// ConfigDir returns the configuration directory (~/.lorebook).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".lorebook"), nil
}

// ConfigPath returns the default TOML config path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir creates the config directory if it does not exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the config from the default location, falling back to
// defaults when no file exists. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the config from an explicit path. Fields absent from
// the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	fillDefaults(cfg)
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillDefaults fills zero-valued numeric fields that a hand-edited file
// may have dropped.
func fillDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = def.Server.BaseURL
	}
	if cfg.Server.TimeoutSecs <= 0 {
		cfg.Server.TimeoutSecs = def.Server.TimeoutSecs
	}
	if cfg.Chat.MaxSources <= 0 {
		cfg.Chat.MaxSources = def.Chat.MaxSources
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = def.Log.MaxSizeMB
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = def.Log.MaxBackups
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = def.Log.MaxAgeDays
	}
}

// Save writes the config to the default location atomically.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	// 0600: the file may carry the API token.
	return util.AtomicWriteFile(path, buf.Bytes(), 0600)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies LOREBOOK_* environment variables on top of
// the loaded config.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LOREBOOK_SERVER_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("LOREBOOK_API_TOKEN"); v != "" {
		c.Server.APIToken = v
	}
	if v := os.Getenv("LOREBOOK_STREAMING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Chat.Streaming = b
		}
	}
	if v := os.Getenv("LOREBOOK_MAX_SOURCES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chat.MaxSources = n
		}
	}
	if v := os.Getenv("LOREBOOK_MIN_SIMILARITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Chat.MinSimilarity = f
		}
	}
	if v := os.Getenv("LOREBOOK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOREBOOK_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

// ValidateErrors collects all validation failures.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "; ")
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the config for out-of-range values.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "server.base_url",
			Message: fmt.Sprintf("invalid URL %q", c.Server.BaseURL),
		})
	}
	if c.Chat.MaxSources < 1 || c.Chat.MaxSources > 50 {
		errs = append(errs, ValidationError{
			Field:   "chat.max_sources",
			Message: fmt.Sprintf("must be 1-50, got %d", c.Chat.MaxSources),
		})
	}
	if c.Chat.MinSimilarity < 0 || c.Chat.MinSimilarity > 1 {
		errs = append(errs, ValidationError{
			Field:   "chat.min_similarity",
			Message: fmt.Sprintf("must be 0-1, got %g", c.Chat.MinSimilarity),
		})
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "chat.temperature",
			Message: fmt.Sprintf("must be 0-2, got %g", c.Chat.Temperature),
		})
	}
	if !validLogLevels[c.Log.Level] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("must be debug, info, warn, or error, got %q", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// DERIVED PATHS
// =============================================================================

// LogFilePath resolves the effective log file path.
func (c *Config) LogFilePath() (string, error) {
	if c.Log.File != "" {
		return c.Log.File, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "lorebook.log"), nil
}

// HistoryPath resolves the effective history cache path.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// =============================================================================
// GLOBAL SINGLETON
// =============================================================================

var (
	globalConfig *Config
	globalMu     sync.RWMutex
	globalOnce   sync.Once
)

// Global returns the process-wide config, loading it on first use.
func Global() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		globalMu.Lock()
		globalConfig = cfg
		globalMu.Unlock()
	})

	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalConfig
}

// SetGlobal replaces the process-wide config (used by the file watcher on
// reload).
func SetGlobal(cfg *Config) {
	globalOnce.Do(func() {})
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting clears the singleton so tests can reload.
func ResetGlobalForTesting() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = nil
	globalOnce = sync.Once{}
}

// ErrNoToken indicates no API token is configured anywhere.
var ErrNoToken = errors.New("no API token configured (set server.api_token or LOREBOOK_API_TOKEN)")

// RequireToken returns the bearer token or ErrNoToken.
func (c *Config) RequireToken() (string, error) {
	if strings.TrimSpace(c.Server.APIToken) == "" {
		return "", ErrNoToken
	}
	return strings.TrimSpace(c.Server.APIToken), nil
}
