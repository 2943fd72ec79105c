// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

// Package config loads Brewline configuration via Koanf v2 with layered
// sources (highest priority wins):
//
//  1. Environment variables (JWT_SECRET, SERVER_PORT, ...)
//  2. Config file (config.yaml)
//  3. Built-in defaults
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/brewline/config.yaml",
	"/etc/brewline/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config is the root configuration for the Brewline server.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Security   SecurityConfig   `koanf:"security"`
	Logging    LoggingConfig    `koanf:"logging"`
	Websocket  WebsocketConfig  `koanf:"websocket"`
	Reconciler ReconcilerConfig `koanf:"reconciler"`
	API        APIConfig        `koanf:"api"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// Environment is "development" or "production". Production enforces
	// stricter validation (JWT secret strength).
	Environment string `koanf:"environment"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds BadgerDB settings for the message store.
type DatabaseConfig struct {
	// Path is the on-disk directory for the Badger value log and LSM tree.
	Path string `koanf:"path"`
	// InMemory runs Badger without persistence. Tests only.
	InMemory bool `koanf:"in_memory"`
	// GCInterval is how often the value-log garbage collector runs.
	GCInterval time.Duration `koanf:"gc_interval"`
	// GCDiscardRatio is passed to Badger's RunValueLogGC.
	GCDiscardRatio float64 `koanf:"gc_discard_ratio"`
}

// SecurityConfig holds authentication and rate limiting settings.
type SecurityConfig struct {
	// JWTSecret signs and verifies bearer tokens (HS256).
	// Minimum 32 characters in production.
	JWTSecret string `koanf:"jwt_secret"`
	// TokenTTL bounds how long issued tokens remain valid.
	TokenTTL time.Duration `koanf:"token_ttl"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// WebsocketConfig holds realtime connection tuning.
type WebsocketConfig struct {
	// WriteWait is the per-frame write deadline.
	WriteWait time.Duration `koanf:"write_wait"`
	// PongWait is how long a connection may stay silent before it is
	// considered dead. Pings are sent at 90% of this interval.
	PongWait time.Duration `koanf:"pong_wait"`
	// MaxMessageSize caps inbound frame size in bytes.
	MaxMessageSize int64 `koanf:"max_message_size"`
	// SendBuffer is the per-client outbound queue length. A client whose
	// queue overflows is dropped rather than blocking the hub.
	SendBuffer int `koanf:"send_buffer"`
}

// ReconcilerConfig holds duplicate-thread repair settings.
type ReconcilerConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

// APIConfig holds pagination limits.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// defaultConfig returns a Config with all defaults applied. These are
// layered first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8467,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Database: DatabaseConfig{
			Path:           "/data/brewline",
			InMemory:       false,
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Security: SecurityConfig{
			JWTSecret:         "",
			TokenTTL:          24 * time.Hour,
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Websocket: WebsocketConfig{
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			MaxMessageSize: 64 * 1024,
			SendBuffer:     256,
		},
		Reconciler: ReconcilerConfig{
			Enabled:  true,
			Interval: 15 * time.Minute,
		},
		API: APIConfig{
			DefaultPageSize: 50,
			MaxPageSize:     200,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources.
// Precedence: ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// envMappings translates flat environment variable names to koanf paths.
// Only mapped variables are consumed; everything else in the environment
// is ignored.
var envMappings = map[string]string{
	"SERVER_HOST":             "server.host",
	"SERVER_PORT":             "server.port",
	"SERVER_TIMEOUT":          "server.timeout",
	"SERVER_SHUTDOWN_TIMEOUT": "server.shutdown_timeout",
	"ENVIRONMENT":             "server.environment",

	"DATABASE_PATH":        "database.path",
	"DATABASE_IN_MEMORY":   "database.in_memory",
	"DATABASE_GC_INTERVAL": "database.gc_interval",

	"JWT_SECRET":          "security.jwt_secret",
	"TOKEN_TTL":           "security.token_ttl",
	"RATE_LIMIT_REQS":     "security.rate_limit_reqs",
	"RATE_LIMIT_WINDOW":   "security.rate_limit_window",
	"RATE_LIMIT_DISABLED": "security.rate_limit_disabled",
	"CORS_ORIGINS":        "security.cors_origins",

	"LOG_LEVEL":  "logging.level",
	"LOG_FORMAT": "logging.format",
	"LOG_CALLER": "logging.caller",

	"WS_WRITE_WAIT":       "websocket.write_wait",
	"WS_PONG_WAIT":        "websocket.pong_wait",
	"WS_MAX_MESSAGE_SIZE": "websocket.max_message_size",
	"WS_SEND_BUFFER":      "websocket.send_buffer",

	"RECONCILER_ENABLED":  "reconciler.enabled",
	"RECONCILER_INTERVAL": "reconciler.interval",

	"API_DEFAULT_PAGE_SIZE": "api.default_page_size",
	"API_MAX_PAGE_SIZE":     "api.max_page_size",
}

// envTransform maps an environment variable name to its koanf path.
// Returning empty string drops the variable.
func envTransform(s string) string {
	if path, ok := envMappings[s]; ok {
		return path
	}
	return ""
}

// findConfigFile searches for a config file in the default paths.
// Returns the first file found, or empty string if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated
// slices when they arrive as strings from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings, but the config expects
// slices; YAML values are already slices and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		str, ok := val.(string)
		if !ok {
			continue
		}

		parts := strings.Split(str, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// minJWTSecretLen is the minimum secret length accepted in production.
const minJWTSecretLen = 32

// Validate checks the configuration for invalid or insecure settings.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive")
	}

	if c.IsProduction() {
		if len(c.Security.JWTSecret) < minJWTSecretLen {
			return fmt.Errorf("security.jwt_secret must be at least %d characters in production", minJWTSecretLen)
		}
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required")
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("security.token_ttl must be positive")
	}

	if !c.Database.InMemory && c.Database.Path == "" {
		return fmt.Errorf("database.path is required unless database.in_memory is set")
	}

	if c.Reconciler.Enabled && c.Reconciler.Interval < time.Minute {
		return fmt.Errorf("reconciler.interval must be at least 1m, got %s", c.Reconciler.Interval)
	}

	if c.Websocket.SendBuffer < 1 {
		return fmt.Errorf("websocket.send_buffer must be positive")
	}
	if c.Websocket.PongWait <= 0 || c.Websocket.WriteWait <= 0 {
		return fmt.Errorf("websocket wait durations must be positive")
	}

	if c.API.DefaultPageSize < 1 || c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api page sizes invalid: default=%d max=%d", c.API.DefaultPageSize, c.API.MaxPageSize)
	}

	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}
