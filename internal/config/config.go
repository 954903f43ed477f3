// Package config loads the wpphub daemon configuration from TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents config.toml.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	Database DatabaseConfig `toml:"database"`
	Webhook  WebhookConfig  `toml:"webhook"`
	Auth     AuthConfig     `toml:"auth"`
	Provider ProviderConfig `toml:"provider"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type LogConfig struct {
	Level string `toml:"level"`
	Path  string `toml:"path"` // empty logs to stderr only
}

type DatabaseConfig struct {
	Driver string `toml:"driver"` // sqlite3 or postgres
	DSN    string `toml:"dsn"`
}

// WebhookConfig holds the deployment-wide webhook secrets.
type WebhookConfig struct {
	VerifyToken  string `toml:"verify_token"`
	AppSecret    string `toml:"app_secret"` // enables X-Hub-Signature-256 checks
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	TokenTTL  string `toml:"token_ttl"`
}

type ProviderConfig struct {
	BaseURL    string `toml:"base_url"`
	APIVersion string `toml:"api_version"`
	Timeout    string `toml:"timeout"`
}

// Default returns a config with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite3" {
		c.Database.DSN = "wpphub.db"
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		c.Webhook.MaxBodyBytes = 1 << 20
	}
	if c.Auth.TokenTTL == "" {
		c.Auth.TokenTTL = "720h"
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://graph.facebook.com"
	}
	if c.Provider.APIVersion == "" {
		c.Provider.APIVersion = "v21.0"
	}
	if c.Provider.Timeout == "" {
		c.Provider.Timeout = "15s"
	}
}

// Validate checks values that have no safe default.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if _, err := c.Auth.TTL(); err != nil {
		return err
	}
	if _, err := c.Provider.TimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// TTL parses the token lifetime.
func (a AuthConfig) TTL() (time.Duration, error) {
	d, err := time.ParseDuration(a.TokenTTL)
	if err != nil {
		return 0, fmt.Errorf("auth.token_ttl: %w", err)
	}
	return d, nil
}

// TimeoutDuration parses the provider call timeout.
func (p ProviderConfig) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 0, fmt.Errorf("provider.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("provider.timeout must be positive")
	}
	return d, nil
}

// Load reads config from the given path and fills in defaults. Returns an
// error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
