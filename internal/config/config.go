// Package config provides configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// defaultDataDir returns the default directory for client data.
// Uses ~/.avatar-client/ so data is in a fixed location regardless of CWD.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".avatar-client")
}

// Config holds all configuration for the avatar client.
type Config struct {
	// Backend. Empty URLs are resolved from Location.
	WSURL            string `mapstructure:"ws_url"`
	BaseURL          string `mapstructure:"base_url"`
	Location         string `mapstructure:"location"`
	RemoteBackendURL string `mapstructure:"remote_backend_url"`

	// Paths
	StorePath string `mapstructure:"store_path"`

	// Connection
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// Health & Reconnection
	KeepaliveInterval   time.Duration `mapstructure:"keepalive_interval"`
	ReconnectMaxRetries int           `mapstructure:"reconnect_max_retries"`
	ReconnectBaseDelay  time.Duration `mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay   time.Duration `mapstructure:"reconnect_max_delay"`

	// Logging
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days"`

	DebugMode bool `mapstructure:"debug_mode"`

	// MCP
	MCPEnabled bool `mapstructure:"mcp_enabled"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		StorePath:           filepath.Join(dataDir, "client.db"),
		ConnectTimeout:      30 * time.Second,
		KeepaliveInterval:   30 * time.Second,
		ReconnectMaxRetries: 10,
		ReconnectBaseDelay:  1 * time.Second,
		ReconnectMaxDelay:   5 * time.Minute,
		LogLevel:            "info",
		LogFormat:           "json",
		LogMaxSizeMB:        10,
		LogMaxBackups:       3,
		LogMaxAgeDays:       7,
		MCPEnabled:          true,
	}
}

// LoadConfig loads configuration from file, environment, and defaults.
// Priority: CLI flags > Environment > Config file > Defaults
func LoadConfig(configPath string) (*Config, error) {
	return LoadConfigWithFlags(configPath, nil)
}

// LoadConfigWithFlags is LoadConfig with command line flags bound on top.
// Flag names use dashes where config keys use underscores.
func LoadConfigWithFlags(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("ws_url", defaults.WSURL)
	v.SetDefault("base_url", defaults.BaseURL)
	v.SetDefault("location", defaults.Location)
	v.SetDefault("remote_backend_url", defaults.RemoteBackendURL)
	v.SetDefault("store_path", defaults.StorePath)
	v.SetDefault("connect_timeout", defaults.ConnectTimeout)
	v.SetDefault("keepalive_interval", defaults.KeepaliveInterval)
	v.SetDefault("reconnect_max_retries", defaults.ReconnectMaxRetries)
	v.SetDefault("reconnect_base_delay", defaults.ReconnectBaseDelay)
	v.SetDefault("reconnect_max_delay", defaults.ReconnectMaxDelay)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)
	v.SetDefault("log_file", defaults.LogFile)
	v.SetDefault("log_max_size_mb", defaults.LogMaxSizeMB)
	v.SetDefault("log_max_backups", defaults.LogMaxBackups)
	v.SetDefault("log_max_age_days", defaults.LogMaxAgeDays)
	v.SetDefault("debug_mode", defaults.DebugMode)
	v.SetDefault("mcp_enabled", defaults.MCPEnabled)

	// Environment variables with AVATAR_ prefix
	v.SetEnvPrefix("AVATAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// A missing file falls back to defaults; anything else is fatal.
			isNotFound := errors.Is(err, os.ErrNotExist)
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !isNotFound {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.LogFormat)
	}

	if c.LogMaxSizeMB < 0 || c.LogMaxBackups < 0 || c.LogMaxAgeDays < 0 {
		return fmt.Errorf("log rotation settings must be non-negative")
	}

	if c.WSURL != "" {
		u, err := url.Parse(c.WSURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("invalid ws url: %q (must be ws:// or wss://)", c.WSURL)
		}
	}

	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid base url: %q (must be http:// or https://)", c.BaseURL)
		}
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}

	// Zero disables keepalive pings.
	if c.KeepaliveInterval < 0 {
		return fmt.Errorf("keepalive interval must be non-negative")
	}

	if c.ReconnectMaxRetries < 0 {
		return fmt.Errorf("reconnect max retries must be non-negative")
	}

	if c.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("reconnect base delay must be positive")
	}

	if c.ReconnectMaxDelay <= 0 {
		return fmt.Errorf("reconnect max delay must be positive")
	}

	if c.ReconnectBaseDelay > c.ReconnectMaxDelay {
		return fmt.Errorf("reconnect base delay must be less than or equal to max delay")
	}

	return nil
}
