package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".avatar-client", "client.db"), cfg.StorePath)
	assert.Empty(t, cfg.WSURL)
	assert.Empty(t, cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.KeepaliveInterval)
	assert.Equal(t, 10, cfg.ReconnectMaxRetries)
	assert.Equal(t, 1*time.Second, cfg.ReconnectBaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.ReconnectMaxDelay)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10, cfg.LogMaxSizeMB)
	assert.False(t, cfg.DebugMode)
	assert.True(t, cfg.MCPEnabled)
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
ws_url: ws://backend.local:10000/client-ws
base_url: http://backend.local:10000
location: https://avatar.vercel.app
remote_backend_url: https://remote.example.com
store_path: /custom/client.db
connect_timeout: 60s
keepalive_interval: 45s
reconnect_max_retries: 5
reconnect_base_delay: 2s
reconnect_max_delay: 10m
log_level: debug
log_format: text
log_file: /var/log/avatar.log
log_max_backups: 9
debug_mode: true
mcp_enabled: false
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "ws://backend.local:10000/client-ws", cfg.WSURL)
	assert.Equal(t, "http://backend.local:10000", cfg.BaseURL)
	assert.Equal(t, "https://avatar.vercel.app", cfg.Location)
	assert.Equal(t, "https://remote.example.com", cfg.RemoteBackendURL)
	assert.Equal(t, "/custom/client.db", cfg.StorePath)
	assert.Equal(t, 60*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 45*time.Second, cfg.KeepaliveInterval)
	assert.Equal(t, 5, cfg.ReconnectMaxRetries)
	assert.Equal(t, 2*time.Second, cfg.ReconnectBaseDelay)
	assert.Equal(t, 10*time.Minute, cfg.ReconnectMaxDelay)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "/var/log/avatar.log", cfg.LogFile)
	assert.Equal(t, 9, cfg.LogMaxBackups)
	assert.True(t, cfg.DebugMode)
	assert.False(t, cfg.MCPEnabled)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
log_level: info
reconnect_max_retries: 3
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	t.Setenv("AVATAR_LOG_LEVEL", "debug")
	t.Setenv("AVATAR_RECONNECT_MAX_RETRIES", "7")

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 7, cfg.ReconnectMaxRetries)
}

func TestLoadConfigWithFlags(t *testing.T) {
	t.Setenv("AVATAR_LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.String("log-file", "", "")
	require.NoError(t, flags.Parse([]string{"--log-level=error"}))

	cfg, err := LoadConfigWithFlags("", flags)
	require.NoError(t, err)

	// Changed flags beat the environment; unchanged ones leave defaults alone.
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Empty(t, cfg.LogFile)
}

func TestLoadConfig_NoFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".avatar-client", "client.db"), cfg.StorePath)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.LogLevel = "invalid"
			},
			wantErr: true,
		},
		{
			name: "invalid log format",
			modify: func(c *Config) {
				c.LogFormat = "xml"
			},
			wantErr: true,
		},
		{
			name: "http ws url",
			modify: func(c *Config) {
				c.WSURL = "http://127.0.0.1:10000/client-ws"
			},
			wantErr: true,
		},
		{
			name: "valid wss url",
			modify: func(c *Config) {
				c.WSURL = "wss://backend.example.com/client-ws"
			},
			wantErr: false,
		},
		{
			name: "ws base url",
			modify: func(c *Config) {
				c.BaseURL = "ws://backend.example.com"
			},
			wantErr: true,
		},
		{
			name: "zero keepalive disables pings",
			modify: func(c *Config) {
				c.KeepaliveInterval = 0
			},
			wantErr: false,
		},
		{
			name: "zero connect timeout",
			modify: func(c *Config) {
				c.ConnectTimeout = 0
			},
			wantErr: true,
		},
		{
			name: "negative reconnect retries",
			modify: func(c *Config) {
				c.ReconnectMaxRetries = -1
			},
			wantErr: true,
		},
		{
			name: "base delay above max delay",
			modify: func(c *Config) {
				c.ReconnectBaseDelay = time.Hour
			},
			wantErr: true,
		},
		{
			name: "negative log backups",
			modify: func(c *Config) {
				c.LogMaxBackups = -1
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
