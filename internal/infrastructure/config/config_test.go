package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "9222", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "127.0.0.1:9222", cfg.Addr())

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.Equal(t, 200, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 400, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	assert.Equal(t, "automation-context-", cfg.Browser.ContextPrefix)
	assert.Equal(t, 30*time.Second, cfg.Browser.NavigationTimeout)
	assert.NotEmpty(t, cfg.Browser.ProfileDir)

	assert.Equal(t, int64(32<<20), cfg.Protocol.MaxMessageBytes)
	assert.Equal(t, 1024, cfg.Protocol.OutboundBuffer)
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":               "9333",
		"HOST":               "0.0.0.0",
		"LOG_LEVEL":          "debug",
		"LOG_DEV":            "true",
		"RATE_LIMIT_RPS":     "5",
		"RATE_LIMIT_BURST":   "10",
		"RATE_LIMIT_ENABLED": "false",
		"PROFILE_DIR":        "/var/lib/automation",
		"CONTEXT_PREFIX":     "ctx-",
		"NAVIGATION_TIMEOUT": "2s",
		"WRITE_TIMEOUT":      "1s",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9333", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "/var/lib/automation", cfg.Browser.ProfileDir)
	assert.Equal(t, "ctx-", cfg.Browser.ContextPrefix)
	assert.Equal(t, 2*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, time.Second, cfg.Protocol.WriteTimeout)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad int", "RATE_LIMIT_RPS", "lots"},
		{"bad bool", "LOG_DEV", "maybe"},
		{"bad duration", "NAVIGATION_TIMEOUT", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
			assert.NotNil(t, LoadOrDefault())
		})
	}
}

func TestLoadFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9500"
logging:
  level: warn
browser:
  contextPrefix: file-ctx-
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "9500", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "keys absent from the file keep their value")
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "file-ctx-", cfg.Browser.ContextPrefix)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, path, zap.NewNop(), func(cfg *Config) {
		select {
		case changes <- cfg:
		default:
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))

	// A single write can surface as several events, some seeing a
	// truncated file.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Logging.Level == "debug" {
				return
			}
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}
}
