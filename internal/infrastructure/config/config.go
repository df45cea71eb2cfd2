package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LogConfig       `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Browser   BrowserConfig   `yaml:"browser"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
}

// ServerConfig holds listener configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"9222" yaml:"port"`
	Host string `envconfig:"HOST" default:"127.0.0.1" yaml:"host"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development"`
}

// RateLimitConfig holds rate limiting configuration for HTTP routes and
// inbound protocol messages.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"200" yaml:"requestsPerSecond"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"400" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`
}

// BrowserConfig holds engine configuration.
type BrowserConfig struct {
	ProfileDir        string        `envconfig:"PROFILE_DIR" yaml:"profileDir"`
	ContextPrefix     string        `envconfig:"CONTEXT_PREFIX" default:"automation-context-" yaml:"contextPrefix"`
	UserAgent         string        `envconfig:"USER_AGENT" default:"Mozilla/5.0 (X11; Linux x86_64) AgentOSHeadless/1.0" yaml:"userAgent"`
	NavigationTimeout time.Duration `envconfig:"NAVIGATION_TIMEOUT" default:"30s" yaml:"navigationTimeout"`
	ScriptTimeout     time.Duration `envconfig:"SCRIPT_TIMEOUT" default:"5s" yaml:"scriptTimeout"`
}

// ProtocolConfig holds control connection limits.
type ProtocolConfig struct {
	MaxMessageBytes int64         `envconfig:"MAX_MESSAGE_BYTES" default:"33554432" yaml:"maxMessageBytes"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s" yaml:"writeTimeout"`
	OutboundBuffer  int           `envconfig:"OUTBOUND_BUFFER" default:"1024" yaml:"outboundBuffer"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.applyDerived()
	return &cfg, nil
}

// LoadFile loads the environment and overlays a YAML file on top of it.
// Keys present in the file win.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyDerived()
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port: "9222",
			Host: "127.0.0.1",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 200,
			Burst:             400,
			Enabled:           true,
		},
		Browser: BrowserConfig{
			ContextPrefix:     "automation-context-",
			UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AgentOSHeadless/1.0",
			NavigationTimeout: 30 * time.Second,
			ScriptTimeout:     5 * time.Second,
		},
		Protocol: ProtocolConfig{
			MaxMessageBytes: 32 << 20,
			WriteTimeout:    10 * time.Second,
			OutboundBuffer:  1024,
		},
	}
	cfg.applyDerived()
	return cfg
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func (c *Config) applyDerived() {
	if c.Browser.ProfileDir == "" {
		c.Browser.ProfileDir = filepath.Join(os.TempDir(), "automation-profile")
	}
}

// Watch reloads path whenever it changes and hands the result to onChange.
// It stops when ctx is done.
func Watch(ctx context.Context, path string, logger *zap.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return err
	}
	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				cfg, err := LoadFile(abs)
				if err != nil {
					logger.Warn("Config reload failed", zap.String("path", abs), zap.Error(err))
					continue
				}
				logger.Info("Config reloaded", zap.String("path", abs))
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
