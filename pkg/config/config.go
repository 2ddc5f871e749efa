// Copyright 2024-2026 Aiku AI

// Package config loads the relay configuration from a YAML file and the
// environment. Environment variables override file values.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"

	"github.com/aiku/chanrelay/pkg/mattermost"
	"github.com/aiku/chanrelay/pkg/relay"
	"github.com/aiku/chanrelay/pkg/telegram"
)

//go:embed example-config.yaml
var ExampleConfig string

// DefaultSessionName is the session identifier used when none is configured.
const DefaultSessionName = "multi-fwd-session"

// ConfigError reports missing credentials or an invalid setting. It is fatal
// at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Config is the complete relay configuration.
type Config struct {
	Platform   string            `yaml:"platform" env:"PLATFORM"`
	Mattermost mattermost.Config `yaml:"mattermost"`
	Telegram   telegram.Config   `yaml:"telegram"`
	Session    SessionConfig     `yaml:"session"`
	Relay      RelayConfig       `yaml:"relay"`
	Logging    zeroconfig.Config `yaml:"logging"`

	// LogLevel overrides Logging.MinLevel from the environment.
	LogLevel string `yaml:"-" env:"LOG_LEVEL"`
}

// SessionConfig locates the session artifact.
type SessionConfig struct {
	Name string `yaml:"name" env:"SESSION_NAME"`
	Dir  string `yaml:"dir" env:"SESSION_DIR"`
}

// RelayConfig is the routing and pacing configuration.
type RelayConfig struct {
	Sources []string `yaml:"sources" env:"SOURCES" envSeparator:","`
	Targets []string `yaml:"targets" env:"TARGETS" envSeparator:","`
	// Delay is the pause after each copy, in seconds.
	Delay               float64 `yaml:"delay" env:"DELAY"`
	MaxRateLimitRetries int     `yaml:"max_rate_limit_retries" env:"MAX_RATE_LIMIT_RETRIES"`
}

// Default returns the configuration used when neither the file nor the
// environment set a value.
func Default() *Config {
	level := zerolog.InfoLevel
	return &Config{
		Platform: mattermost.PlatformName,
		Session: SessionConfig{
			Name: DefaultSessionName,
			Dir:  ".",
		},
		Relay: RelayConfig{
			Delay:               relay.DefaultDelay.Seconds(),
			MaxRateLimitRetries: relay.DefaultMaxRateLimitRetries,
		},
		Logging: zeroconfig.Config{
			MinLevel: &level,
			Writers: []zeroconfig.WriterConfig{{
				Type:   zeroconfig.WriterTypeStdout,
				Format: zeroconfig.LogFormatPrettyColored,
			}},
		},
	}
}

// Load reads the config file at path, if there is one, then applies the
// environment. A missing file is not an error. environ is usually
// env.ToMap(os.Environ()).
func Load(path string, environ map[string]string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	data, _, err := up.Do(path, false, &up.StructUpgrader{
		SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
		Base:           ExampleConfig,
	})
	if err != nil {
		return fmt.Errorf("failed to upgrade config: %w", err)
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// PostProcess normalizes values and applies the log level override.
func (c *Config) PostProcess() error {
	c.Platform = strings.ToLower(strings.TrimSpace(c.Platform))
	if c.Platform == "" {
		c.Platform = mattermost.PlatformName
	}
	if c.Session.Name == "" {
		c.Session.Name = DefaultSessionName
	}
	if c.Session.Dir == "" {
		c.Session.Dir = "."
	}
	c.Mattermost.PostProcess()
	c.Telegram.PostProcess()

	if c.LogLevel != "" {
		level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
		if err != nil {
			return &ConfigError{Field: "LOG_LEVEL", Reason: err.Error()}
		}
		c.Logging.MinLevel = &level
	}
	return nil
}

// Validate checks that the selected platform has its credentials and that
// the relay settings make sense.
func (c *Config) Validate() error {
	switch c.Platform {
	case mattermost.PlatformName:
		if c.Mattermost.ServerURL == "" {
			return &ConfigError{Field: "SERVER_URL", Reason: "required for the mattermost platform"}
		}
	case telegram.PlatformName:
		if c.Telegram.BotToken == "" {
			return &ConfigError{Field: "BOT_TOKEN", Reason: "required for the telegram platform"}
		}
	default:
		return &ConfigError{Field: "PLATFORM", Reason: fmt.Sprintf("unknown platform %q", c.Platform)}
	}
	if c.Relay.Delay < 0 {
		return &ConfigError{Field: "DELAY", Reason: "must not be negative"}
	}
	if c.Relay.MaxRateLimitRetries < 1 {
		return &ConfigError{Field: "MAX_RATE_LIMIT_RETRIES", Reason: "must be at least 1"}
	}
	return nil
}

// RelayOptions converts the relay section for relay.New.
func (c *Config) RelayOptions() relay.Config {
	return relay.Config{
		Sources:             relay.ParseChannelRefs(c.Relay.Sources),
		Targets:             relay.ParseChannelRefs(c.Relay.Targets),
		Delay:               time.Duration(c.Relay.Delay * float64(time.Second)),
		MaxRateLimitRetries: c.Relay.MaxRateLimitRetries,
	}
}

// Logger builds the root logger from the logging section.
func (c *Config) Logger() (*zerolog.Logger, error) {
	log, err := c.Logging.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}
