// Package config provides configuration management for the chat server.
package config

import (
	"errors"
	"fmt"
	"time"
)

// FileConfig is the top-level wrapper for the configuration file. Keeping
// the settings under a [chatd] table lets the file be shared with other
// tools without key collisions.
type FileConfig struct {
	Chatd Config `toml:"chatd"`
}

// Config holds the chat server configuration.
type Config struct {
	Listen    string         `toml:"listen"`
	LogLevel  string         `toml:"log_level"`
	LogFile   string         `toml:"log_file"`
	Whitelist []string       `toml:"whitelist"`
	Limits    LimitsConfig   `toml:"limits"`
	Timeouts  TimeoutsConfig `toml:"timeouts"`
	Rate      RateConfig     `toml:"rate"`
	Stores    StoresConfig   `toml:"stores"`
	Metrics   MetricsConfig  `toml:"metrics"`
}

// LimitsConfig defines resource limits for the server.
type LimitsConfig struct {
	MaxSessions int `toml:"max_sessions"`
}

// TimeoutsConfig defines timeout durations as strings in time.ParseDuration
// syntax.
type TimeoutsConfig struct {
	Read   string `toml:"read"`
	Accept string `toml:"accept"`
	Auth   string `toml:"auth"`
	Write  string `toml:"write"`
}

// RateConfig defines the sliding-window limit on chat messages.
type RateConfig struct {
	Interval    string `toml:"interval"`
	MaxMessages int    `toml:"max_messages"`
}

// StoresConfig holds the JSON store file paths.
type StoresConfig struct {
	Users    string `toml:"users"`
	Messages string `toml:"messages"`
	Bans     string `toml:"bans"`
}

// MetricsConfig holds configuration for Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		Listen:    ":65432",
		LogLevel:  "info",
		Whitelist: []string{"127.0.0.1", "::1"},
		Limits: LimitsConfig{
			MaxSessions: 10,
		},
		Timeouts: TimeoutsConfig{
			Read:   "1s",
			Accept: "1s",
			Auth:   "1m",
			Write:  "10s",
		},
		Rate: RateConfig{
			Interval:    "10s",
			MaxMessages: 5,
		},
		Stores: StoresConfig{
			Users:    "data/users.json",
			Messages: "data/messages.json",
			Bans:     "data/bans.json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9102",
			Path:    "/metrics",
		},
	}
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}

	if len(c.Whitelist) == 0 {
		return errors.New("whitelist must contain at least one address")
	}
	for i, ip := range c.Whitelist {
		if ip == "" {
			return fmt.Errorf("whitelist entry %d is empty", i)
		}
	}

	if c.Limits.MaxSessions <= 0 {
		return errors.New("max_sessions must be positive")
	}

	if c.Rate.MaxMessages <= 0 {
		return errors.New("rate max_messages must be positive")
	}
	if c.Rate.Interval != "" {
		if _, err := time.ParseDuration(c.Rate.Interval); err != nil {
			return fmt.Errorf("invalid rate interval: %w", err)
		}
	}

	if c.Timeouts.Read != "" {
		if _, err := time.ParseDuration(c.Timeouts.Read); err != nil {
			return fmt.Errorf("invalid read timeout: %w", err)
		}
	}

	if c.Timeouts.Accept != "" {
		if _, err := time.ParseDuration(c.Timeouts.Accept); err != nil {
			return fmt.Errorf("invalid accept timeout: %w", err)
		}
	}

	if c.Timeouts.Auth != "" {
		if _, err := time.ParseDuration(c.Timeouts.Auth); err != nil {
			return fmt.Errorf("invalid auth timeout: %w", err)
		}
	}

	if c.Timeouts.Write != "" {
		if _, err := time.ParseDuration(c.Timeouts.Write); err != nil {
			return fmt.Errorf("invalid write timeout: %w", err)
		}
	}

	if c.Stores.Users == "" || c.Stores.Messages == "" || c.Stores.Bans == "" {
		return errors.New("store paths for users, messages, and bans are required")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}

	return nil
}

// ReadTimeout returns the per-read socket deadline. Returns 1 second if not
// configured or invalid.
func (c *TimeoutsConfig) ReadTimeout() time.Duration {
	return parseDurationOr(c.Read, time.Second)
}

// AcceptTimeout returns the accept-loop deadline used to poll for shutdown.
// Returns 1 second if not configured or invalid.
func (c *TimeoutsConfig) AcceptTimeout() time.Duration {
	return parseDurationOr(c.Accept, time.Second)
}

// AuthTimeout returns how long a connection may sit unauthenticated before
// it is dropped. Returns 1 minute if not configured or invalid.
func (c *TimeoutsConfig) AuthTimeout() time.Duration {
	return parseDurationOr(c.Auth, time.Minute)
}

// WriteTimeout returns the per-write socket deadline. Returns 10 seconds if
// not configured or invalid.
func (c *TimeoutsConfig) WriteTimeout() time.Duration {
	return parseDurationOr(c.Write, 10*time.Second)
}

// WindowInterval returns the rate-limit window width. Returns 10 seconds if
// not configured or invalid.
func (c *RateConfig) WindowInterval() time.Duration {
	return parseDurationOr(c.Interval, 10*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
