// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written in Go
// duration syntax ("5m", "90s").
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back in Go syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the master configuration for the matchbot daemon.
type Config struct {
	// HostCooldown is the minimum gap between two session creations
	// by the same host.
	HostCooldown Duration `yaml:"host_cooldown"`

	// PairCooldown is the minimum gap between two join requests from
	// the same requester to the same host.
	PairCooldown Duration `yaml:"pair_cooldown"`

	// ChannelTTL is how long an ephemeral channel stays open before
	// it expires automatically.
	ChannelTTL Duration `yaml:"channel_ttl"`

	// CloseGrace is the delay between a channel expiring and its
	// underlying resource being torn down, so final notifications
	// can land.
	CloseGrace Duration `yaml:"close_grace"`

	// MaxSeats is the channel occupancy cap, host included.
	MaxSeats int `yaml:"max_seats"`

	// SweepInterval is how often cold cooldown records are pruned.
	// Hygiene only; correctness never depends on the sweep.
	SweepInterval Duration `yaml:"sweep_interval"`

	// Storage configures the durable store.
	Storage StorageConfig `yaml:"storage"`

	// SocketPath is the Unix socket the daemon serves its action API on.
	SocketPath string `yaml:"socket_path"`

	// LinkHosts restricts shared private-match links to these URL
	// hosts. Empty accepts any https link.
	LinkHosts []string `yaml:"link_hosts"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	// Path is the database file.
	Path string `yaml:"path"`

	// PoolSize is the connection pool size. Zero takes the pool's
	// default.
	PoolSize int `yaml:"pool_size"`
}

// Default returns the configuration used when keys are absent.
func Default() *Config {
	return &Config{
		HostCooldown:  Duration(5 * time.Minute),
		PairCooldown:  Duration(5 * time.Minute),
		ChannelTTL:    Duration(3 * time.Minute),
		CloseGrace:    Duration(15 * time.Second),
		MaxSeats:      4,
		SweepInterval: Duration(10 * time.Minute),
		Storage: StorageConfig{
			Path: "/var/lib/matchbot/matchbot.db",
		},
		SocketPath: "/run/matchbot/matchbot.sock",
	}
}

// Load reads the file named by MATCHBOT_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv("MATCHBOT_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("MATCHBOT_CONFIG environment variable not set; " +
			"point it at your matchbot.yaml, or pass --config")
	}
	return LoadFile(path)
}

// LoadFile reads the given YAML file over the defaults and validates
// the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values that would break lifecycle invariants.
func (c *Config) Validate() error {
	if c.HostCooldown <= 0 {
		return fmt.Errorf("host_cooldown must be positive, got %s", c.HostCooldown.Std())
	}
	if c.PairCooldown <= 0 {
		return fmt.Errorf("pair_cooldown must be positive, got %s", c.PairCooldown.Std())
	}
	if c.ChannelTTL <= 0 {
		return fmt.Errorf("channel_ttl must be positive, got %s", c.ChannelTTL.Std())
	}
	if c.CloseGrace <= 0 {
		return fmt.Errorf("close_grace must be positive, got %s", c.CloseGrace.Std())
	}
	// A channel always holds its host, so a cap below 2 could never
	// admit a guest.
	if c.MaxSeats < 2 {
		return fmt.Errorf("max_seats must be at least 2 (host plus one guest), got %d", c.MaxSeats)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %s", c.SweepInterval.Std())
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.SocketPath == "" {
		return fmt.Errorf("socket_path is required")
	}
	return nil
}
