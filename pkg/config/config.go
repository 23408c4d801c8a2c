// Package config loads and validates the engine configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration for the synchronization engine.
// Every field has a working default; an empty file is a valid
// configuration.
type Config struct {
	// Interface restricts multicast sockets to one network
	// interface; empty lets the kernel choose.
	Interface string `yaml:"interface"`

	// StaticHost/StaticPort pin the simulator endpoint and skip
	// beacon discovery. Useful when the peer runs off-subnet.
	StaticHost string `yaml:"static_host"`
	StaticPort int    `yaml:"static_port"`

	Beacon    BeaconConfig    `yaml:"beacon"`
	Value     ValueConfig     `yaml:"value"`
	Text      TextConfig      `yaml:"text"`
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// SnapshotPath enables value persistence across restarts when
	// non-empty.
	SnapshotPath string `yaml:"snapshot_path"`

	// Roundings quantizes inbound values before change detection,
	// keyed by path or "base[*]" array wildcard.
	Roundings map[string]int `yaml:"roundings"`

	// Frequencies overrides requested updates/second per path.
	Frequencies map[string]float64 `yaml:"frequencies"`
}

// BeaconConfig tunes simulator discovery.
type BeaconConfig struct {
	Group          string  `yaml:"group"`
	Port           int     `yaml:"port"`
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
	MinVersion     int     `yaml:"min_version"`
}

// ValueConfig tunes the binary value channel.
type ValueConfig struct {
	ReadTimeoutSeconds float64 `yaml:"read_timeout_seconds"`
	MaxTimeouts        int     `yaml:"max_timeouts"`
	MaxSubscriptions   int     `yaml:"max_subscriptions"`
}

// TextConfig tunes the string-value side channel.
type TextConfig struct {
	Group           string  `yaml:"group"`
	Port            int     `yaml:"port"`
	IntervalSeconds float64 `yaml:"interval_seconds"`
	SlackSeconds    float64 `yaml:"slack_seconds"`
	MaxTimeouts     int     `yaml:"max_timeouts"`
}

// ReconnectConfig tunes the retry backoff between discovery attempts.
type ReconnectConfig struct {
	InitialSeconds float64 `yaml:"initial_seconds"`
	MaxSeconds     float64 `yaml:"max_seconds"`
	Multiplier     float64 `yaml:"multiplier"`
	Jitter         float64 `yaml:"jitter"`
}

// Default returns the configuration matching the simulator's stock
// network setup.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, normalizes and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config read: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Beacon.Group == "" {
		c.Beacon.Group = "239.255.1.1"
	}
	if c.Beacon.Port == 0 {
		c.Beacon.Port = 49707
	}
	if c.Beacon.TimeoutSeconds == 0 {
		c.Beacon.TimeoutSeconds = 3
	}
	if c.Beacon.MinVersion == 0 {
		c.Beacon.MinVersion = 121100
	}

	if c.Value.ReadTimeoutSeconds == 0 {
		c.Value.ReadTimeoutSeconds = 5
	}
	if c.Value.MaxTimeouts == 0 {
		c.Value.MaxTimeouts = 5
	}
	if c.Value.MaxSubscriptions == 0 {
		c.Value.MaxSubscriptions = 80
	}

	if c.Text.Group == "" {
		c.Text.Group = "239.255.1.1"
	}
	if c.Text.Port == 0 {
		c.Text.Port = 49505
	}
	if c.Text.IntervalSeconds == 0 {
		c.Text.IntervalSeconds = 5
	}
	if c.Text.SlackSeconds == 0 {
		c.Text.SlackSeconds = 1
	}
	if c.Text.MaxTimeouts == 0 {
		c.Text.MaxTimeouts = 5
	}

	if c.Reconnect.InitialSeconds == 0 {
		c.Reconnect.InitialSeconds = 1
	}
	if c.Reconnect.MaxSeconds == 0 {
		c.Reconnect.MaxSeconds = 10
	}
	if c.Reconnect.Multiplier == 0 {
		c.Reconnect.Multiplier = 2
	}
	if c.Reconnect.Jitter == 0 {
		c.Reconnect.Jitter = 0.25
	}
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.StaticPort < 0 || c.StaticPort > 65535 {
		return fmt.Errorf("static_port %d out of range", c.StaticPort)
	}
	if c.StaticHost != "" && c.StaticPort == 0 {
		return fmt.Errorf("static_host requires static_port")
	}
	if c.Beacon.Port < 1 || c.Beacon.Port > 65535 {
		return fmt.Errorf("beacon.port %d out of range", c.Beacon.Port)
	}
	if c.Text.Port < 1 || c.Text.Port > 65535 {
		return fmt.Errorf("text.port %d out of range", c.Text.Port)
	}
	if c.Value.MaxSubscriptions < 1 {
		return fmt.Errorf("value.max_subscriptions must be positive")
	}
	if c.Value.MaxTimeouts < 1 {
		return fmt.Errorf("value.max_timeouts must be positive")
	}
	if c.Reconnect.Multiplier < 1 {
		return fmt.Errorf("reconnect.multiplier must be >= 1")
	}
	for path, digits := range c.Roundings {
		if digits < 0 {
			return fmt.Errorf("roundings[%s] must be >= 0", path)
		}
	}
	for path, freq := range c.Frequencies {
		if freq < 0 {
			return fmt.Errorf("frequencies[%s] must be >= 0", path)
		}
	}
	return nil
}

// BeaconTimeout returns the discovery timeout as a duration.
func (c *Config) BeaconTimeout() time.Duration {
	return secs(c.Beacon.TimeoutSeconds)
}

// ValueReadTimeout returns the value channel per-read timeout.
func (c *Config) ValueReadTimeout() time.Duration {
	return secs(c.Value.ReadTimeoutSeconds)
}

// TextInterval returns the text channel's initial expected interval.
func (c *Config) TextInterval() time.Duration {
	return secs(c.Text.IntervalSeconds)
}

// TextSlack returns the grace added on top of the advertised text
// interval.
func (c *Config) TextSlack() time.Duration {
	return secs(c.Text.SlackSeconds)
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
