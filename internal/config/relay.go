package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultRelayConfigPath is the path to the canonical relay defaults file.
const DefaultRelayConfigPath = "config/relay.defaults.json"

// RelayChannel is one channel entry in the relay's key table. The push key
// authorizes writing points; the view key authorizes reading them. The
// daemon hands these to the relay's key resolver, which enforces uniqueness.
type RelayChannel struct {
	Name    string `json:"name"`
	PushKey string `json:"push_key"`
	ViewKey string `json:"view_key"`
}

// RelayConfig is the root configuration of the relay daemon: where it
// listens, where the point log lives, how long idle channels are retained,
// and the channel key table.
type RelayConfig struct {
	ListenAddr *string `json:"listen_addr,omitempty"`

	// PointLogPath locates the sqlite point log. Omitting the field
	// selects the default path; setting it to the empty string selects
	// the in-memory store, which forgets everything on restart.
	PointLogPath *string `json:"point_log_path,omitempty"`

	RetentionMaxIdle  *string `json:"retention_max_idle,omitempty"` // duration string like "24h"
	RetentionInterval *string `json:"retention_interval,omitempty"` // duration string like "1h"

	Channels []RelayChannel `json:"channels,omitempty"`
}

// LoadRelayConfig loads a RelayConfig from a JSON file. Fields omitted from
// the file retain their defaults, so partial configs are safe.
func LoadRelayConfig(path string) (*RelayConfig, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &RelayConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultRelayConfig loads the canonical relay defaults from
// DefaultRelayConfigPath, searching upward from the working directory.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultRelayConfig() *RelayConfig {
	for _, path := range searchUpward(DefaultRelayConfigPath) {
		if cfg, err := LoadRelayConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultRelayConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *RelayConfig) Validate() error {
	if c.RetentionMaxIdle != nil && *c.RetentionMaxIdle != "" {
		if _, err := time.ParseDuration(*c.RetentionMaxIdle); err != nil {
			return fmt.Errorf("invalid retention_max_idle '%s': %w", *c.RetentionMaxIdle, err)
		}
	}

	if c.RetentionInterval != nil && *c.RetentionInterval != "" {
		if _, err := time.ParseDuration(*c.RetentionInterval); err != nil {
			return fmt.Errorf("invalid retention_interval '%s': %w", *c.RetentionInterval, err)
		}
	}

	for i, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channel %d: name must be set", i)
		}
		if ch.PushKey == "" || ch.ViewKey == "" {
			return fmt.Errorf("channel %q: push_key and view_key must be set", ch.Name)
		}
	}

	return nil
}

// GetListenAddr returns the listen_addr value or the default.
func (c *RelayConfig) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return ":8091" // default
	}
	return *c.ListenAddr
}

// GetPointLogPath returns the point_log_path value or the default. An empty
// return means the in-memory store was requested explicitly.
func (c *RelayConfig) GetPointLogPath() string {
	if c.PointLogPath == nil {
		return "db/pointlog.db" // default
	}
	return *c.PointLogPath
}

// GetRetentionMaxIdle parses and returns the RetentionMaxIdle as a
// time.Duration.
func (c *RelayConfig) GetRetentionMaxIdle() time.Duration {
	if c.RetentionMaxIdle == nil || *c.RetentionMaxIdle == "" {
		return 24 * time.Hour // default
	}
	d, err := time.ParseDuration(*c.RetentionMaxIdle)
	if err != nil {
		return 24 * time.Hour // default on parse error
	}
	return d
}

// GetRetentionInterval parses and returns the RetentionInterval as a
// time.Duration.
func (c *RelayConfig) GetRetentionInterval() time.Duration {
	if c.RetentionInterval == nil || *c.RetentionInterval == "" {
		return time.Hour // default
	}
	d, err := time.ParseDuration(*c.RetentionInterval)
	if err != nil {
		return time.Hour // default on parse error
	}
	return d
}

// GetChannels returns a copy of the channel key table.
func (c *RelayConfig) GetChannels() []RelayChannel {
	return append([]RelayChannel(nil), c.Channels...)
}
