package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"time"
)

// DefaultOverlayConfigPath is the path to the canonical overlay defaults
// file. This is the single source of truth for the daemon's default
// settings.
const DefaultOverlayConfigPath = "config/overlay.defaults.json"

// OverlayConfig is the root configuration of the overlay daemon: where the
// viewer API listens, which relay it follows, and how the stream layer is
// tuned.
type OverlayConfig struct {
	ListenAddr *string `json:"listen_addr,omitempty"`
	RelayURL   *string `json:"relay_url,omitempty"` // ws:// or wss:// stream endpoint

	// MonitorAddr is where the debug UI listens. Omitted means the default
	// address; an explicit empty string disables the monitor entirely.
	MonitorAddr *string `json:"monitor_addr,omitempty"`

	// Channels lists the view keys to watch at startup. More can be added
	// at runtime through the API.
	Channels []string `json:"channels,omitempty"`

	StalenessWindow *string `json:"staleness_window,omitempty"` // duration string like "60s"
	MetricsInterval *string `json:"metrics_interval,omitempty"` // duration string like "15s"
	MapsPath        *string `json:"maps_path,omitempty"`
	LogRequests     *bool   `json:"log_requests,omitempty"`
}

// LoadOverlayConfig loads an OverlayConfig from a JSON file. Fields omitted
// from the file retain their defaults, so partial configs are safe.
func LoadOverlayConfig(path string) (*OverlayConfig, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &OverlayConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultOverlayConfig loads the canonical overlay defaults from
// DefaultOverlayConfigPath, searching upward from the working directory.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultOverlayConfig() *OverlayConfig {
	for _, path := range searchUpward(DefaultOverlayConfigPath) {
		if cfg, err := LoadOverlayConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultOverlayConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *OverlayConfig) Validate() error {
	if c.RelayURL != nil && *c.RelayURL != "" {
		u, err := url.Parse(*c.RelayURL)
		if err != nil {
			return fmt.Errorf("invalid relay_url %q: %w", *c.RelayURL, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("relay_url must use a ws or wss scheme, got %q", u.Scheme)
		}
	}

	if c.StalenessWindow != nil && *c.StalenessWindow != "" {
		if _, err := time.ParseDuration(*c.StalenessWindow); err != nil {
			return fmt.Errorf("invalid staleness_window '%s': %w", *c.StalenessWindow, err)
		}
	}

	if c.MetricsInterval != nil && *c.MetricsInterval != "" {
		if _, err := time.ParseDuration(*c.MetricsInterval); err != nil {
			return fmt.Errorf("invalid metrics_interval '%s': %w", *c.MetricsInterval, err)
		}
	}

	if c.MapsPath != nil && *c.MapsPath != "" {
		if ext := filepath.Ext(*c.MapsPath); ext != ".json" {
			return fmt.Errorf("maps_path must point at a .json file, got %q", *c.MapsPath)
		}
	}

	return nil
}

// GetListenAddr returns the listen_addr value or the default.
func (c *OverlayConfig) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return ":8090" // default
	}
	return *c.ListenAddr
}

// GetRelayURL returns the relay_url value or the default.
func (c *OverlayConfig) GetRelayURL() string {
	if c.RelayURL == nil || *c.RelayURL == "" {
		return "ws://127.0.0.1:8091/stream" // default
	}
	return *c.RelayURL
}

// GetMonitorAddr returns the monitor_addr value, the default when the field
// is omitted, or the empty string when the monitor is explicitly disabled.
func (c *OverlayConfig) GetMonitorAddr() string {
	if c.MonitorAddr == nil {
		return ":8092" // default
	}
	return *c.MonitorAddr
}

// GetChannels returns a copy of the startup channel list.
func (c *OverlayConfig) GetChannels() []string {
	return append([]string(nil), c.Channels...)
}

// GetStalenessWindow parses and returns the StalenessWindow as a
// time.Duration.
func (c *OverlayConfig) GetStalenessWindow() time.Duration {
	if c.StalenessWindow == nil || *c.StalenessWindow == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StalenessWindow)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}

// GetMetricsInterval parses and returns the MetricsInterval as a
// time.Duration.
func (c *OverlayConfig) GetMetricsInterval() time.Duration {
	if c.MetricsInterval == nil || *c.MetricsInterval == "" {
		return 15 * time.Second // default
	}
	d, err := time.ParseDuration(*c.MetricsInterval)
	if err != nil {
		return 15 * time.Second // default on parse error
	}
	return d
}

// GetMapsPath returns the maps_path value or the default.
func (c *OverlayConfig) GetMapsPath() string {
	if c.MapsPath == nil || *c.MapsPath == "" {
		return "config/maps.json" // default
	}
	return *c.MapsPath
}

// GetLogRequests returns the log_requests value or the default.
func (c *OverlayConfig) GetLogRequests() bool {
	if c.LogRequests == nil {
		return true // default: log viewer API requests
	}
	return *c.LogRequests
}
