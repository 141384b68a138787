// Package worldmap owns the fixed display-map tables: which maps exist, how
// raw area identifiers resolve onto them, and which samples are valid at all.
// Everything here is pure lookup over a small closed enumeration; bad input
// falls back to defaults and never panics.
package worldmap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MapID identifies one of the fixed display maps.
type MapID string

const (
	// MapOverworld is the main continent map (world layer 60).
	MapOverworld MapID = "overworld"
	// MapShadowlands is the expansion continent map (world layer 61).
	MapShadowlands MapID = "shadowlands"
	// MapUnderworld is the shared underground map. It has no world layer of
	// its own; points land here via their area prefix.
	MapUnderworld MapID = "underworld"

	// DefaultMap is where unclassifiable points are displayed.
	DefaultMap = MapOverworld
)

// ErrUnknownMap reports a map id absent from the registry.
var ErrUnknownMap = fmt.Errorf("unknown map id")

// CalibrationPoint is a known game-coordinate to pixel-coordinate
// correspondence used to fit a map's transform.
type CalibrationPoint struct {
	GameX  float64 `json:"gameX"`
	GameZ  float64 `json:"gameZ"`
	PixelX float64 `json:"pixelX"`
	PixelY float64 `json:"pixelY"`
}

// MapConfig describes one display map image and its calibration table.
// Loaded once at startup and immutable afterwards.
type MapConfig struct {
	ID          MapID              `json:"id"`
	Name        string             `json:"name"`
	WidthPx     int                `json:"widthPx"`
	HeightPx    int                `json:"heightPx"`
	TileDepth   int                `json:"tileDepth"`
	Calibration []CalibrationPoint `json:"calibration"`
}

// Registry is the immutable set of configured display maps.
type Registry struct {
	byID  map[MapID]MapConfig
	order []MapID
}

// NewRegistry builds a registry from configs, validating each entry.
func NewRegistry(configs []MapConfig) (*Registry, error) {
	r := &Registry{byID: make(map[MapID]MapConfig, len(configs))}
	for i, mc := range configs {
		if mc.ID == "" {
			return nil, fmt.Errorf("map %d: empty id", i)
		}
		if _, dup := r.byID[mc.ID]; dup {
			return nil, fmt.Errorf("map %q: duplicate id", mc.ID)
		}
		if mc.WidthPx <= 0 || mc.HeightPx <= 0 {
			return nil, fmt.Errorf("map %q: pixel dimensions must be positive, got %dx%d", mc.ID, mc.WidthPx, mc.HeightPx)
		}
		if mc.TileDepth < 0 {
			return nil, fmt.Errorf("map %q: tile depth must be non-negative, got %d", mc.ID, mc.TileDepth)
		}
		r.byID[mc.ID] = mc
		r.order = append(r.order, mc.ID)
	}
	return r, nil
}

// Get returns the config for id.
func (r *Registry) Get(id MapID) (MapConfig, bool) {
	mc, ok := r.byID[id]
	return mc, ok
}

// All returns the configs in their configured order.
func (r *Registry) All() []MapConfig {
	out := make([]MapConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of configured maps.
func (r *Registry) Len() int { return len(r.order) }

// registryFile is the on-disk shape of the maps config.
type registryFile struct {
	Maps []MapConfig `json:"maps"`
}

// DefaultRegistryPath is the canonical maps config checked into the repo.
const DefaultRegistryPath = "config/maps.json"

// LoadRegistry reads a maps config JSON file. Underdetermined calibration
// tables (<2 points) are allowed here; the projection fit degrades and logs
// rather than failing startup.
func LoadRegistry(path string) (*Registry, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("maps config must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat maps config: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("maps config too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read maps config: %w", err)
	}

	var rf registryFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse maps config: %w", err)
	}
	if len(rf.Maps) == 0 {
		return nil, fmt.Errorf("maps config %q defines no maps", cleanPath)
	}

	reg, err := NewRegistry(rf.Maps)
	if err != nil {
		return nil, fmt.Errorf("invalid maps config: %w", err)
	}
	return reg, nil
}

// MustLoadDefaultRegistry loads the canonical maps config, searching upward
// from the working directory. Panics if not found; intended for test setup.
func MustLoadDefaultRegistry() *Registry {
	candidates := []string{
		DefaultRegistryPath,
		"../../" + DefaultRegistryPath,    // from internal/<pkg>/
		"../../../" + DefaultRegistryPath, // from deeper packages
		"../../../../" + DefaultRegistryPath,
	}
	for _, path := range candidates {
		if reg, err := LoadRegistry(path); err == nil {
			return reg
		}
	}
	panic("cannot find " + DefaultRegistryPath + " - run tests from repository root")
}
