// Package config loads the JSON settings files for the overlay and relay
// daemons. Every field is pointer-optional: fields omitted from a file keep
// their built-in defaults, so partial configs are safe to ship.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// maxConfigBytes caps config reads at 1MB.
const maxConfigBytes = 1 * 1024 * 1024

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrBool(v bool) *bool       { return &v }

// readConfigFile validates and reads one config file. The file must have a
// .json extension and be under the size cap.
func readConfigFile(path string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigBytes)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// searchUpward lists candidate locations for a repo-relative path, from the
// working directory up through a few parents, so tests running from package
// directories still find the defaults files at the repository root.
func searchUpward(path string) []string {
	return []string{
		path,
		"../" + path,
		"../../" + path,
		"../../../" + path,
		"../../../../" + path,
	}
}
