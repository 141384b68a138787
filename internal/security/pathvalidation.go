// Package security validates filesystem paths before the debug surfaces
// write through them. The point log's backup download builds its output
// path from the store's configured location; these checks make sure a
// hostile or misconfigured path can never land a write outside the
// directories we own.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory reports whether filePath stays inside
// safeDir once relative components and symlinks are resolved. A symlinked
// parent that points outside safeDir is rejected even when the final file
// does not exist yet.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("cannot resolve path %q: %w", filePath, err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("cannot resolve directory %q: %w", safeDir, err)
	}

	canonicalPath := canonicalize(absPath)
	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("cannot resolve directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path %q is outside %q: %w", filePath, safeDir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path %q escapes %q", filePath, safeDir)
	}
	return nil
}

// canonicalize resolves symlinks in absPath. When the path itself does not
// exist yet we walk up to the nearest existing ancestor and resolve that
// instead, so a symlinked parent directory cannot smuggle a new file out.
func canonicalize(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}
	check := absPath
	for {
		parent := filepath.Dir(check)
		if parent == check {
			return absPath
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, err := filepath.Rel(parent, absPath)
			if err != nil {
				return absPath
			}
			return filepath.Join(resolved, rel)
		}
		check = parent
	}
}

// ValidatePathWithinAllowedDirs accepts filePath if it stays inside any of
// the allowed directories.
func ValidatePathWithinAllowedDirs(filePath string, allowedDirs []string) error {
	if len(allowedDirs) == 0 {
		return fmt.Errorf("no allowed directories specified")
	}
	for _, dir := range allowedDirs {
		if err := ValidatePathWithinDirectory(filePath, dir); err == nil {
			return nil
		}
	}
	return fmt.Errorf("path %q must be within one of: %v", filePath, allowedDirs)
}

// ValidateBackupPath checks a point log backup destination. Backups may
// only be written next to the live database or into the temp directory.
func ValidateBackupPath(filePath, dataDir string) error {
	return ValidatePathWithinAllowedDirs(filePath, []string{dataDir, os.TempDir()})
}
