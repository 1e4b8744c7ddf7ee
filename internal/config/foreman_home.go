package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// buildTimeRepoRoot is injected by cmd.NewRootCommand via SetBuildTimeRepoRoot
// before any config load happens, so that LoadConfigFromDir resolves
// .foreman/config.yaml relative to the repo root regardless of the
// caller's working directory.
var buildTimeRepoRoot string

// SetBuildTimeRepoRoot records the repository root the binary was built or
// invoked against.
func SetBuildTimeRepoRoot(root string) {
	buildTimeRepoRoot = root
}

// GetForemanHome returns the foreman home directory.
//
// Priority order:
//  1. FOREMAN_HOME environment variable, if set (returned as is)
//  2. .foreman under the repository root (found by walking up for a
//     .foreman-root marker or a go.mod declaring this module)
//  3. .foreman under the current working directory, as a last resort
//
// In cases 2 and 3 the directory is created if it doesn't exist.
func GetForemanHome() (string, error) {
	if home := os.Getenv("FOREMAN_HOME"); home != "" {
		return home, nil
	}

	if root, err := findRepoRoot(); err == nil && root != "" {
		home := filepath.Join(root, ".foreman")
		if err := os.MkdirAll(home, 0755); err != nil {
			return "", fmt.Errorf("create foreman home directory: %w", err)
		}
		return home, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	home := filepath.Join(cwd, ".foreman")
	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create foreman home directory: %w", err)
	}
	return home, nil
}

// findRepoRoot walks up from the current working directory looking for a
// .foreman-root marker file or a go.mod declaring this module.
func findRepoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	current := cwd
	for {
		if _, err := os.Stat(filepath.Join(current, ".foreman-root")); err == nil {
			return current, nil
		}

		if data, err := os.ReadFile(filepath.Join(current, "go.mod")); err == nil {
			if strings.Contains(string(data), "github.com/harrison/foreman") {
				return current, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("repository root not found (looking for .foreman-root or go.mod declaring github.com/harrison/foreman)")
}
