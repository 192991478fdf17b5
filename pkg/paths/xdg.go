// Package paths provides XDG-compliant path resolution for rex.
//
// Resolution order:
// 1. REX_HOME (portable root) → $REX_HOME/config
// 2. XDG_CONFIG_HOME → $XDG_CONFIG_HOME/rex
// 3. Platform default → ~/.config/rex
package paths

import (
	"os"
	"path/filepath"
)

const appName = "rex"

// ConfigDir returns the rex configuration directory, home of rex.yml.
func ConfigDir() string {
	if rexHome := os.Getenv("REX_HOME"); rexHome != "" {
		return filepath.Join(rexHome, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, appName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config", appName)
	}
	return ""
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() (string, error) {
	dir := ConfigDir()
	if dir == "" {
		return "", os.ErrNotExist
	}
	return dir, os.MkdirAll(dir, 0o755)
}
