package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// Expand expands a leading ~ to the home directory and environment variables.
func Expand(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return os.ExpandEnv(path)
}

// Abs expands path and returns it absolute.
func Abs(path string) (string, error) {
	return filepath.Abs(Expand(path))
}
