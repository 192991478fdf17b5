package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	signalNamePattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*$`)
	markerPattern     = regexp.MustCompile(`^[^;|&$\x60\n\r\x00]+$`)
	packagePattern    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-\[\],=<>!~]*$`)
)

// Validator checks a single templated argument.
type Validator func(string) error

// SafeBuilder validates named argument types before they reach a shell template.
type SafeBuilder struct {
	validators map[string]Validator
}

// NewSafeBuilder creates a SafeBuilder with the default validator set.
func NewSafeBuilder() *SafeBuilder {
	return &SafeBuilder{validators: makeDefaultValidators()}
}

// makeDefaultValidators returns the default set of validators
func makeDefaultValidators() map[string]Validator {
	return map[string]Validator{
		"path":    validatePath,
		"signal":  validateSignal,
		"pid":     validatePID,
		"url":     validateURL,
		"package": validatePackage,
		"marker":  validateMarker,
	}
}

// Validate validates specific arguments
func (sb *SafeBuilder) Validate(argType string, value string) error {
	validator, exists := sb.validators[argType]
	if !exists {
		return fmt.Errorf("no validator for argument type: %s", argType)
	}

	return validator(value)
}

var defaultBuilder = NewSafeBuilder()

func validate(argType, value string) error {
	return defaultBuilder.Validate(argType, value)
}

// validatePath ensures remote paths are safe to embed in a quoted argument
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}

	// Prevent directory traversal
	if strings.Contains(path, "..") {
		return fmt.Errorf("file path cannot contain '..'")
	}

	// Prevent command injection via shell metacharacters
	if strings.ContainsAny(path, ";|&$`\n\r\x00") {
		return fmt.Errorf("file path contains invalid characters: %q", path)
	}

	return nil
}

func validateSignal(sig string) error {
	if sig == "" {
		return fmt.Errorf("signal cannot be empty")
	}
	if n, err := strconv.Atoi(sig); err == nil {
		if n < 0 || n > 64 {
			return fmt.Errorf("signal number out of range: %d", n)
		}
		return nil
	}
	if !signalNamePattern.MatchString(strings.TrimPrefix(sig, "SIG")) {
		return fmt.Errorf("invalid signal name: %s", sig)
	}
	return nil
}

func validatePID(pid string) error {
	n, err := strconv.Atoi(pid)
	if err != nil {
		return fmt.Errorf("invalid pid: %s", pid)
	}
	if n <= 0 {
		return fmt.Errorf("pid must be positive: %d", n)
	}
	return nil
}

func validateURL(url string) error {
	if url == "" {
		return fmt.Errorf("url cannot be empty")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "ftp://") {
		return fmt.Errorf("unsupported url scheme: %s", url)
	}
	if strings.ContainsAny(url, " \t\n'\"`") {
		return fmt.Errorf("url contains invalid characters: %s", url)
	}
	return nil
}

func validatePackage(pkg string) error {
	if !packagePattern.MatchString(pkg) {
		return fmt.Errorf("invalid package requirement: %q", pkg)
	}
	return nil
}

func validateMarker(marker string) error {
	if !markerPattern.MatchString(marker) {
		return fmt.Errorf("invalid process marker: %q", marker)
	}
	return nil
}

// Quote wraps s in single quotes for POSIX shells.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
