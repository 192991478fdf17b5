package errors

import (
	"fmt"
	"os/exec"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *RexError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *RexError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// InstanceNotFound reports an instance index outside the configured list.
func InstanceNotFound(index, available int) *RexError {
	return New(ErrCodeInstanceNotFound,
		fmt.Sprintf("instance %d not found (%d configured)", index, available)).
		WithDetail("index", index).
		WithDetail("available", available)
}

// InstanceInactive reports a host that did not answer the liveness check.
func InstanceInactive(target string, err error) *RexError {
	return Wrap(err, ErrCodeInstanceInactive, fmt.Sprintf("instance %s is not reachable", target)).
		WithDetail("instance", target)
}

// InstanceDuplicate reports an instance that is already configured.
func InstanceDuplicate(target string) *RexError {
	return New(ErrCodeInstanceDuplicate, fmt.Sprintf("instance %s already exists", target)).
		WithDetail("instance", target)
}

// TransportFailed wraps a failure of the underlying exec or copy primitive.
func TransportFailed(op string, err error) *RexError {
	return Wrap(err, ErrCodeTransport, fmt.Sprintf("transport %s failed", op)).
		WithDetail("op", op)
}

// LaunchFailed reports a runner that could not be staged or started.
func LaunchFailed(name string, err error) *RexError {
	return Wrap(err, ErrCodeLaunchFailed, fmt.Sprintf("could not launch %q", name)).
		WithDetail("name", name)
}

// NoSession reports a missing or unreadable persisted session.
func NoSession(path string, err error) *RexError {
	msg := fmt.Sprintf("no session found at %s", path)
	if err != nil {
		return Wrap(err, ErrCodeNoSession, msg).WithDetail("path", path)
	}
	return New(ErrCodeNoSession, msg).WithDetail("path", path)
}

// ReconciliationMismatch reports a process listing line that could not be parsed.
func ReconciliationMismatch(line string) *RexError {
	return New(ErrCodeReconciliationMismatch, fmt.Sprintf("unparsable process listing line: %q", line)).
		WithDetail("line", line)
}

// InvalidArgument reports malformed input to a builder or operation.
func InvalidArgument(reason string) *RexError {
	return New(ErrCodeInvalidArgument, reason)
}

// CommandFailed creates a command execution failure error
func CommandFailed(cmd string, err error) *RexError {
	rexErr := Wrap(err, ErrCodeCommandFailed, fmt.Sprintf("command failed: %s", cmd)).
		WithDetail("command", cmd)

	// Extract exit code if available
	if exitErr, ok := err.(*exec.ExitError); ok {
		rexErr = rexErr.WithDetail("exitCode", exitErr.ExitCode())
	}
	if coded, ok := err.(interface{ ExitStatus() int }); ok {
		rexErr = rexErr.WithDetail("exitCode", coded.ExitStatus())
	}

	return rexErr
}
