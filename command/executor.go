package command

import (
	"context"
	"os/exec"
)

// Executor creates exec.Cmd instances. Tests substitute their own
// implementation to control PATH or capture invocations.
type Executor interface {
	// Command creates a new exec.Cmd instance for the given command and arguments.
	Command(name string, args ...string) *exec.Cmd

	// CommandContext creates a new context-aware exec.Cmd instance.
	CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd
}

// RealExecutor is the production implementation of the Executor interface.
type RealExecutor struct{}

// Command creates a standard exec.Cmd.
func (e *RealExecutor) Command(name string, args ...string) *exec.Cmd {
	return exec.Command(name, args...)
}

// CommandContext creates a standard context-aware exec.Cmd.
func (e *RealExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

// ShellCommand returns a bash invocation of script placed in its own process
// group, so that a runner's "kill 0" never reaches the calling process.
func ShellCommand(ctx context.Context, e Executor, script string) *exec.Cmd {
	if e == nil {
		e = &RealExecutor{}
	}
	cmd := e.CommandContext(ctx, "bash", "-c", script)
	setProcessGroup(cmd)
	return cmd
}
