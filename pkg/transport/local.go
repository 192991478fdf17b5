package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"os/exec"

	"github.com/grovetools/rex/command"
	rexerrors "github.com/grovetools/rex/errors"
)

// Local runs command lines with bash on this machine.
type Local struct {
	// Executor creates the processes; nil means command.RealExecutor.
	Executor command.Executor
	// Home, when set, replaces $HOME for every command, which relocates the
	// workspace root computed from the login directory.
	Home string
}

// NewLocal returns a Local transport using the real executor.
func NewLocal() *Local {
	return &Local{Executor: &command.RealExecutor{}}
}

func (l *Local) Target() string { return "local" }

func (l *Local) Close() error { return nil }

// DialRemote dials addr on this machine.
func (l *Local) DialRemote(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, rexerrors.TransportFailed("forward", err).WithDetail("addr", addr)
	}
	return conn, nil
}

func (l *Local) Exec(ctx context.Context, req Request) (*Result, error) {
	cmd := command.ShellCommand(ctx, l.Executor, req.Command)
	l.applyEnv(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if req.Output != nil {
		cmd.Stdout = io.MultiWriter(&stdout, req.Output)
	}
	cmd.Stderr = &stderr
	if req.Stdin != nil {
		cmd.Stdin = req.Stdin
	}

	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, rexerrors.TransportFailed("exec", err).WithDetail("command", req.Command)
	}
	return res, nil
}

func (l *Local) Interactive(ctx context.Context, line string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := command.ShellCommand(ctx, l.Executor, line)
	l.applyEnv(cmd)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = stdin, stdout, stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return nil
		}
		return rexerrors.TransportFailed("interactive", err)
	}
	return nil
}

func (l *Local) applyEnv(cmd *exec.Cmd) {
	if l.Home != "" {
		cmd.Env = append(os.Environ(), "HOME="+l.Home)
	}
}
