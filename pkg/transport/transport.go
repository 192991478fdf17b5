// Package transport executes shell command lines on the machine that hosts
// a workspace, either the local machine or a remote host over SSH.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/rex/command"
	rexerrors "github.com/grovetools/rex/errors"
	"github.com/grovetools/rex/logging"
)

var log = logging.NewLogger("transport")

// Request is one command line to execute.
type Request struct {
	Command string
	// Stdin, when set, is streamed to the command's standard input.
	Stdin io.Reader
	// Output, when set, receives stdout as it is produced, in addition to Result.Stdout.
	Output io.Writer
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Err returns a COMMAND_FAILED error when the command exited non-zero.
func (r *Result) Err(cmd string) error {
	if r.ExitCode == 0 {
		return nil
	}
	return rexerrors.CommandFailed(cmd, exitStatus(r.ExitCode)).
		WithDetail("stderr", strings.TrimSpace(r.Stderr))
}

type exitStatus int

func (e exitStatus) Error() string   { return "exit status " + strconv.Itoa(int(e)) }
func (e exitStatus) ExitStatus() int { return int(e) }

// Transport runs command lines on a host. Exec returns an error only when the
// primitive itself fails; a command's non-zero exit is reported in Result.
type Transport interface {
	Exec(ctx context.Context, req Request) (*Result, error)
	// Interactive attaches the given streams to cmd, using a terminal when stdin is one.
	Interactive(ctx context.Context, cmd string, stdin io.Reader, stdout, stderr io.Writer) error
	// Target describes the host, e.g. "local" or "user@host".
	Target() string
	Close() error
}

// Run renders spec, executes it, and fails on a non-zero exit.
func Run(ctx context.Context, t Transport, spec command.Spec) (*Result, error) {
	line, err := spec.Render()
	if err != nil {
		return nil, err
	}
	return RunLine(ctx, t, Request{Command: line})
}

// RunLine executes req and fails on a non-zero exit.
func RunLine(ctx context.Context, t Transport, req Request) (*Result, error) {
	log.WithFields(logrus.Fields{"target": t.Target(), "command": req.Command}).Debug("exec")
	res, err := t.Exec(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := res.Err(req.Command); err != nil {
		return res, err
	}
	return res, nil
}

// Start runs an ExecAsync spec and returns the pid it prints.
func Start(ctx context.Context, t Transport, spec command.ExecAsync) (int, error) {
	res, err := Run(ctx, t, spec)
	if err != nil {
		return 0, err
	}
	pid, err := ParsePID(res.Stdout)
	if err != nil {
		return 0, err
	}
	log.WithFields(logrus.Fields{"target": t.Target(), "pid": pid}).Debug("started")
	return pid, nil
}

// ParsePID returns the pid printed on the first line of output that holds
// only a positive integer. Lines before it, such as a login banner, are
// skipped.
func ParsePID(output string) (int, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	first := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if pid, ok := pidLine(line); ok {
			return pid, nil
		}
		if first == "" {
			first = line
		}
	}
	if first != "" {
		return 0, rexerrors.New(rexerrors.ErrCodeTransport, fmt.Sprintf("expected a pid, got %q", first))
	}
	return 0, rexerrors.New(rexerrors.ErrCodeTransport, "no pid in command output")
}

// IsPIDLine reports whether line, without surrounding space, is a pid.
func IsPIDLine(line string) bool {
	_, ok := pidLine(strings.TrimSpace(line))
	return ok
}

func pidLine(line string) (int, bool) {
	pid, err := strconv.Atoi(line)
	return pid, err == nil && pid > 0 && !strings.HasPrefix(line, "+")
}

// Upload writes the contents of r to path on the host.
func Upload(ctx context.Context, t Transport, path string, r io.Reader) error {
	line, err := command.Copy{Path: path}.Render()
	if err != nil {
		return err
	}
	_, err = RunLine(ctx, t, Request{Command: line, Stdin: r})
	return err
}

// Download writes the contents of path on the host to w. A missing file
// yields no output when allowMissing is set.
func Download(ctx context.Context, t Transport, path string, w io.Writer, allowMissing bool) error {
	line, err := command.Fetch{Path: path, AllowMissing: allowMissing}.Render()
	if err != nil {
		return err
	}
	_, err = RunLine(ctx, t, Request{Command: line, Output: w})
	return err
}

// ReadFile returns the contents of path on the host.
func ReadFile(ctx context.Context, t Transport, path string, allowMissing bool) (string, error) {
	line, err := command.Fetch{Path: path, AllowMissing: allowMissing}.Render()
	if err != nil {
		return "", err
	}
	res, err := RunLine(ctx, t, Request{Command: line})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}
