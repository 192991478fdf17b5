package session

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/rex/command"
	rexerrors "github.com/grovetools/rex/errors"
	"github.com/grovetools/rex/pkg/registry"
	"github.com/grovetools/rex/pkg/runner"
	"github.com/grovetools/rex/pkg/transport"
)

// RunnerMarker prefixes every runner script name. Process listings are
// filtered on it, joined to the project directory.
const RunnerMarker = "rex-runner"

// DefaultJobName names jobs launched without an explicit name.
const DefaultJobName = "runner"

// RunnerPath is the remote path of the runner script for token.
func (s *Session) RunnerPath(token string) string {
	return s.runnerPrefix() + token + ".sh"
}

// runnerPrefix starts the path of every runner script of this project, so
// listings filtered on it skip the runners of other projects on the host.
func (s *Session) runnerPrefix() string {
	return path.Join(s.Workspace.RemoteDir, RunnerMarker) + "-"
}

// Launch runs commands in the remote project directory as one runner script
// and records the runner's pid under name.
//
// A synchronous launch streams the combined output to out and returns when
// the script exits. An asynchronous launch truncates the project log, starts
// the script detached and returns at once; the log ends with the EOF sentinel
// when the last command exits. A failing payload command is not an error.
func (s *Session) Launch(ctx context.Context, name string, commands []string, async bool, out io.Writer) (registry.TrackedProcess, error) {
	return s.launch(ctx, name, s.Workspace.RemoteDir, s.Workspace.RemoteLogfile, commands, async, out)
}

func (s *Session) launch(ctx context.Context, name, dir, logfile string, commands []string, async bool, out io.Writer) (registry.TrackedProcess, error) {
	if name == "" {
		name = DefaultJobName
	}
	token := registry.NewToken()
	script, err := runner.Build(dir, commands, logfile, async)
	if err != nil {
		return registry.TrackedProcess{}, err
	}
	runnerPath := s.RunnerPath(token)
	logger := s.logger().WithFields(logrus.Fields{"name": name, "token": token, "async": async})

	if err := transport.Upload(ctx, s.t, runnerPath, strings.NewReader(script)); err != nil {
		return registry.TrackedProcess{}, rexerrors.LaunchFailed(name, err)
	}
	run, err := command.RunScript(runnerPath)
	if err != nil {
		return registry.TrackedProcess{}, rexerrors.LaunchFailed(name, err)
	}

	var pid int
	if async {
		pid, err = transport.Start(ctx, s.t, command.ExecAsync{
			Dir:      dir,
			Command:  run,
			Logfile:  logfile,
			Truncate: true,
		})
	} else {
		pid, err = s.runSync(ctx, dir, run, out)
	}
	if err != nil {
		return registry.TrackedProcess{}, rexerrors.LaunchFailed(name, err)
	}

	proc := registry.TrackedProcess{Name: name, PID: pid, Token: token}
	if err := s.mutate(ctx, func(reg *registry.Registry) { reg.Append(proc) }); err != nil {
		return proc, err
	}
	logger.WithField("pid", pid).Info("launched")
	return proc, nil
}

// runSync executes the runner in the foreground. The shell prints its pid
// before replacing itself with the runner, so the pid is the runner's. The
// job has run by the time a missing pid is noticed; it is reported as a
// launch failure rather than recorded under a made-up pid.
func (s *Session) runSync(ctx context.Context, dir, run string, out io.Writer) (int, error) {
	line, err := command.Exec{Dir: dir, Command: run + " 2>&1", EchoPID: true}.Render()
	if err != nil {
		return 0, err
	}
	req := transport.Request{Command: line}
	var filter *pidLineFilter
	if out != nil {
		filter = &pidLineFilter{w: out}
		req.Output = filter
	}
	res, err := s.t.Exec(ctx, req)
	if filter != nil {
		if ferr := filter.Flush(); err == nil && ferr != nil {
			err = ferr
		}
	}
	if err != nil {
		return 0, err
	}
	pid, err := transport.ParsePID(res.Stdout)
	if err != nil {
		if res.ExitCode != 0 {
			return 0, res.Err(line)
		}
		return 0, err
	}
	if res.ExitCode != 0 {
		s.logger().WithFields(logrus.Fields{"pid": pid, "exit_code": res.ExitCode}).Warn("job exited non-zero")
	}
	return pid, nil
}

// pidLineFilter forwards output except the first line that holds only a pid.
// Lines before it, such as a login banner, pass through.
type pidLineFilter struct {
	w    io.Writer
	buf  []byte
	done bool
}

func (f *pidLineFilter) Write(p []byte) (int, error) {
	n := len(p)
	if f.done {
		if _, err := f.w.Write(p); err != nil {
			return 0, err
		}
		return n, nil
	}
	f.buf = append(f.buf, p...)
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			return n, nil
		}
		line := f.buf[:i+1]
		f.buf = f.buf[i+1:]
		if transport.IsPIDLine(string(line)) {
			f.done = true
			rest := f.buf
			f.buf = nil
			if len(rest) > 0 {
				if _, err := f.w.Write(rest); err != nil {
					return 0, err
				}
			}
			return n, nil
		}
		if _, err := f.w.Write(line); err != nil {
			return 0, err
		}
	}
}

// Flush forwards a trailing partial line held back while looking for the pid.
func (f *pidLineFilter) Flush() error {
	if len(f.buf) == 0 {
		return nil
	}
	_, err := f.w.Write(f.buf)
	f.buf = nil
	return err
}
