package session

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpcloud/tail"

	"github.com/grovetools/rex/pkg/process"
	"github.com/grovetools/rex/pkg/runner"
	"github.com/grovetools/rex/pkg/transport"
)

// FetchLog copies the remote project log into the local mirror and returns
// it, keeping only lines that contain keyword when one is given.
func (s *Session) FetchLog(ctx context.Context, keyword string) (string, error) {
	remote, err := transport.ReadFile(ctx, s.t, s.Workspace.RemoteLogfile, true)
	if err != nil {
		return "", err
	}
	if err := s.writeMirror(remote); err != nil {
		return "", err
	}
	return Filter(remote, keyword), nil
}

// FollowLog polls the remote log every interval and writes the text not yet
// seen locally to out, filtered by keyword. It returns once a fetched chunk
// carries the EOF sentinel, or when ctx is cancelled, which only stops the
// polling. A log that already ended with the sentinel before the first fetch
// returns immediately.
func (s *Session) FollowLog(ctx context.Context, interval time.Duration, keyword string, out io.Writer) error {
	seen := s.readMirror()
	for first := true; ; first = false {
		remote, err := transport.ReadFile(ctx, s.t, s.Workspace.RemoteLogfile, true)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		chunk := Diff(seen, remote)
		if chunk != "" {
			if err := s.writeMirror(remote); err != nil {
				return err
			}
			if filtered := Filter(chunk, keyword); strings.TrimSpace(filtered) != "" {
				if _, err := io.WriteString(out, filtered); err != nil {
					return err
				}
			}
		}
		seen = remote
		if HasSentinel(chunk) || (first && chunk == "" && endsWithSentinel(remote)) {
			return nil
		}

		select {
		case <-ctx.Done():
			s.logger().Debug("stopped following log")
			return nil
		case <-time.After(interval):
		}
	}
}

// LocalLivenessInterval is how often FollowLocal checks that a tracked runner
// is still alive.
const LocalLivenessInterval = time.Second

// FollowLocal streams the project log of a session on the local host as it
// grows, until the EOF sentinel or ctx cancellation. A killed job never writes
// the sentinel, so following also ends once no tracked runner has been alive
// for a full liveness interval.
func (s *Session) FollowLocal(ctx context.Context, keyword string, out io.Writer) error {
	if !s.Credential.IsLocal() {
		return fmt.Errorf("session on %s is not local", s.Credential)
	}
	t, err := tail.TailFile(s.Workspace.RemoteLogfile, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekStart},
		Logger:    stdlog.New(io.Discard, "", 0),
	})
	if err != nil {
		return err
	}
	defer t.Cleanup()
	defer t.Stop()

	ticker := time.NewTicker(LocalLivenessInterval)
	defer ticker.Stop()
	idle := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.localRunnersAlive(ctx) {
				idle = false
				continue
			}
			// One more interval lets the tail catch up with the last writes.
			if idle {
				s.logger().Debug("no tracked runner alive, stopped following log")
				return nil
			}
			idle = true
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				return line.Err
			}
			if strings.TrimSpace(line.Text) == runner.Sentinel {
				return nil
			}
			if keyword == "" || strings.Contains(line.Text, keyword) {
				if _, err := fmt.Fprintln(out, line.Text); err != nil {
					return err
				}
			}
		}
	}
}

// localRunnersAlive reports whether any tracked pid runs on this machine.
func (s *Session) localRunnersAlive(ctx context.Context) bool {
	if err := s.reload(ctx); err != nil {
		s.logger().WithError(err).Debug("could not reload registry")
	}
	for _, p := range s.Registry.List() {
		if process.Alive(p.PID) {
			return true
		}
	}
	return false
}

// Diff returns the part of remote not already in seen. When remote does not
// extend seen, because the log was truncated by a new launch, all of remote
// is new.
func Diff(seen, remote string) string {
	if strings.HasPrefix(remote, seen) {
		return remote[len(seen):]
	}
	return remote
}

// Filter keeps the lines of text containing keyword. An empty keyword keeps
// everything.
func Filter(text, keyword string) string {
	if keyword == "" || text == "" {
		return text
	}
	var b strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		if strings.Contains(line, keyword) {
			b.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

// HasSentinel reports whether any line of text is the EOF sentinel.
func HasSentinel(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == runner.Sentinel {
			return true
		}
	}
	return false
}

func endsWithSentinel(text string) bool {
	trimmed := strings.TrimSpace(text)
	return trimmed != "" && lastLine(trimmed) == runner.Sentinel
}

func (s *Session) readMirror() string {
	data, err := os.ReadFile(s.Workspace.LocalLogfile)
	if err != nil {
		return ""
	}
	return string(data)
}

func (s *Session) writeMirror(content string) error {
	if err := os.MkdirAll(filepath.Dir(s.Workspace.LocalLogfile), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.Workspace.LocalLogfile, []byte(content), 0o644)
}
