// Package transporttest provides a scripted Transport for tests.
package transporttest

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/grovetools/rex/pkg/transport"
)

// Handler answers one command line. Returning a nil Result with a nil error
// yields an empty successful Result.
type Handler func(cmd string, stdin []byte) (*transport.Result, error)

// Call records one Exec invocation.
type Call struct {
	Command string
	Stdin   []byte
}

// Fake is a Transport whose answers are scripted per command substring.
type Fake struct {
	mu       sync.Mutex
	calls    []Call
	handlers []route
	// Fallback answers commands no route matches.
	Fallback Handler
	// Dial answers DialRemote; nil refuses every dial.
	Dial  func(network, addr string) (net.Conn, error)
	dials []string
}

type route struct {
	substr  string
	handler Handler
}

// New returns a Fake that succeeds with empty output by default.
func New() *Fake {
	return &Fake{}
}

// On registers h for commands containing substr. Later registrations win.
func (f *Fake) On(substr string, h Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append([]route{{substr: substr, handler: h}}, f.handlers...)
	return f
}

// Reply registers a fixed stdout for commands containing substr.
func (f *Fake) Reply(substr, stdout string) *Fake {
	return f.On(substr, func(string, []byte) (*transport.Result, error) {
		return &transport.Result{Stdout: stdout}, nil
	})
}

// Calls returns the recorded invocations.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Commands returns the recorded command lines.
func (f *Fake) Commands() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c.Command)
	}
	return out
}

// CommandsContaining returns the recorded command lines containing substr.
func (f *Fake) CommandsContaining(substr string) []string {
	var out []string
	for _, c := range f.Commands() {
		if strings.Contains(c, substr) {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) Target() string { return "fake" }

func (f *Fake) Close() error { return nil }

func (f *Fake) Exec(ctx context.Context, req transport.Request) (*transport.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var stdin []byte
	if req.Stdin != nil {
		data, err := io.ReadAll(req.Stdin)
		if err != nil {
			return nil, err
		}
		stdin = data
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Command: req.Command, Stdin: stdin})
	h := f.Fallback
	for _, r := range f.handlers {
		if strings.Contains(req.Command, r.substr) {
			h = r.handler
			break
		}
	}
	f.mu.Unlock()

	if h == nil {
		return &transport.Result{}, nil
	}
	res, err := h(req.Command, stdin)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &transport.Result{}
	}
	if req.Output != nil && res.Stdout != "" {
		_, _ = io.WriteString(req.Output, res.Stdout)
	}
	return res, nil
}

func (f *Fake) Interactive(ctx context.Context, cmd string, stdin io.Reader, stdout, stderr io.Writer) error {
	_, err := f.Exec(ctx, transport.Request{Command: cmd})
	return err
}

// DialRemote records addr and hands it to Dial.
func (f *Fake) DialRemote(ctx context.Context, network, addr string) (net.Conn, error) {
	f.mu.Lock()
	f.dials = append(f.dials, addr)
	dial := f.Dial
	f.mu.Unlock()
	if dial == nil {
		return nil, errors.New("fake: dial refused")
	}
	return dial(network, addr)
}

// Dials returns the addresses passed to DialRemote.
func (f *Fake) Dials() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dials...)
}
