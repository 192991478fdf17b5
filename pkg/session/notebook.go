package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"path"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/rex/command"
	rexerrors "github.com/grovetools/rex/errors"
	"github.com/grovetools/rex/pkg/registry"
	"github.com/grovetools/rex/pkg/transport"
)

// Ports tried for a notebook server when none is given: [min, max).
const (
	NotebookPortMin = 8824
	NotebookPortMax = 8850
)

// NotebookStopTimeout bounds stopping the server once forwarding ends.
const NotebookStopTimeout = 15 * time.Second

// NotebookOptions configure Notebook.
type NotebookOptions struct {
	// ServerPort is the port of the server on the host; 0 picks one at random
	// in [NotebookPortMin, NotebookPortMax).
	ServerPort int
	// ListenAddr is the local forwarding address; empty means 127.0.0.1 on an
	// ephemeral port.
	ListenAddr string
	// OnReady is called with the local URL and the tracked server once the
	// forward is listening.
	OnReady func(url string, proc registry.TrackedProcess)
}

// NotebookName is the registry name of the notebook server on port.
func NotebookName(port int) string {
	return "jupyter:" + strconv.Itoa(port)
}

// Notebook starts a notebook server in the remote project as a tracked
// asynchronous job and forwards a local port to it until ctx is cancelled.
// The server is then signalled like a killed job; its registry entry goes
// away with the next forced listing.
func (s *Session) Notebook(ctx context.Context, opts NotebookOptions) error {
	d, ok := s.t.(transport.Dialer)
	if !ok {
		return rexerrors.InvalidArgument(s.t.Target() + " does not support port forwarding")
	}
	port := opts.ServerPort
	if port == 0 {
		port = NotebookPortMin + rand.IntN(NotebookPortMax-NotebookPortMin)
	}
	server, err := command.Jupyter(port)
	if err != nil {
		return err
	}
	listen := opts.ListenAddr
	if listen == "" {
		listen = "127.0.0.1:0"
	}
	// Listen first so a busy local port fails before anything starts remotely.
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return rexerrors.Wrap(err, rexerrors.ErrCodeInvalidArgument, "cannot listen on "+listen)
	}

	name := NotebookName(port)
	logfile := path.Join(s.Workspace.RemoteDir, fmt.Sprintf("jupyter-%d.log", port))
	proc, err := s.launch(ctx, name, s.Workspace.RemoteDir, logfile, []string{server}, true, nil)
	if err != nil {
		ln.Close()
		return err
	}

	url := "http://" + ln.Addr().String() + "/tree"
	s.logger().WithFields(logrus.Fields{"name": name, "pid": proc.PID, "url": url}).Info("notebook ready")
	if opts.OnReady != nil {
		opts.OnReady(url, proc)
	}
	ferr := transport.Forward(ctx, d, ln, net.JoinHostPort("localhost", strconv.Itoa(port)))

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), NotebookStopTimeout)
	defer cancel()
	if err := s.signal(stopCtx, []registry.TrackedProcess{proc}); err != nil && ferr == nil {
		ferr = err
	}
	return ferr
}
