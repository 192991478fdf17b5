// Package session ties a local project to its remote workspace: it launches
// runner scripts, tracks their pids across invocations, and moves files and
// logs between the two sides.
package session

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/rex/command"
	"github.com/grovetools/rex/config"
	rexerrors "github.com/grovetools/rex/errors"
	"github.com/grovetools/rex/logging"
	"github.com/grovetools/rex/pkg/instance"
	"github.com/grovetools/rex/pkg/registry"
	"github.com/grovetools/rex/pkg/transport"
	"github.com/grovetools/rex/state"
)

var log = logging.NewLogger("session")

// Keys of the persisted snapshot.
const (
	keyCredential = "credential"
	keyWorkspace  = "workspace"
	keyRegistry   = "registry"
)

// Options tune a session. The zero value is usable.
type Options struct {
	// Name overrides the project name derived from the local root.
	Name string
	// RemoteHome is the projects directory relative to the remote login directory.
	RemoteHome string
	// KillSignal is sent by Kill; empty means TERM.
	KillSignal string
	// Tolerant treats an unparsable process listing as no live processes.
	Tolerant bool
	// LockTimeout bounds waiting for the state file lock.
	LockTimeout time.Duration
	// Dial opens the transport for a credential; nil means instance.Dial.
	Dial func(instance.Credential) transport.Transport
}

// OptionsFromConfig derives session options from the global configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		RemoteHome: cfg.RemoteHome,
		KillSignal: cfg.KillSignal,
		Tolerant:   cfg.TolerantReconcile,
	}
}

func (o Options) dial(c instance.Credential) transport.Transport {
	if o.Dial != nil {
		return o.Dial(c)
	}
	return instance.Dial(c)
}

// Session is one project bound to one host.
type Session struct {
	Credential instance.Credential
	Workspace  Workspace
	// Registry is the tracked process list as of the last load or mutation.
	Registry registry.Registry

	t     transport.Transport
	store *state.Store
	opts  Options
}

func newStore(root string, opts Options) *state.Store {
	store := state.NewStore(root)
	if opts.LockTimeout > 0 {
		store = store.WithLockTimeout(opts.LockTimeout)
	}
	return store
}

// Create establishes a fresh session: it resolves the remote login
// directory, creates the remote project tree and persists the session. A
// registry already persisted for the same login and remote directory is kept,
// so running jobs stay addressable.
func Create(ctx context.Context, cred instance.Credential, root string, opts Options) (*Session, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if opts.RemoteHome == "" {
		opts.RemoteHome = config.DefaultRemoteHome
	}
	t := opts.dial(cred)

	res, err := transport.RunLine(ctx, t, transport.Request{Command: command.RemoteHome()})
	if err != nil {
		t.Close()
		return nil, err
	}
	home := lastLine(res.Stdout)
	if home == "" {
		t.Close()
		return nil, rexerrors.New(rexerrors.ErrCodeTransport, "remote host did not report a login directory").
			WithDetail("instance", cred.String())
	}

	ws, err := NewWorkspace(root, opts.Name, home, opts.RemoteHome)
	if err != nil {
		t.Close()
		return nil, err
	}
	if _, err := transport.Run(ctx, t, command.MakeDir{Paths: []string{ws.RemoteDir, ws.RemoteDataDir}}); err != nil {
		t.Close()
		return nil, err
	}

	s := &Session{Credential: cred, Workspace: ws, t: t, store: newStore(root, opts), opts: opts}
	err = s.store.Update(ctx, func(st state.State) error {
		var reg registry.Registry
		if s.sameSession(st) {
			if err := st.Decode(keyRegistry, &reg); err != nil {
				reg = registry.Registry{}
			}
		}
		return s.put(st, reg)
	})
	if err != nil {
		t.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"instance":   cred.String(),
		"remote_dir": ws.RemoteDir,
		"tracked":    s.Registry.Len(),
	}).Info("session created")
	return s, nil
}

func (s *Session) sameSession(st state.State) bool {
	var prev instance.Credential
	var ws Workspace
	if st.Decode(keyCredential, &prev) != nil || st.Decode(keyWorkspace, &ws) != nil {
		return false
	}
	return prev.String() == s.Credential.String() && ws.RemoteDir == s.Workspace.RemoteDir
}

// Attach resumes the session persisted under root. It fails with NO_SESSION
// when nothing was persisted or the snapshot cannot be decoded.
func Attach(ctx context.Context, root string, opts Options) (*Session, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	store := newStore(root, opts)
	if !store.Exists() {
		return nil, rexerrors.NoSession(store.Path(), nil)
	}
	st, err := store.Load(ctx)
	if err != nil {
		if rexerrors.Is(err, rexerrors.ErrCodeStateLocked) {
			return nil, err
		}
		return nil, rexerrors.NoSession(store.Path(), err)
	}

	s := &Session{store: store, opts: opts}
	if err := s.decode(st); err != nil {
		return nil, rexerrors.NoSession(store.Path(), err)
	}
	if s.Credential.IsZero() || s.Workspace.RemoteDir == "" {
		return nil, rexerrors.NoSession(store.Path(), nil)
	}
	s.t = opts.dial(s.Credential)
	log.WithFields(logrus.Fields{
		"instance": s.Credential.String(),
		"tracked":  s.Registry.Len(),
	}).Debug("session attached")
	return s, nil
}

// Exists reports whether a session is persisted under root.
func Exists(root string) bool {
	return state.NewStore(root).Exists()
}

func (s *Session) decode(st state.State) error {
	if err := st.Decode(keyCredential, &s.Credential); err != nil {
		return err
	}
	if err := st.Decode(keyWorkspace, &s.Workspace); err != nil {
		return err
	}
	var reg registry.Registry
	if err := st.Decode(keyRegistry, &reg); err != nil {
		return err
	}
	s.Registry = reg
	return nil
}

func (s *Session) put(st state.State, reg registry.Registry) error {
	if err := st.Put(keyCredential, s.Credential); err != nil {
		return err
	}
	if err := st.Put(keyWorkspace, s.Workspace); err != nil {
		return err
	}
	if reg.Processes == nil {
		reg.Processes = []registry.TrackedProcess{}
	}
	if err := st.Put(keyRegistry, reg); err != nil {
		return err
	}
	s.Registry = reg
	return nil
}

// mutate re-reads the persisted registry, applies fn and writes the snapshot
// back, all under the exclusive state lock. fn must not perform remote I/O.
func (s *Session) mutate(ctx context.Context, fn func(*registry.Registry)) error {
	return s.store.Update(ctx, func(st state.State) error {
		var reg registry.Registry
		if _, ok := st[keyRegistry]; ok {
			if err := st.Decode(keyRegistry, &reg); err != nil {
				return rexerrors.NoSession(s.store.Path(), err)
			}
		}
		fn(&reg)
		return s.put(st, reg)
	})
}

// reload refreshes the in-memory registry from disk.
func (s *Session) reload(ctx context.Context) error {
	st, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	var reg registry.Registry
	if _, ok := st[keyRegistry]; ok {
		if err := st.Decode(keyRegistry, &reg); err != nil {
			return rexerrors.NoSession(s.store.Path(), err)
		}
	}
	s.Registry = reg
	return nil
}

// Transport returns the transport reaching the session's host.
func (s *Session) Transport() transport.Transport {
	return s.t
}

// StatePath is the file the session is persisted in.
func (s *Session) StatePath() string {
	return s.store.Path()
}

// Close releases the transport.
func (s *Session) Close() error {
	if s.t == nil {
		return nil
	}
	return s.t.Close()
}

func (s *Session) logger() *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"instance": s.Credential.String(),
		"project":  s.Workspace.Name,
	})
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
