// Package state persists a versionless key/value snapshot for a project.
// Every read-modify-write happens under an advisory file lock.
package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	rexerrors "github.com/grovetools/rex/errors"
)

const (
	// DirName is the per-project directory holding rex state.
	DirName = ".rex"
	// FileName is the snapshot file inside DirName.
	FileName = "state.yml"

	lockRetryDelay = 50 * time.Millisecond
	// DefaultLockTimeout bounds how long Update waits for another invocation.
	DefaultLockTimeout = 10 * time.Second
)

// State represents the persisted snapshot as a generic map of key-value pairs.
type State map[string]interface{}

// Store reads and writes one state file.
type Store struct {
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration
}

// NewStore returns a Store for the state file of the project rooted at root.
func NewStore(root string) *Store {
	return NewStoreAt(filepath.Join(root, DirName, FileName))
}

// NewStoreAt returns a Store for an explicit state file path.
func NewStoreAt(path string) *Store {
	return &Store{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: DefaultLockTimeout,
	}
}

// WithLockTimeout overrides how long Update waits for the lock.
func (s *Store) WithLockTimeout(d time.Duration) *Store {
	s.lockTimeout = d
	return s
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a state file has been written.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the snapshot under a shared lock.
// Returns an empty state if the file doesn't exist.
func (s *Store) Load(ctx context.Context) (State, error) {
	if err := s.acquire(ctx, false); err != nil {
		return nil, err
	}
	defer func() { _ = s.lock.Unlock() }()
	return s.read()
}

// Update loads the snapshot, applies fn and saves the result as one step
// under an exclusive lock. Nothing is written if fn returns an error.
func (s *Store) Update(ctx context.Context, fn func(State) error) error {
	if err := s.acquire(ctx, true); err != nil {
		return err
	}
	defer func() { _ = s.lock.Unlock() }()

	st, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return s.write(st)
}

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) (interface{}, bool, error) {
	st, err := s.Load(ctx)
	if err != nil {
		return nil, false, err
	}
	val, ok := st[key]
	return val, ok, nil
}

// GetString returns an empty string if the key doesn't exist or is not a string.
func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	val, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return "", err
	}
	str, _ := val.(string)
	return str, nil
}

// Set sets a value in the state.
func (s *Store) Set(ctx context.Context, key string, value interface{}) error {
	return s.Update(ctx, func(st State) error {
		return st.Put(key, value)
	})
}

// Delete removes a key from the state.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.Update(ctx, func(st State) error {
		delete(st, key)
		return nil
	})
}

// Put stores value under key as plain maps and slices, so that the snapshot
// holds no Go types that would not survive a save and load.
func (st State) Put(key string, value interface{}) error {
	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	var plain interface{}
	if err := yaml.Unmarshal(data, &plain); err != nil {
		return fmt.Errorf("normalize %s: %w", key, err)
	}
	st[key] = plain
	return nil
}

// Decode decodes the value under key into out. Unknown fields are an error,
// so an incompatible snapshot is rejected rather than coerced.
func (st State) Decode(key string, out interface{}) error {
	raw, ok := st[key]
	if !ok {
		return fmt.Errorf("key %q not found", key)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
		TagName:     "mapstructure",
		// Values stored through encoding.TextMarshaler come back as strings.
		DecodeHook: mapstructure.TextUnmarshallerHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) acquire(ctx context.Context, exclusive bool) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil || !locked {
		return rexerrors.Wrap(err, rexerrors.ErrCodeStateLocked, "state file is locked by another rex invocation").
			WithDetail("path", s.path)
	}
	return nil
}

func (s *Store) read() (State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(State), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	if len(doc.Content) == 0 {
		return make(State), nil
	}
	if root := doc.Content[0]; root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse state file: line %d: expected a mapping, got %s", root.Line, root.ShortTag())
	}
	var st State
	if err := doc.Decode(&st); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	if st == nil {
		st = make(State)
	}
	return st, nil
}

func (s *Store) write(st State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), FileName+".*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
