package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rexerrors "github.com/grovetools/rex/errors"
)

type proc struct {
	Name  string `yaml:"name" mapstructure:"name"`
	PID   int    `yaml:"pid" mapstructure:"pid"`
	Token string `yaml:"token,omitempty" mapstructure:"token"`
}

type snapshot struct {
	Host      string `yaml:"host" mapstructure:"host"`
	Processes []proc `yaml:"processes" mapstructure:"processes"`
}

func TestStoreOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore(t.TempDir())

	t.Run("Load empty state", func(t *testing.T) {
		st, err := store.Load(ctx)
		require.NoError(t, err)
		assert.NotNil(t, st)
		assert.Empty(t, st)
		assert.False(t, store.Exists())
	})

	t.Run("Set and Get string value", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "test.key", "test-value"))
		got, err := store.GetString(ctx, "test.key")
		require.NoError(t, err)
		assert.Equal(t, "test-value", got)
		assert.True(t, store.Exists())
	})

	t.Run("Get missing key", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "test.key"))
		got, err := store.GetString(ctx, "test.key")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("file permissions", func(t *testing.T) {
		info, err := os.Stat(store.Path())
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})
}

func TestRoundTripPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := NewStore(t.TempDir())

	in := snapshot{
		Host: "gpu-box",
		Processes: []proc{
			{Name: "train", PID: 300, Token: "a"},
			{Name: "eval", PID: 12},
			{Name: "zombie/spawn", PID: 99},
		},
	}
	require.NoError(t, store.Update(ctx, func(st State) error {
		return st.Put("snapshot", in)
	}))

	reloaded, err := NewStoreAt(store.Path()).Load(ctx)
	require.NoError(t, err)

	var out snapshot
	require.NoError(t, reloaded.Decode("snapshot", &out))
	assert.Equal(t, in, out)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	st := State{"snapshot": map[string]interface{}{"host": "h", "version": 2}}
	var out snapshot
	assert.Error(t, st.Decode("snapshot", &out))

	assert.Error(t, State{}.Decode("snapshot", &out))

	st = State{"snapshot": map[string]interface{}{"host": []interface{}{"not", "a", "string"}}}
	assert.Error(t, st.Decode("snapshot", &out))
}

func TestUpdateErrorLeavesFileUntouched(t *testing.T) {
	ctx := context.Background()
	store := NewStore(t.TempDir())
	require.NoError(t, store.Set(ctx, "k", "v1"))

	err := store.Update(ctx, func(st State) error {
		st["k"] = "v2"
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	got, err := store.GetString(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
}

func TestUpdateTimesOutWhileLocked(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	holder := NewStore(dir)
	waiter := NewStore(dir).WithLockTimeout(150 * time.Millisecond)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- holder.Update(ctx, func(State) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := waiter.Set(ctx, "k", "v")
	require.Error(t, err)
	assert.True(t, rexerrors.Is(err, rexerrors.ErrCodeStateLocked))

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, waiter.Set(ctx, "k", "v"))
}

func TestCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, DirName), 0o755))

	for name, content := range map[string]string{
		"unclosed flow sequence": "key: [unclosed",
		"scalar document":        "just text",
		"sequence document":      "- a\n- b\n",
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(store.Path(), []byte(content), 0o600))
			st, err := store.Load(context.Background())
			assert.Error(t, err)
			assert.Nil(t, st)
		})
	}
}
