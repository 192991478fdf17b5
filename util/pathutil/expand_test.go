package pathutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("REX_TEST_DIR", "keys")

	assert.Equal(t, home, Expand("~"))
	assert.Equal(t, filepath.Join(home, ".ssh", "id_ed25519"), Expand("~/.ssh/id_ed25519"))
	assert.Equal(t, "/etc/keys/a", Expand("/etc/${REX_TEST_DIR}/a"))
	assert.Equal(t, "~user/x", Expand("~user/x"))
}

func TestAbs(t *testing.T) {
	got, err := Abs("relative/file")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}
