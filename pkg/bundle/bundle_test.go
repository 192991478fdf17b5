package bundle

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/rex/config"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestDeclaredFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"train.py":               "",
		"models/net.py":          "",
		"models/weights.bin":     "",
		"configs/base.yaml":      "",
		"tests/test_net.py":      "",
		".git/hooks/x.py":        "",
		".rex/state.yml":         "",
		"__pycache__/train.py":   "",
		"notes.txt":              "",
		"configs/local.yaml.bak": "",
	})

	tests := []struct {
		name string
		cfg  config.BundleConfig
		want []string
	}{
		{
			name: "python files only",
			want: []string{"models/net.py", "tests/test_net.py", "train.py"},
		},
		{
			name: "include adds patterns and directories",
			cfg:  config.BundleConfig{Include: []string{"configs/*.yaml", "models"}},
			want: []string{"configs/base.yaml", "models/net.py", "models/weights.bin", "tests/test_net.py", "train.py"},
		},
		{
			name: "exclude removes directories",
			cfg:  config.BundleConfig{Exclude: []string{"tests"}},
			want: []string{"models/net.py", "train.py"},
		},
		{
			name: "exclude wins over include",
			cfg: config.BundleConfig{
				Include: []string{"models"},
				Exclude: []string{"**/*.bin"},
			},
			want: []string{"models/net.py", "tests/test_net.py", "train.py"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(root, tt.cfg)
			require.NoError(t, err)
			files, err := b.DeclaredFiles()
			require.NoError(t, err)
			assert.Equal(t, tt.want, files)
		})
	}
}

func TestMatches(t *testing.T) {
	b, err := New(t.TempDir(), config.BundleConfig{Exclude: []string{"scratch"}})
	require.NoError(t, err)

	assert.True(t, b.Matches("train.py"))
	assert.True(t, b.Matches("./pkg/util.py"))
	assert.False(t, b.Matches("scratch/try.py"))
	assert.False(t, b.Matches(".rex/runner.py"))
	assert.False(t, b.Matches("../outside.py"))
	assert.False(t, b.Matches("README.md"))
}

func TestNameAndInvalidPatterns(t *testing.T) {
	root := filepath.Join(t.TempDir(), "mnist")
	require.NoError(t, os.Mkdir(root, 0o755))
	b, err := New(root, config.BundleConfig{})
	require.NoError(t, err)
	assert.Equal(t, "mnist", b.Name())

	_, err = New(root, config.BundleConfig{Include: []string{"[a-"}})
	assert.Error(t, err)
}

func TestRequirements(t *testing.T) {
	root := t.TempDir()
	b, err := New(root, config.BundleConfig{})
	require.NoError(t, err)

	reqs, err := b.Requirements()
	require.NoError(t, err)
	assert.Empty(t, reqs, "a missing requirements file means no packages")

	writeTree(t, root, map[string]string{
		"requirements.txt": "numpy==1.26.4\n\n# training\ntorch>=2.0  # gpu build\n-r extra.txt\nrequests\n",
	})
	reqs, err = b.Requirements()
	require.NoError(t, err)
	assert.Equal(t, []string{"numpy==1.26.4", "torch>=2.0", "requests"}, reqs)
}

func TestRequirementsCustomPath(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"deps/pip.txt": "scipy\n"})
	b, err := New(root, config.BundleConfig{Requirements: "deps/pip.txt"})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(b.Root, "deps", "pip.txt"), b.RequirementsPath())
	reqs, err := b.Requirements()
	require.NoError(t, err)
	assert.Equal(t, []string{"scipy"}, reqs)
}

// fakeExecutor substitutes a shell snippet for the requested program.
type fakeExecutor struct {
	script string
	got    []string
}

func (f *fakeExecutor) Command(name string, args ...string) *exec.Cmd {
	return f.CommandContext(context.Background(), name, args...)
}

func (f *fakeExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	f.got = append([]string{name}, args...)
	return exec.CommandContext(ctx, "sh", "-c", f.script)
}

func TestRefresh(t *testing.T) {
	root := t.TempDir()
	b, err := New(root, config.BundleConfig{})
	require.NoError(t, err)

	exe := &fakeExecutor{script: "echo pandas > requirements.txt"}
	b.Executor = exe
	require.NoError(t, b.Refresh(context.Background()))
	assert.Equal(t, "pipreqs", exe.got[0])

	reqs, err := b.Requirements()
	require.NoError(t, err)
	assert.Equal(t, []string{"pandas"}, reqs)

	b.Executor = &fakeExecutor{script: "echo boom >&2; exit 1"}
	err = b.Refresh(context.Background())
	assert.Error(t, err)
}
