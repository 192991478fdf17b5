package transport

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/rex/command"
	rexerrors "github.com/grovetools/rex/errors"
)

func TestLocalExec(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	res, err := l.Exec(ctx, Request{Command: "echo out; echo err >&2"})
	require.NoError(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)

	res, err = l.Exec(ctx, Request{Command: "exit 4"})
	require.NoError(t, err, "a non-zero exit is not a transport failure")
	assert.Equal(t, 4, res.ExitCode)

	_, err = RunLine(ctx, l, Request{Command: "exit 4"})
	require.Error(t, err)
	assert.True(t, rexerrors.Is(err, rexerrors.ErrCodeCommandFailed))

	var streamed bytes.Buffer
	res, err = l.Exec(ctx, Request{Command: "cat", Stdin: strings.NewReader("piped"), Output: &streamed})
	require.NoError(t, err)
	assert.Equal(t, "piped", res.Stdout)
	assert.Equal(t, "piped", streamed.String())
}

func TestLocalExecCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := NewLocal().Exec(ctx, Request{Command: "sleep 5"})
	require.Error(t, err)
	assert.True(t, rexerrors.Is(err, rexerrors.ErrCodeTransport))
}

func TestLocalHomeOverride(t *testing.T) {
	home := t.TempDir()
	l := &Local{Home: home}
	res, err := Run(context.Background(), l, command.Exec{Command: command.RemoteHome()})
	require.NoError(t, err)
	resolved, _ := filepath.EvalSymlinks(home)
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(res.Stdout))
	assert.Equal(t, resolved, got)
}

func TestUploadDownload(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()
	path := filepath.Join(t.TempDir(), "runner.sh")

	require.NoError(t, Upload(ctx, l, path, strings.NewReader("echo hi\n")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "echo hi\n", string(data))

	var buf bytes.Buffer
	require.NoError(t, Download(ctx, l, path, &buf, false))
	assert.Equal(t, "echo hi\n", buf.String())

	missing := filepath.Join(t.TempDir(), "missing.log")
	content, err := ReadFile(ctx, l, missing, true)
	require.NoError(t, err)
	assert.Empty(t, content)

	_, err = ReadFile(ctx, l, missing, false)
	assert.Error(t, err)
}

func TestStartReturnsPID(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logfile := filepath.Join(dir, "job.log")

	pid, err := Start(ctx, NewLocal(), command.ExecAsync{
		Dir:      dir,
		Command:  "echo started",
		Logfile:  logfile,
		Truncate: true,
	})
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	assert.Eventually(t, func() bool {
		data, _ := os.ReadFile(logfile)
		return string(data) == "started\n"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestParsePID(t *testing.T) {
	pid, err := ParsePID("\n 4242 \n")
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	pid, err = ParsePID("77\nrest of output\n")
	require.NoError(t, err)
	assert.Equal(t, 77, pid)

	pid, err = ParsePID("Welcome to gpu01\nLast login: Mon\n4242\n17\n")
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	_, err = ParsePID("nohup: ignoring input\n")
	assert.ErrorContains(t, err, `got "nohup: ignoring input"`)

	for _, bad := range []string{"", "\n\n", "nohup: ignoring input", "-1", "0", "+5"} {
		_, err := ParsePID(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestSyncFiles(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "remote", "demo")

	require.NoError(t, os.MkdirAll(filepath.Join(src, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "main.py"), []byte("print(1)\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "pkg", "util.py"), []byte("X = 2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "secret.env"), []byte("TOKEN=1\n"), 0o644))

	require.NoError(t, SyncFiles(ctx, NewLocal(), src, []string{"main.py", "pkg/util.py"}, dst))

	assert.FileExists(t, filepath.Join(dst, "main.py"))
	assert.FileExists(t, filepath.Join(dst, "pkg", "util.py"))
	assert.NoFileExists(t, filepath.Join(dst, "secret.env"))

	err := SyncFiles(ctx, NewLocal(), src, []string{"absent.py"}, dst)
	assert.True(t, rexerrors.Is(err, rexerrors.ErrCodeInvalidArgument), "got %v", err)
	assert.ErrorContains(t, err, "stat absent.py")
}

func TestSyncFilesReportsLocalFailureOverRemote(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "remote")
	require.NoError(t, os.WriteFile(filepath.Join(src, "main.py"), []byte("print(1)\n"), 0o644))

	// The first file reaches the host, then the archive breaks off.
	err := SyncFiles(ctx, NewLocal(), src, []string{"main.py", "gone.py"}, dst)
	require.Error(t, err)
	assert.False(t, rexerrors.Is(err, rexerrors.ErrCodeCommandFailed), "got %v", err)
	assert.True(t, rexerrors.Is(err, rexerrors.ErrCodeInvalidArgument), "got %v", err)
	assert.ErrorContains(t, err, "stat gone.py")
}
