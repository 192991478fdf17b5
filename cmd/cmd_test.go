package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/rex/errors"
	"github.com/grovetools/rex/pkg/instance"
	"github.com/grovetools/rex/pkg/registry"
	"github.com/grovetools/rex/pkg/transport"
	"github.com/grovetools/rex/pkg/transport/transporttest"
)

const testConfig = `instances:
  - username: u
    host: gpu01
    password: pw
`

type harness struct {
	fake    *transporttest.Fake
	root    string
	cfgPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("CLICOLOR_FORCE", "")
	t.Setenv("COLORTERM", "")

	fake := transporttest.New()
	fake.Reply("cd && pwd", "/home/u\n")
	prev := dialTransport
	dialTransport = func(instance.Credential) transport.Transport { return fake }
	t.Cleanup(func() { dialTransport = prev })

	dir := t.TempDir()
	root := filepath.Join(dir, "demo")
	require.NoError(t, os.Mkdir(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "train.py"), []byte("print(1)\n"), 0o644))
	cfgPath := filepath.Join(dir, "rex.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o600))

	return &harness{fake: fake, root: root, cfgPath: cfgPath}
}

func (h *harness) run(args ...string) (string, error) {
	return h.runWithInput("", args...)
}

func (h *harness) runWithInput(input string, args ...string) (string, error) {
	return h.runContext(context.Background(), input, args...)
}

func (h *harness) runContext(ctx context.Context, input string, args ...string) (string, error) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(append([]string{"--config", h.cfgPath, "-C", h.root}, args...))
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(args...)
	require.NoError(t, err, out)
	return out
}

func TestCommandsWithoutSession(t *testing.T) {
	h := newHarness(t)
	for _, args := range [][]string{{"list"}, {"kill"}, {"log"}, {"async", "true"}, {"sync"}} {
		_, err := h.run(args...)
		assert.True(t, errors.Is(err, errors.ErrCodeNoSession), "%v: %v", args, err)
	}
	assert.Empty(t, h.fake.Commands())
}

func TestInitLaunchListKill(t *testing.T) {
	h := newHarness(t)
	h.fake.Reply("nohup", "4242\n")

	out := h.mustRun(t, "init", "--no-install")
	assert.Contains(t, out, "Session demo created at u@gpu01:/home/u/projects/demo")
	assert.Contains(t, out, "Synced 1 files")
	assert.NotEmpty(t, h.fake.CommandsContaining("mkdir -p '/home/u/projects/demo'"))

	out = h.mustRun(t, "async", "python3 train.py")
	assert.Contains(t, out, "pid 4242")

	out = h.mustRun(t, "list", "--json")
	var procs []registry.TrackedProcess
	require.NoError(t, json.Unmarshal([]byte(out), &procs))
	require.Len(t, procs, 1)
	assert.Equal(t, "runner", procs[0].Name)
	assert.Equal(t, 4242, procs[0].PID)

	h.fake.Reply("ps ax", fmt.Sprintf(
		"%6d      1 bash /home/u/projects/demo/rex-runner-%s.sh\n"+
			"%6d      1 bash /home/u/projects/demo/rex-runner-other.sh\n", 4242, procs[0].Token, 5000))
	out = h.mustRun(t, "list", "--force")
	assert.Contains(t, out, "4242")
	assert.Contains(t, out, "5000")
	assert.Contains(t, out, registry.ZombieName)

	out = h.mustRun(t, "kill", "--idx", "2")
	assert.Contains(t, out, "Signalled zombie/spawn (pid 5000)")
	assert.Equal(t, []string{"kill -TERM 5000 && { pkill -TERM -P 5000 || true; }"}, h.fake.CommandsContaining("kill -"))

	out = h.mustRun(t, "kill", "--idx", "1", "--signal", "KILL")
	assert.Contains(t, out, "pid 4242")
	assert.Contains(t, h.fake.CommandsContaining("kill -"), "kill -KILL 4242 && { pkill -KILL -P 4242 || true; }")

	_, err := h.run("kill", "--idx", "7")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidArgument))
}

func TestLaunchSyncsDeclaredFilesFirst(t *testing.T) {
	h := newHarness(t)
	h.fake.Reply("nohup", "4242\n")
	h.fake.Reply("echo $$; exec", "4343\nhello\n")
	h.mustRun(t, "init", "--no-sync", "--no-install")
	require.Empty(t, h.fake.CommandsContaining("tar -xf"))

	h.mustRun(t, "async", "python3 train.py")
	calls := h.fake.Calls()
	syncAt, launchAt := -1, -1
	for i, c := range calls {
		switch {
		case strings.Contains(c.Command, "tar -xf - -C '/home/u/projects/demo'"):
			syncAt = i
			assert.Contains(t, string(c.Stdin), "train.py")
		case strings.Contains(c.Command, "nohup"):
			launchAt = i
		}
	}
	require.NotEqual(t, -1, syncAt, "files are synced")
	assert.Less(t, syncAt, launchAt, "sync precedes the launch")

	out := h.mustRun(t, "run", "python3 train.py")
	assert.Equal(t, "hello\n", out)
	assert.Len(t, h.fake.CommandsContaining("tar -xf"), 2)

	h.mustRun(t, "async", "--no-sync", "python3 train.py")
	h.mustRun(t, "run", "--no-sync", "nvidia-smi")
	assert.Len(t, h.fake.CommandsContaining("tar -xf"), 2, "--no-sync skips the upload")
}

func TestKillWithoutIndexAsks(t *testing.T) {
	h := newHarness(t)
	h.fake.Reply("nohup", "4242\n")
	h.mustRun(t, "init", "--no-sync", "--no-install")
	h.mustRun(t, "async", "python3 train.py")

	out, err := h.run("kill")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidArgument), "got %v", err)
	assert.Contains(t, out, "4242", "the listing is shown before asking")
	assert.Contains(t, out, "Index to kill (1-1, 0 for all): ")
	assert.Empty(t, h.fake.CommandsContaining("kill -"))

	_, err = h.runWithInput("two\n", "kill")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidArgument))
	_, err = h.run("kill", "--json")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidArgument))
	assert.Empty(t, h.fake.CommandsContaining("kill -"))

	out, err = h.runWithInput("1\n", "kill")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Signalled runner (pid 4242)")
	assert.Equal(t, []string{"kill -TERM 4242 && { pkill -TERM -P 4242 || true; }"}, h.fake.CommandsContaining("kill -"))
}

func TestKillWithEmptyRegistry(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "init", "--no-sync", "--no-install")

	out := h.mustRun(t, "kill")
	assert.Contains(t, out, "Nothing to kill.")
	out = h.mustRun(t, "list")
	assert.Contains(t, out, "No tracked processes.")
	assert.Empty(t, h.fake.CommandsContaining("kill -"))
}

func TestLogPrintsFilteredContent(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "init", "--no-sync", "--no-install")
	h.fake.Reply("then cat", "epoch 1 loss 0.5\nsaving\nepoch 2 loss 0.2\nEOF\n")

	out := h.mustRun(t, "log", "--loop", "1")
	assert.Contains(t, out, "saving")
	assert.Contains(t, out, "EOF")

	out = h.mustRun(t, "log", "--filter", "loss")
	assert.Equal(t, "epoch 1 loss 0.5\nepoch 2 loss 0.2\n", out)
}

func TestConfAndConfigCommands(t *testing.T) {
	h := newHarness(t)
	h.cfgPath = filepath.Join(t.TempDir(), "fresh", "rex.yml")

	out := h.mustRun(t, "conf")
	assert.Contains(t, out, "Wrote "+h.cfgPath)
	assert.FileExists(t, h.cfgPath)

	_, err := h.run("conf")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidArgument))
	h.mustRun(t, "conf", "--force")

	out = h.mustRun(t, "instance", "list")
	assert.Contains(t, out, "user@gpu.example.com")

	out = h.mustRun(t, "config", "schema")
	assert.Contains(t, out, `"default_instance"`)

	out = h.mustRun(t, "config", "paths", "--json")
	var paths PathsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &paths))
	assert.Equal(t, h.cfgPath, paths.ConfigFile)
	assert.Equal(t, filepath.Join(h.root, ".rex"), filepath.Dir(paths.StateFile))
}

func TestInstanceAdd(t *testing.T) {
	h := newHarness(t)

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader("s3cret\n"))
	root.SetArgs([]string{"--config", h.cfgPath, "instance", "add", "v@gpu02"})
	require.NoError(t, root.Execute(), out.String())
	assert.Contains(t, out.String(), "Added v@gpu02 as instance 1")

	data, err := os.ReadFile(h.cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "gpu02")
	assert.Contains(t, string(data), "s3cret")

	_, err = h.run("instance", "add", "u@gpu01", "--key", "/k")
	assert.True(t, errors.Is(err, errors.ErrCodeInstanceDuplicate))
}

func TestVersionJSON(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun(t, "version", "--json")
	assert.Contains(t, out, `"version": "dev"`)
}

func TestNotebookRunsUntilInterrupted(t *testing.T) {
	h := newHarness(t)
	h.fake.Reply("nohup", "4545\n")
	h.mustRun(t, "init", "--no-sync", "--no-install")

	free, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	local := free.Addr().String()
	require.NoError(t, free.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := h.runContext(ctx, "", "notebook", "--port", "8831", "--local-port", strconv.Itoa(free.Addr().(*net.TCPAddr).Port))
		done <- result{out, err}
	}()

	// The fake host refuses forwarded dials, so a relayed connection is
	// closed as soon as forwarding is up.
	var conn net.Conn
	require.Eventually(t, func() bool {
		conn, err = net.Dial("tcp", local)
		return err == nil
	}, 10*time.Second, 20*time.Millisecond)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	conn.Close()
	cancel()

	var res result
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("notebook did not stop")
	}
	require.NoError(t, res.err, res.out)
	assert.Contains(t, res.out, "Started jupyter:8831 (pid 4545) on u@gpu01")
	assert.Contains(t, res.out, "Open http://127.0.0.1:")
	assert.Contains(t, res.out, "Notebook server stopped")
	assert.Equal(t, []string{"kill -TERM 4545 && { pkill -TERM -P 4545 || true; }"}, h.fake.CommandsContaining("kill -"))
}

func TestNotebookBusyLocalPort(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "init", "--no-sync", "--no-install")

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	_, err = h.run("notebook", "--local-port", strconv.Itoa(port))
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidArgument), "got %v", err)
	assert.Empty(t, h.fake.CommandsContaining("nohup"))
}
