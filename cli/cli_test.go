package cli

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/rex/errors"
	"github.com/grovetools/rex/pkg/instance"
	"github.com/grovetools/rex/pkg/registry"
)

func plain(t *testing.T) {
	t.Setenv("CLICOLOR_FORCE", "")
	t.Setenv("COLORTERM", "")
}

func TestProcessTable(t *testing.T) {
	plain(t)
	var buf bytes.Buffer
	RenderProcesses(&buf, []registry.TrackedProcess{
		{Name: "runner", PID: 4242, Token: "abc"},
		{Name: registry.ZombieName, PID: 77, State: registry.StateZombie},
	})

	out := buf.String()
	for _, want := range []string{"IDX", "NAME", "PID", "STATE", "TOKEN", "runner", "4242", "launched", "zombie", "abc", "77", ZombieLegend} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "4242"), strings.Index(out, "77"))
}

func TestProcessTableWithoutDiscoveredEntries(t *testing.T) {
	plain(t)
	var buf bytes.Buffer
	RenderProcesses(&buf, []registry.TrackedProcess{{Name: "runner", PID: 1, Token: "t"}})
	assert.NotContains(t, buf.String(), ZombieLegend)

	buf.Reset()
	RenderProcesses(&buf, nil)
	assert.Equal(t, "No tracked processes.\n", buf.String())
}

func TestInstanceTable(t *testing.T) {
	plain(t)
	out := InstanceTable(NewTheme(&bytes.Buffer{}), []instance.Credential{
		{Username: "ana", Host: "gpu1"},
		{Username: "bo", Host: "gpu2", Port: 2222, KeyPath: "/k"},
	}, 1)

	lines := strings.Split(out, "\n")
	var gpu2 string
	for _, l := range lines {
		if strings.Contains(l, "bo@gpu2") {
			gpu2 = l
		}
	}
	require.NotEmpty(t, gpu2)
	assert.Contains(t, gpu2, "2222")
	assert.Contains(t, gpu2, "key")
	assert.Contains(t, gpu2, "*")
	assert.Contains(t, out, "ana@gpu1")
	assert.Contains(t, out, "password")
}

func TestErrorHandler(t *testing.T) {
	plain(t)
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{"no session", errors.NoSession("/p/.rex/state.yml", nil), []string{"No rex session", "rex init"}},
		{"instance", errors.InstanceNotFound(3, 1), []string{"Instance 3 not found (1 configured)"}},
		{"transport", errors.TransportFailed("exec", fmt.Errorf("connection reset")),
			[]string{"Could not exec on the host: connection reset", "not modified"}},
		{"wrapped launch", fmt.Errorf("async: %w", errors.LaunchFailed("runner", fmt.Errorf("disk full"))),
			[]string{"Could not launch runner: disk full"}},
		{"mismatch", errors.ReconciliationMismatch("garbage"), []string{`near "garbage"`, "tolerant_reconcile"}},
		{"plain", fmt.Errorf("boom"), []string{"Error: boom"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &ErrorHandler{Out: &buf}
			assert.Equal(t, tt.err, h.Handle(tt.err))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			assert.NotContains(t, buf.String(), "Error details")
		})
	}
}

func TestErrorHandlerVerbose(t *testing.T) {
	plain(t)
	var buf bytes.Buffer
	h := &ErrorHandler{Verbose: true, Out: &buf}
	h.Handle(errors.InvalidArgument("empty command list"))
	assert.Contains(t, buf.String(), "Error details")
	assert.Contains(t, buf.String(), `"code": "INVALID_ARGUMENT"`)
}

func TestReadPasswordFromPipe(t *testing.T) {
	var out bytes.Buffer
	secret, err := ReadPassword(strings.NewReader("hunter2\nignored\n"), &out, "Password: ")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", secret)
	assert.Equal(t, "Password: ", out.String())

	secret, err = ReadPassword(strings.NewReader("last"), &out, "")
	require.NoError(t, err)
	assert.Equal(t, "last", secret)
}

func TestReadLine(t *testing.T) {
	var out bytes.Buffer
	line, err := ReadLine(strings.NewReader(" 2 \nnext\n"), &out, "Index: ")
	require.NoError(t, err)
	assert.Equal(t, "2", line)
	assert.Equal(t, "Index: ", out.String())

	line, err = ReadLine(strings.NewReader(""), &out, "")
	require.NoError(t, err)
	assert.Empty(t, line)
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, "one two\nthree", wrapText("one two three", 8))
	assert.Equal(t, "a\nb", wrapText("a\nb", 8))
}

func newTestRoot() *cobra.Command {
	root := NewStandardCommand("rex", "Run jobs on remote hosts")
	sub := &cobra.Command{
		Use:   "list",
		Short: "List tracked processes",
		Long: `List tracked processes.

Examples:
  # reconcile first
  rex list --force`,
		RunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
	sub.Flags().Bool("force", false, "Reconcile against the process table")
	root.AddCommand(sub)
	ApplyStyledHelpRecursive(root)
	return root
}

func TestStyledHelp(t *testing.T) {
	plain(t)
	root := newTestRoot()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"list", "--help"})
	require.NoError(t, root.Execute())

	out := buf.String()
	assert.Contains(t, out, "REX LIST")
	assert.Contains(t, out, "USAGE")
	assert.Contains(t, out, "--force")
	assert.Contains(t, out, "EXAMPLES")
	assert.Contains(t, out, "# reconcile first")
	assert.Contains(t, out, "rex list --force")
}

func TestGetOptionsInheritsRootFlags(t *testing.T) {
	root := newTestRoot()
	var got CommandOptions
	root.Commands()[0].RunE = func(cmd *cobra.Command, args []string) error {
		got = GetOptions(cmd)
		return nil
	}
	root.SetArgs([]string{"list", "--json", "-c", "/tmp/rex.yml"})
	require.NoError(t, root.Execute())
	assert.Equal(t, CommandOptions{ConfigFile: "/tmp/rex.yml", JSONOutput: true}, got)
}

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	root := newTestRoot()
	path := filepath.Join(t.TempDir(), "rex.yml")
	root.Commands()[0].RunE = func(cmd *cobra.Command, args []string) error {
		cfg, got, err := LoadConfig(cmd)
		require.NoError(t, err)
		assert.Equal(t, path, got)
		assert.Equal(t, "TERM", cfg.KillSignal)
		assert.Empty(t, cfg.Instances)
		return nil
	}
	root.SetArgs([]string{"list", "--config", path})
	require.NoError(t, root.Execute())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, registry.TrackedProcess{Name: "runner", PID: 9}))
	assert.Equal(t, "{\n  \"name\": \"runner\",\n  \"pid\": 9,\n  \"state\": \"launched\"\n}\n", buf.String())
}
