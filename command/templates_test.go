package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rexerrors "github.com/grovetools/rex/errors"
)

func TestSpecRender(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want string
	}{
		{
			name: "make dirs",
			spec: MakeDir{Paths: []string{"/r/demo", "/r/demo/data/"}},
			want: "mkdir -p '/r/demo' '/r/demo/data/'",
		},
		{
			name: "sync",
			spec: Sync{Dir: "/r/demo"},
			want: "mkdir -p '/r/demo' && tar -xf - -C '/r/demo'",
		},
		{
			name: "exec plain",
			spec: Exec{Command: "pwd"},
			want: "pwd",
		},
		{
			name: "exec blocking in dir",
			spec: Exec{Dir: "/r/demo", Command: "python3 train.py", Logfile: "/r/demo/demo.log", Footer: FooterBlocking},
			want: "cd '/r/demo' && { python3 train.py >> '/r/demo/demo.log' 2>&1; }",
		},
		{
			name: "exec background",
			spec: Exec{Command: "sleep 5", Logfile: "/tmp/x.log", Footer: FooterBackground},
			want: "sleep 5 >> '/tmp/x.log' 2>&1 &",
		},
		{
			name: "exec reporting pid",
			spec: Exec{Dir: "/r/demo", Command: "bash '/r/demo/rex-runner-1.sh'", EchoPID: true},
			want: "cd '/r/demo' && { echo $$; exec bash '/r/demo/rex-runner-1.sh'; }",
		},
		{
			name: "async with truncation",
			spec: ExecAsync{Dir: "/r/demo", Command: "bash 'run.sh'", Logfile: "/r/demo/demo.log", Truncate: true},
			want: "cd '/r/demo' && { : > '/r/demo/demo.log' && { nohup bash 'run.sh' >> '/r/demo/demo.log' 2>&1 & echo $!; }; }",
		},
		{
			name: "async without log",
			spec: ExecAsync{Command: "sleep 10"},
			want: "{ nohup sleep 10 >> '/dev/null' 2>&1 & echo $!; }",
		},
		{
			name: "copy",
			spec: Copy{Path: "/r/demo/run.sh"},
			want: "cat > '/r/demo/run.sh'",
		},
		{
			name: "fetch tolerant",
			spec: Fetch{Path: "/r/demo/demo.log", AllowMissing: true},
			want: "if [ -f '/r/demo/demo.log' ]; then cat '/r/demo/demo.log'; fi",
		},
		{
			name: "kill defaults to TERM",
			spec: Kill{PIDs: []int{12, 34}},
			want: "kill -TERM 12 34",
		},
		{
			name: "kill strips SIG prefix",
			spec: Kill{PIDs: []int{12}, Signal: "SIGKILL"},
			want: "kill -KILL 12",
		},
		{
			name: "kill with children",
			spec: Kill{PIDs: []int{12, 34}, Children: true},
			want: "kill -TERM 12 34 && { pkill -TERM -P 12,34 || true; }",
		},
		{
			name: "process list",
			spec: ProcessList{Marker: "rex-runner"},
			want: "ps ax -o pid=,ppid=,args= | grep -F -e 'rex-runner' | grep -v grep || true",
		},
		{
			name: "process list under a directory",
			spec: ProcessList{Marker: "/home/u/my projects/demo/rex-runner-"},
			want: "ps ax -o pid=,ppid=,args= | grep -F -e '/home/u/my projects/demo/rex-runner-' | grep -v grep || true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.spec.Render()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSpecRenderRejectsMissingParameters(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"mkdir without paths", MakeDir{}},
		{"sync without dir", Sync{}},
		{"exec without command", Exec{Dir: "/r"}},
		{"blocking without logfile", Exec{Command: "ls", Footer: FooterBlocking}},
		{"pid of background command", Exec{Command: "ls", Logfile: "/l", Footer: FooterBackground, EchoPID: true}},
		{"async without command", ExecAsync{Logfile: "/l"}},
		{"truncate without logfile", ExecAsync{Command: "ls", Truncate: true}},
		{"copy without path", Copy{}},
		{"fetch injection", Fetch{Path: "/l; rm -rf /"}},
		{"kill without pids", Kill{}},
		{"kill zero pid", Kill{PIDs: []int{0}}},
		{"kill bad signal", Kill{PIDs: []int{1}, Signal: "TERM;ls"}},
		{"process list bad marker", ProcessList{Marker: "a;b"}},
		{"process list empty marker", ProcessList{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.spec.Render()
			require.Error(t, err)
			assert.True(t, rexerrors.Is(err, rexerrors.ErrCodeInvalidArgument), "got %v", err)
		})
	}
}

func TestApplyFooter(t *testing.T) {
	out, err := ApplyFooter("ls", "", FooterNone)
	require.NoError(t, err)
	assert.Equal(t, "ls", out)

	_, err = ApplyFooter("ls", "/l", Footer(9))
	assert.Error(t, err)
	assert.Equal(t, "Footer(9)", Footer(9).String())
	assert.Equal(t, "background", FooterBackground.String())
}

func TestHelpers(t *testing.T) {
	out, err := PipInstall([]string{"numpy", "torch==2.1.0"})
	require.NoError(t, err)
	assert.Equal(t, "python3 -m pip install --user 'numpy' 'torch==2.1.0'", out)

	_, err = PipInstall(nil)
	assert.Error(t, err)

	out, err = Wget([]string{"https://example.com/a.zip"})
	require.NoError(t, err)
	assert.Equal(t, "wget -c 'https://example.com/a.zip'", out)

	out, err = Shell("/r/demo")
	require.NoError(t, err)
	assert.Equal(t, "cd '/r/demo' && { exec ${SHELL:-bash} --login; }", out)

	out, err = Cd("/r/demo")
	require.NoError(t, err)
	assert.Equal(t, "cd '/r/demo'", out)

	out, err = RunScript("/r/demo/rex-runner-a.sh")
	require.NoError(t, err)
	assert.Equal(t, "bash '/r/demo/rex-runner-a.sh'", out)

	out, err = Jupyter(8830)
	require.NoError(t, err)
	assert.Equal(t, "jupyter-notebook --no-browser --port=8830 --NotebookApp.token='' .", out)

	for _, port := range []int{0, -1, 70000} {
		_, err = Jupyter(port)
		assert.True(t, rexerrors.Is(err, rexerrors.ErrCodeInvalidArgument), "port %d", port)
	}
}
