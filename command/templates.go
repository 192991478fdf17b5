package command

import (
	"fmt"
	"strconv"
	"strings"

	rexerrors "github.com/grovetools/rex/errors"
)

// Footer controls how a command's output is captured.
type Footer int

const (
	// FooterNone leaves redirection to the caller.
	FooterNone Footer = iota
	// FooterBlocking appends stdout and stderr to a log file and waits.
	FooterBlocking
	// FooterBackground appends to a log file and backgrounds the command.
	FooterBackground
)

func (f Footer) String() string {
	switch f {
	case FooterNone:
		return "none"
	case FooterBlocking:
		return "blocking"
	case FooterBackground:
		return "background"
	default:
		return "Footer(" + strconv.Itoa(int(f)) + ")"
	}
}

// Redirect appends stdout and stderr of cmd to logfile.
func Redirect(cmd, logfile string) string {
	return cmd + " >> " + Quote(logfile) + " 2>&1"
}

// Group wraps cmd in a brace group so a redirection covers every part of it.
func Group(cmd string) string {
	return "{ " + cmd + "; }"
}

// ApplyFooter renders cmd with the given footer.
func ApplyFooter(cmd, logfile string, footer Footer) (string, error) {
	switch footer {
	case FooterNone:
		return cmd, nil
	case FooterBlocking, FooterBackground:
		if err := validate("path", logfile); err != nil {
			return "", invalid("logfile", err)
		}
		out := Redirect(cmd, logfile)
		if footer == FooterBackground {
			out += " &"
		}
		return out, nil
	default:
		return "", rexerrors.InvalidArgument(fmt.Sprintf("unknown footer %d", int(footer)))
	}
}

// Spec is a remote command that can be rendered to a single shell line.
// The set of implementations is closed.
type Spec interface {
	Render() (string, error)
	spec()
}

// MakeDir creates directories, including parents.
type MakeDir struct {
	Paths []string
}

// Sync unpacks a tar stream read from stdin into Dir.
type Sync struct {
	Dir string
}

// Exec runs Command inside Dir.
type Exec struct {
	Dir     string
	Command string
	Logfile string
	Footer  Footer
	// EchoPID prints the shell's pid before replacing the shell with Command.
	EchoPID bool
}

// ExecAsync starts Command detached from the session and prints its pid.
type ExecAsync struct {
	Dir      string
	Command  string
	Logfile  string
	Truncate bool
}

// Copy writes stdin to Path.
type Copy struct {
	Path string
}

// Fetch prints the contents of Path.
type Fetch struct {
	Path         string
	AllowMissing bool
}

// Kill sends Signal to every pid in PIDs.
type Kill struct {
	PIDs   []int
	Signal string
	// Children also signals the direct children of each pid once the pids
	// themselves were signalled. A runner only handles a signal after its
	// foreground command returns.
	Children bool
}

// ProcessList prints "pid ppid args" for every process whose arguments contain
// Marker as a fixed string. A marker may be a path prefix.
type ProcessList struct {
	Marker string
}

func (MakeDir) spec()     {}
func (Sync) spec()        {}
func (Exec) spec()        {}
func (ExecAsync) spec()   {}
func (Copy) spec()        {}
func (Fetch) spec()       {}
func (Kill) spec()        {}
func (ProcessList) spec() {}

func invalid(field string, err error) error {
	return rexerrors.Wrap(err, rexerrors.ErrCodeInvalidArgument, "invalid "+field)
}

func (m MakeDir) Render() (string, error) {
	if len(m.Paths) == 0 {
		return "", rexerrors.InvalidArgument("mkdir requires at least one path")
	}
	parts := []string{"mkdir", "-p"}
	for _, p := range m.Paths {
		if err := validate("path", p); err != nil {
			return "", invalid("path", err)
		}
		parts = append(parts, Quote(p))
	}
	return strings.Join(parts, " "), nil
}

func (s Sync) Render() (string, error) {
	if err := validate("path", s.Dir); err != nil {
		return "", invalid("sync dir", err)
	}
	d := Quote(s.Dir)
	return "mkdir -p " + d + " && tar -xf - -C " + d, nil
}

func (e Exec) Render() (string, error) {
	if strings.TrimSpace(e.Command) == "" {
		return "", rexerrors.InvalidArgument("exec requires a command")
	}
	if e.EchoPID && e.Footer == FooterBackground {
		return "", rexerrors.InvalidArgument("exec cannot report a pid for a backgrounded command")
	}
	body, err := ApplyFooter(e.Command, e.Logfile, e.Footer)
	if err != nil {
		return "", err
	}
	if e.EchoPID {
		body = "echo $$; exec " + body
	}
	return inDir(e.Dir, body)
}

func (e ExecAsync) Render() (string, error) {
	if strings.TrimSpace(e.Command) == "" {
		return "", rexerrors.InvalidArgument("async exec requires a command")
	}
	sink := "/dev/null"
	var prefix string
	if e.Logfile != "" {
		if err := validate("path", e.Logfile); err != nil {
			return "", invalid("logfile", err)
		}
		sink = e.Logfile
		if e.Truncate {
			prefix = ": > " + Quote(e.Logfile) + " && "
		}
	} else if e.Truncate {
		return "", rexerrors.InvalidArgument("truncate requires a logfile")
	}
	body := prefix + "{ nohup " + Redirect(e.Command, sink) + " & echo $!; }"
	return inDir(e.Dir, body)
}

func (c Copy) Render() (string, error) {
	if err := validate("path", c.Path); err != nil {
		return "", invalid("copy path", err)
	}
	return "cat > " + Quote(c.Path), nil
}

func (f Fetch) Render() (string, error) {
	if err := validate("path", f.Path); err != nil {
		return "", invalid("fetch path", err)
	}
	if f.AllowMissing {
		p := Quote(f.Path)
		return "if [ -f " + p + " ]; then cat " + p + "; fi", nil
	}
	return "cat " + Quote(f.Path), nil
}

func (k Kill) Render() (string, error) {
	if len(k.PIDs) == 0 {
		return "", rexerrors.InvalidArgument("kill requires at least one pid")
	}
	sig := k.Signal
	if sig == "" {
		sig = "TERM"
	}
	sig = strings.TrimPrefix(sig, "SIG")
	if err := validate("signal", sig); err != nil {
		return "", invalid("signal", err)
	}
	parts := []string{"kill", "-" + sig}
	pids := make([]string, 0, len(k.PIDs))
	for _, pid := range k.PIDs {
		s := strconv.Itoa(pid)
		if err := validate("pid", s); err != nil {
			return "", invalid("pid", err)
		}
		pids = append(pids, s)
	}
	line := strings.Join(append(parts, pids...), " ")
	if k.Children {
		// pkill exits 1 when a pid has no children.
		line += " && { pkill -" + sig + " -P " + strings.Join(pids, ",") + " || true; }"
	}
	return line, nil
}

func (p ProcessList) Render() (string, error) {
	if err := validate("marker", p.Marker); err != nil {
		return "", invalid("marker", err)
	}
	// grep exits 1 on no match, which is an empty table rather than a failure.
	return "ps ax -o pid=,ppid=,args= | grep -F -e " + Quote(p.Marker) + " | grep -v grep || true", nil
}

func inDir(dir, body string) (string, error) {
	if dir == "" {
		return body, nil
	}
	if err := validate("path", dir); err != nil {
		return "", invalid("dir", err)
	}
	return "cd " + Quote(dir) + " && { " + body + "; }", nil
}

// RemoteHome prints the login directory of the remote user.
func RemoteHome() string { return "cd && pwd" }

// Ping is a trivial command used as a liveness check.
func Ping() string { return "exit 0" }

// Shell starts a login shell in dir.
func Shell(dir string) (string, error) {
	return inDir(dir, "exec ${SHELL:-bash} --login")
}

// PipInstall installs Python packages for the remote user.
func PipInstall(packages []string) (string, error) {
	if len(packages) == 0 {
		return "", rexerrors.InvalidArgument("pip install requires at least one package")
	}
	parts := []string{"python3", "-m", "pip", "install", "--user"}
	for _, p := range packages {
		if err := validate("package", p); err != nil {
			return "", invalid("package", err)
		}
		parts = append(parts, Quote(p))
	}
	return strings.Join(parts, " "), nil
}

// Wget downloads urls into the current directory, resuming partial files.
func Wget(urls []string) (string, error) {
	if len(urls) == 0 {
		return "", rexerrors.InvalidArgument("download requires at least one url")
	}
	parts := []string{"wget", "-c"}
	for _, u := range urls {
		if err := validate("url", u); err != nil {
			return "", invalid("url", err)
		}
		parts = append(parts, Quote(u))
	}
	return strings.Join(parts, " "), nil
}

// Jupyter serves a token-less notebook for the current directory on port.
func Jupyter(port int) (string, error) {
	if port < 1 || port > 65535 {
		return "", rexerrors.InvalidArgument(fmt.Sprintf("port out of range: %d", port))
	}
	return "jupyter-notebook --no-browser --port=" + strconv.Itoa(port) + " --NotebookApp.token='' .", nil
}

// Trap directives placed at the top of every runner script.
const (
	TrapExitOnSignal = `trap "exit" INT TERM`
	TrapKillGroup    = `trap "kill 0" EXIT`
	Wait             = "wait"
)

// Cd changes into dir.
func Cd(dir string) (string, error) {
	if err := validate("path", dir); err != nil {
		return "", invalid("dir", err)
	}
	return "cd " + Quote(dir), nil
}

// RunScript runs a script file with bash.
func RunScript(path string) (string, error) {
	if err := validate("path", path); err != nil {
		return "", invalid("script path", err)
	}
	return "bash " + Quote(path), nil
}
