package session

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/grovetools/rex/command"
	rexerrors "github.com/grovetools/rex/errors"
	"github.com/grovetools/rex/state"
)

// DataDirName is the subdirectory of the remote project that receives downloads.
const DataDirName = "data"

// Workspace maps a local project directory to its remote directory tree.
type Workspace struct {
	LocalRoot string `yaml:"local_root" mapstructure:"local_root" json:"local_root"`
	Name      string `yaml:"name" mapstructure:"name" json:"name"`
	// RemoteRoot is the directory holding every project on the host.
	RemoteRoot    string `yaml:"remote_root" mapstructure:"remote_root" json:"remote_root"`
	RemoteDir     string `yaml:"remote_dir" mapstructure:"remote_dir" json:"remote_dir"`
	RemoteDataDir string `yaml:"remote_data_dir" mapstructure:"remote_data_dir" json:"remote_data_dir"`
	RemoteLogfile string `yaml:"remote_logfile" mapstructure:"remote_logfile" json:"remote_logfile"`
	LocalLogfile  string `yaml:"local_logfile" mapstructure:"local_logfile" json:"local_logfile"`
}

// NewWorkspace lays out the remote tree for the project at localRoot. home is
// the remote login directory and projects is the projects directory relative
// to it. An empty name defaults to the last component of localRoot.
func NewWorkspace(localRoot, name, home, projects string) (Workspace, error) {
	if name == "" {
		name = filepath.Base(localRoot)
	}
	if name == "" || name == "." || name == "/" || strings.ContainsAny(name, `/\`) {
		return Workspace{}, rexerrors.InvalidArgument("invalid project name: " + name)
	}
	if !path.IsAbs(home) {
		return Workspace{}, rexerrors.InvalidArgument("remote home must be absolute, got " + home)
	}

	root := path.Join(home, projects)
	dir := path.Join(root, name)
	ws := Workspace{
		LocalRoot:     localRoot,
		Name:          name,
		RemoteRoot:    root,
		RemoteDir:     dir,
		RemoteDataDir: path.Join(dir, DataDirName) + "/",
		RemoteLogfile: path.Join(dir, name+".log"),
		LocalLogfile:  filepath.Join(localRoot, state.DirName, name+".log"),
	}
	for _, p := range []string{ws.RemoteDir, ws.RemoteDataDir, ws.RemoteLogfile} {
		if err := command.NewSafeBuilder().Validate("path", p); err != nil {
			return Workspace{}, rexerrors.Wrap(err, rexerrors.ErrCodeInvalidArgument, "invalid remote path")
		}
	}
	return ws, nil
}

// DataLogfile is the log written by downloads into the data directory.
func (w Workspace) DataLogfile() string {
	return path.Join(w.RemoteDataDir, "data.log")
}

// RemotePath resolves p against the remote project directory.
func (w Workspace) RemotePath(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(w.RemoteDir, p)
}
