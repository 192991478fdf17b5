package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/rex/command"
	"github.com/grovetools/rex/pkg/registry"
	"github.com/grovetools/rex/pkg/transport"
)

// Bundle supplies the files and packages a project needs remotely.
type Bundle interface {
	DeclaredFiles() ([]string, error)
	Requirements() ([]string, error)
	// Refresh regenerates the requirements list.
	Refresh(ctx context.Context) error
	// Matches reports whether a root-relative path is a declared file.
	Matches(rel string) bool
}

// Sync copies the declared files into the remote project directory and
// returns how many were sent. With update the requirements are regenerated
// first; a failed regeneration is logged and the existing list kept.
func (s *Session) Sync(ctx context.Context, b Bundle, update bool) (int, error) {
	if update {
		if err := b.Refresh(ctx); err != nil {
			s.logger().WithError(err).Warn("could not refresh requirements")
		}
	}
	files, err := b.DeclaredFiles()
	if err != nil {
		return 0, err
	}
	if err := transport.SyncFiles(ctx, s.t, s.Workspace.LocalRoot, files, s.Workspace.RemoteDir); err != nil {
		return 0, err
	}
	return len(files), nil
}

// Install installs the bundle's requirements for the remote user.
func (s *Session) Install(ctx context.Context, b Bundle, update bool, out io.Writer) error {
	if update {
		if err := b.Refresh(ctx); err != nil {
			s.logger().WithError(err).Warn("could not refresh requirements")
		}
	}
	pkgs, err := b.Requirements()
	if err != nil {
		return err
	}
	return s.InstallPackages(ctx, pkgs, out)
}

// InstallPackages installs pkgs with pip. An empty list does nothing.
func (s *Session) InstallPackages(ctx context.Context, pkgs []string, out io.Writer) error {
	if len(pkgs) == 0 {
		s.logger().Info("no requirements to install")
		return nil
	}
	pip, err := command.PipInstall(pkgs)
	if err != nil {
		return err
	}
	line, err := command.Exec{Dir: s.Workspace.RemoteDir, Command: pip + " 2>&1"}.Render()
	if err != nil {
		return err
	}
	s.logger().WithField("packages", len(pkgs)).Info("installing requirements")
	_, err = transport.RunLine(ctx, s.t, transport.Request{Command: line, Output: out})
	return err
}

// Push copies a local file to the host. An empty remote path places it in
// the data directory; a relative one is resolved against the project
// directory. It returns the remote path written.
func (s *Session) Push(ctx context.Context, local, remote string) (string, error) {
	if remote == "" {
		remote = path.Join(s.Workspace.RemoteDataDir, filepath.Base(local))
	}
	remote = s.Workspace.RemotePath(remote)

	f, err := os.Open(local)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := transport.Run(ctx, s.t, command.MakeDir{Paths: []string{path.Dir(remote)}}); err != nil {
		return "", err
	}
	if err := transport.Upload(ctx, s.t, remote, f); err != nil {
		return "", err
	}
	s.logger().WithFields(logrus.Fields{"local": local, "remote": remote}).Info("pushed")
	return remote, nil
}

// Pull copies a remote file, resolved against the project directory, to
// local. An empty local path places it in the project root. It returns the
// local path written.
func (s *Session) Pull(ctx context.Context, remote, local string) (string, error) {
	remote = s.Workspace.RemotePath(remote)
	if local == "" {
		local = filepath.Join(s.Workspace.LocalRoot, path.Base(remote))
	}

	tmp, err := os.CreateTemp(filepath.Dir(local), ".rex-pull-*")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := transport.Download(ctx, s.t, remote, tmp, false); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		return "", fmt.Errorf("move %s into place: %w", local, err)
	}
	s.logger().WithFields(logrus.Fields{"local": local, "remote": remote}).Info("pulled")
	return local, nil
}

// Download fetches urls into the remote data directory with wget, resuming
// partial files. Output goes to the data log. An asynchronous download is
// launched and tracked like any other job; a synchronous one returns the
// zero TrackedProcess.
func (s *Session) Download(ctx context.Context, urls []string, async bool) (registry.TrackedProcess, error) {
	wget, err := command.Wget(urls)
	if err != nil {
		return registry.TrackedProcess{}, err
	}
	logfile := s.Workspace.DataLogfile()
	if async {
		return s.launch(ctx, "data", s.Workspace.RemoteDataDir, logfile, []string{wget}, true, nil)
	}
	_, err = transport.Run(ctx, s.t, command.Exec{
		Dir:     s.Workspace.RemoteDataDir,
		Command: wget,
		Logfile: logfile,
		Footer:  command.FooterBlocking,
	})
	return registry.TrackedProcess{}, err
}

// Shell opens an interactive login shell in the remote project directory.
func (s *Session) Shell(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) error {
	line, err := command.Shell(s.Workspace.RemoteDir)
	if err != nil {
		return err
	}
	return s.t.Interactive(ctx, line, stdin, stdout, stderr)
}
