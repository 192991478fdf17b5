package transport

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/rex/command"
	rexerrors "github.com/grovetools/rex/errors"
)

// SyncFiles copies files, given relative to localRoot, into remoteDir on the
// host, preserving relative paths. Only the named files are transferred.
func SyncFiles(ctx context.Context, t Transport, localRoot string, files []string, remoteDir string) error {
	line, err := command.Sync{Dir: remoteDir}.Render()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}

	pr, pw := io.Pipe()
	archived := make(chan error, 1)
	go func() {
		err := writeTar(pw, localRoot, files)
		pw.CloseWithError(err)
		archived <- err
	}()

	log.WithFields(logrus.Fields{"target": t.Target(), "files": len(files), "dir": remoteDir}).Info("syncing files")
	_, err = RunLine(ctx, t, Request{Command: line, Stdin: pr})
	// Unblocks the writer if the remote side stopped reading early.
	pr.Close()
	// A local failure explains the remote one, which only saw a truncated archive.
	if werr := <-archived; werr != nil && !errors.Is(werr, io.ErrClosedPipe) {
		return rexerrors.Wrap(werr, rexerrors.ErrCodeInvalidArgument, "cannot archive project files").
			WithDetail("root", localRoot)
	}
	return err
}

func writeTar(w io.Writer, root string, files []string) error {
	tw := tar.NewWriter(w)
	for _, rel := range files {
		if err := addFile(tw, root, rel); err != nil {
			return err
		}
	}
	return tw.Close()
}

func addFile(tw *tar.Writer, root, rel string) error {
	path := filepath.Join(root, rel)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", rel, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", rel)
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("tar header for %s: %w", rel, err)
	}
	hdr.Name = filepath.ToSlash(rel)
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header for %s: %w", rel, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("archive %s: %w", rel, err)
	}
	return nil
}
