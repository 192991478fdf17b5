// Package bundle decides which local files belong to a project and which
// Python packages it needs on the remote host.
package bundle

import (
	"bufio"
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/moby/patternmatcher"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/rex/command"
	"github.com/grovetools/rex/config"
	rexerrors "github.com/grovetools/rex/errors"
	"github.com/grovetools/rex/logging"
)

var log = logging.NewLogger("bundle")

// DefaultPattern selects the files synced when no include pattern matches.
const DefaultPattern = "**/*.py"

// skipDirs are never walked.
var skipDirs = map[string]bool{
	".git":        true,
	".rex":        true,
	"__pycache__": true,
	".venv":       true,
	"venv":        true,
}

// Bundle is the declared file set of a local project.
type Bundle struct {
	Root string
	cfg  config.BundleConfig

	include *patternmatcher.PatternMatcher
	exclude *patternmatcher.PatternMatcher

	// Executor runs the requirements generator; nil means command.RealExecutor.
	Executor command.Executor
}

// New returns the bundle rooted at root.
func New(root string, cfg config.BundleConfig) (*Bundle, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	include, err := patternmatcher.New(append([]string{DefaultPattern}, cfg.Include...))
	if err != nil {
		return nil, rexerrors.ConfigInvalid("bundle.include: " + err.Error())
	}
	exclude, err := patternmatcher.New(cfg.Exclude)
	if err != nil {
		return nil, rexerrors.ConfigInvalid("bundle.exclude: " + err.Error())
	}
	if cfg.Requirements == "" {
		cfg.Requirements = config.DefaultRequirements
	}
	return &Bundle{Root: abs, cfg: cfg, include: include, exclude: exclude}, nil
}

// Name is the last path component of the project root.
func (b *Bundle) Name() string {
	return filepath.Base(b.Root)
}

// Matches reports whether rel, a slash separated path relative to Root,
// is part of the bundle.
func (b *Bundle) Matches(rel string) bool {
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == "." || strings.HasPrefix(rel, "../") {
		return false
	}
	for _, part := range strings.Split(rel, "/")[:strings.Count(rel, "/")] {
		if skipDirs[part] {
			return false
		}
	}
	in, err := b.include.MatchesOrParentMatches(rel)
	if err != nil || !in {
		return false
	}
	out, err := b.exclude.MatchesOrParentMatches(rel)
	if err != nil {
		return false
	}
	return !out
}

// DeclaredFiles returns the sorted relative paths of every regular file in
// the bundle.
func (b *Bundle) DeclaredFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(b.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != b.Root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(b.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if b.Matches(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, rexerrors.Wrap(err, rexerrors.ErrCodeInternal, "failed to walk project").
			WithDetail("root", b.Root)
	}
	sort.Strings(files)
	log.WithFields(logrus.Fields{"root": b.Root, "files": len(files)}).Debug("resolved declared files")
	return files, nil
}

// RequirementsPath is the absolute path of the requirements file.
func (b *Bundle) RequirementsPath() string {
	if filepath.IsAbs(b.cfg.Requirements) {
		return b.cfg.Requirements
	}
	return filepath.Join(b.Root, b.cfg.Requirements)
}

// Requirements returns the package specifiers listed in the requirements
// file. A missing file yields no packages.
func (b *Bundle) Requirements() ([]string, error) {
	data, err := os.ReadFile(b.RequirementsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return ParseRequirements(data), nil
}

// ParseRequirements extracts package specifiers, dropping blank lines,
// comments and pip options.
func ParseRequirements(data []byte) []string {
	var reqs []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		reqs = append(reqs, line)
	}
	return reqs
}

// Refresh regenerates the requirements file from the project's imports
// with pipreqs.
func (b *Bundle) Refresh(ctx context.Context) error {
	exe := b.Executor
	if exe == nil {
		exe = &command.RealExecutor{}
	}
	cmd := exe.CommandContext(ctx, "pipreqs", ".", "--force", "--savepath", b.RequirementsPath())
	cmd.Dir = b.Root
	out, err := cmd.CombinedOutput()
	if err != nil {
		return rexerrors.CommandFailed("pipreqs", err).WithDetail("output", strings.TrimSpace(string(out)))
	}
	log.WithField("path", b.RequirementsPath()).Info("requirements refreshed")
	return nil
}
