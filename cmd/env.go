package cmd

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/rex/cli"
	"github.com/grovetools/rex/config"
	"github.com/grovetools/rex/pkg/bundle"
	"github.com/grovetools/rex/pkg/instance"
	"github.com/grovetools/rex/pkg/session"
	"github.com/grovetools/rex/pkg/transport"
)

// dialTransport replaces instance.Dial when set.
var dialTransport func(instance.Credential) transport.Transport

// stateLockTimeout bounds waiting for another invocation on the same project.
const stateLockTimeout = 30 * time.Second

// env is what every command resolves before acting.
type env struct {
	cfg     *config.Config
	cfgPath string
	root    string
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg, path, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	root, _ := cmd.Flags().GetString("dir")
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	if root, err = filepath.Abs(root); err != nil {
		return nil, err
	}
	return &env{cfg: cfg, cfgPath: path, root: root}, nil
}

func (e *env) options() session.Options {
	opts := session.OptionsFromConfig(e.cfg)
	opts.LockTimeout = stateLockTimeout
	opts.Dial = dialTransport
	return opts
}

func (e *env) store() *instance.Store {
	s := instance.NewStore(e.cfg, e.cfgPath)
	if dialTransport != nil {
		s.Dial = dialTransport
	}
	return s
}

func (e *env) bundle() (*bundle.Bundle, error) {
	return bundle.New(e.root, e.cfg.Bundle)
}

// attach resumes the session of the project directory.
func attach(cmd *cobra.Command) (*session.Session, *env, error) {
	e, err := loadEnv(cmd)
	if err != nil {
		return nil, nil, err
	}
	s, err := session.Attach(cmd.Context(), e.root, e.options())
	if err != nil {
		return nil, nil, err
	}
	return s, e, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	return cli.GetOptions(cmd).JSONOutput
}
