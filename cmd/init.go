package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/grovetools/rex/cli"
	"github.com/grovetools/rex/pkg/instance"
	"github.com/grovetools/rex/pkg/session"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [instance]",
		Short: "Create the session for this project on a host",
		Long: `Create the remote project directory, sync the declared files and install
the requirements. The instance is a configured index, a user@host login, or
"local" to run jobs on this machine. Without one the default instance is used.

Running init again on the same host keeps the tracked processes.

Examples:
  rex init
  rex init 1
  rex init alice@gpu01 --no-install`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInit,
	}
	cmd.Flags().String("name", "", "Remote project name (default: directory name)")
	cmd.Flags().Bool("no-sync", false, "Do not sync declared files")
	cmd.Flags().Bool("no-install", false, "Do not install requirements")
	cmd.Flags().Bool("update", false, "Regenerate the requirements file before installing")
	return cmd
}

type initResult struct {
	Instance  instance.Credential `json:"instance"`
	Workspace session.Workspace   `json:"workspace"`
	Synced    int                 `json:"synced"`
}

func runInit(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	ref := ""
	if len(args) == 1 {
		ref = args[0]
	}
	cred, err := resolveCredential(cmd, e, ref)
	if err != nil {
		return err
	}

	opts := e.options()
	opts.Name, _ = cmd.Flags().GetString("name")
	ctx := cmd.Context()
	s, err := session.Create(ctx, cred, e.root, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	cli.Success(cmd, "Session %s created at %s", s.Workspace.Name, cred.String()+":"+s.Workspace.RemoteDir)

	res := initResult{Instance: cred, Workspace: s.Workspace}
	noSync, _ := cmd.Flags().GetBool("no-sync")
	noInstall, _ := cmd.Flags().GetBool("no-install")
	update, _ := cmd.Flags().GetBool("update")
	if !noSync || !noInstall {
		b, err := e.bundle()
		if err != nil {
			return err
		}
		if !noSync {
			if res.Synced, err = s.Sync(ctx, b, update); err != nil {
				return err
			}
			cli.Success(cmd, "Synced %d files", res.Synced)
			update = false
		}
		if !noInstall {
			if err := s.Install(ctx, b, update, installOutput(cmd)); err != nil {
				return err
			}
		}
	}

	if jsonOutput(cmd) {
		return cli.PrintJSON(cmd.OutOrStdout(), res)
	}
	return nil
}

// resolveCredential maps an init argument to a credential. "local" selects
// this machine; an unconfigured remote login is asked for its password.
func resolveCredential(cmd *cobra.Command, e *env, ref string) (instance.Credential, error) {
	if ref == instance.LocalHost {
		user := os.Getenv("USER")
		if user == "" {
			user = "rex"
		}
		return instance.Credential{Username: user, Host: instance.LocalHost}, nil
	}
	cred, err := e.store().Resolve(ref)
	if err != nil {
		return instance.Credential{}, err
	}
	if cred.IsLocal() || cred.Password != "" || cred.KeyPath != "" {
		return cred, nil
	}
	cred.Password, err = cli.ReadPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), cred.String()+" password: ")
	return cred, err
}

// installOutput keeps streamed pip output off stdout when printing JSON.
func installOutput(cmd *cobra.Command) io.Writer {
	if jsonOutput(cmd) {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}
