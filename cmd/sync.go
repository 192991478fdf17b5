package cmd

import (
	"github.com/spf13/cobra"

	"github.com/grovetools/rex/cli"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy the declared project files to the host",
		Long: `Copy the declared files (Python sources plus the bundle include patterns,
minus the exclude patterns) to the remote project directory. Files on the
host that are no longer declared are left in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, e, err := attach(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			b, err := e.bundle()
			if err != nil {
				return err
			}
			update, _ := cmd.Flags().GetBool("update")
			n, err := s.Sync(cmd.Context(), b, update)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return cli.PrintJSON(cmd.OutOrStdout(), map[string]int{"synced": n})
			}
			cli.Success(cmd, "Synced %d files to %s", n, s.Workspace.RemoteDir)
			return nil
		},
	}
	cmd.Flags().BoolP("update", "u", false, "Regenerate the requirements file first")
	return cmd
}

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the project requirements on the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, e, err := attach(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			b, err := e.bundle()
			if err != nil {
				return err
			}
			update, _ := cmd.Flags().GetBool("update")
			return s.Install(cmd.Context(), b, update, installOutput(cmd))
		},
	}
	cmd.Flags().BoolP("update", "u", false, "Regenerate the requirements file first")
	return cmd
}
