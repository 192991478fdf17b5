package cmd

import (
	"github.com/spf13/cobra"

	"github.com/grovetools/rex/cli"
)

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Open an interactive shell in the remote project directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := attach(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.Shell(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <file> [remote-path]",
		Short: "Copy one local file to the host",
		Long: `Copy a file to the host. A relative remote path is taken from the remote
project directory; without one the file goes to the data directory.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := attach(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			remote := ""
			if len(args) == 2 {
				remote = args[1]
			}
			dst, err := s.Push(cmd.Context(), args[0], remote)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return cli.PrintJSON(cmd.OutOrStdout(), map[string]string{"remote": dst})
			}
			cli.Success(cmd, "Pushed %s to %s", args[0], dst)
			return nil
		},
	}
}

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <remote-path> [local-path]",
		Short: "Copy one file from the host",
		Long: `Copy a file from the host. A relative remote path is taken from the remote
project directory; without a local path the file lands in the project root.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := attach(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			local := ""
			if len(args) == 2 {
				local = args[1]
			}
			dst, err := s.Pull(cmd.Context(), args[0], local)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return cli.PrintJSON(cmd.OutOrStdout(), map[string]string{"local": dst})
			}
			cli.Success(cmd, "Pulled %s to %s", args[0], dst)
			return nil
		},
	}
}

func newDataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data <url>...",
		Short: "Download files into the remote data directory",
		Long: `Download the URLs with wget into the remote data directory, resuming partial
files. Output goes to data/data.log. With --async the download is tracked
like any job.

Examples:
  rex data https://example.com/train.csv
  rex data --async https://example.com/a.tar https://example.com/b.tar`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := attach(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			async, _ := cmd.Flags().GetBool("async")
			p, err := s.Download(cmd.Context(), args, async)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return cli.PrintJSON(cmd.OutOrStdout(), p)
			}
			if async {
				cli.Success(cmd, "Downloading in the background (pid %d)", p.PID)
			} else {
				cli.Success(cmd, "Downloaded %d files to %s", len(args), s.Workspace.RemoteDataDir)
			}
			return nil
		},
	}
	cmd.Flags().Bool("async", false, "Download in the background")
	return cmd
}

