package cmd

import (
	"github.com/spf13/cobra"

	"github.com/grovetools/rex/cli"
	"github.com/grovetools/rex/pkg/session"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <command>...",
		Short: "Run commands on the host and stream their output",
		Long: `Run each argument as one shell command, in order, in the remote project
directory. Output is streamed until the last command finishes. A failing
command does not fail rex; its output tells what happened. The declared project files are synced first
unless --no-sync is given.

Examples:
  rex run "python3 prepare.py" "ls data"
  rex run --no-sync "nvidia-smi"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return launch(cmd, args, false)
		},
	}
	addLaunchFlags(cmd)
	return cmd
}

func newAsyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "async <command>...",
		Short: "Launch commands in the background on the host",
		Long: `Launch the commands in the background and return at once. All but the last
command run concurrently; the log receives EOF once the last one finishes.
Follow the output with 'rex log --loop'. The declared project files are
synced first unless --no-sync is given.

Examples:
  rex async "python3 train.py --epochs 10"
  rex async --name eval "python3 eval.py a" "python3 eval.py b"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return launch(cmd, args, true)
		},
	}
	addLaunchFlags(cmd)
	return cmd
}

func addLaunchFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", session.DefaultJobName, "Name recorded for the job")
	cmd.Flags().Bool("no-sync", false, "Do not sync declared files before launching")
	cmd.Flags().BoolP("update", "u", false, "Regenerate the requirements file before syncing")
}

func launch(cmd *cobra.Command, commands []string, async bool) error {
	s, e, err := attach(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if noSync, _ := cmd.Flags().GetBool("no-sync"); !noSync {
		b, err := e.bundle()
		if err != nil {
			return err
		}
		update, _ := cmd.Flags().GetBool("update")
		n, err := s.Sync(cmd.Context(), b, update)
		if err != nil {
			return err
		}
		cli.GetLogger(cmd).WithField("files", n).Debug("synced before launch")
	}

	name, _ := cmd.Flags().GetString("name")
	cli.GetLogger(cmd).WithFields(map[string]interface{}{
		"name":     name,
		"commands": len(commands),
		"async":    async,
	}).Debug("launching")
	out := cmd.OutOrStdout()
	if async || jsonOutput(cmd) {
		out = nil
	}
	p, err := s.Launch(cmd.Context(), name, commands, async, out)
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return cli.PrintJSON(cmd.OutOrStdout(), p)
	}
	if async {
		cli.Success(cmd, "Launched %s (pid %d), logging to %s", p.Name, p.PID, s.Workspace.RemoteLogfile)
	}
	return nil
}
