// Package cmd holds the rex command line.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/grovetools/rex/cli"
)

// NewRootCmd builds the rex command tree.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand("rex", "Run and track jobs on remote hosts")
	root.Long = `rex syncs a local project to a remote host, launches jobs there and keeps
track of them between invocations. Each invocation reattaches to the session
stored under .rex/ in the project directory.

Examples:
  rex instance add alice@gpu01
  rex init
  rex async "python3 train.py --epochs 10"
  rex log --loop 5 --filter loss
  rex list --force
  rex kill --idx 1`
	root.PersistentFlags().StringP("dir", "C", "", "Project directory (default: current directory)")
	cli.SetVersionTemplate(root)

	root.AddCommand(
		newInitCmd(),
		newConfCmd(),
		newConfigCmd(),
		newInstanceCmd(),
		newSyncCmd(),
		newInstallCmd(),
		newRunCmd(),
		newAsyncCmd(),
		newLogCmd(),
		newListCmd(),
		newKillCmd(),
		newPurgeCmd(),
		newShellCmd(),
		newPushCmd(),
		newPullCmd(),
		newDataCmd(),
		newWatchCmd(),
		newNotebookCmd(),
		cli.NewVersionCommand("rex"),
	)
	return root
}
