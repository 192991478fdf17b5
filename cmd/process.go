package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/grovetools/rex/cli"
	"github.com/grovetools/rex/errors"
	"github.com/grovetools/rex/pkg/registry"
	"github.com/grovetools/rex/pkg/session"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ps"},
		Short:   "List tracked processes",
		Long: `List the processes this session launched. Without --force the stored list is
printed and may be stale. With --force the remote process table is read
first: processes that ended are dropped and unknown runners are added as
zombie/spawn. Kill indexes refer to the order printed here.

Examples:
  rex list
  rex list --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := attach(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			force, _ := cmd.Flags().GetBool("force")
			procs, err := s.List(cmd.Context(), force)
			if err != nil {
				return err
			}
			return printProcesses(cmd, procs)
		},
	}
	cmd.Flags().Bool("force", false, "Reconcile against the remote process table")
	return cmd
}

func newKillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Signal tracked processes",
		Long: `Signal the process at --idx in the listing, or every tracked process for
index 0. Without --idx the listing is printed and the index is asked for.
With --force the listing is reconciled first, as in 'rex list --force'.
Killed processes leave the list on the next forced listing.

Examples:
  rex kill
  rex kill --idx 2
  rex kill --idx 0 --force --signal KILL`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			opts := e.options()
			if sig, _ := cmd.Flags().GetString("signal"); sig != "" {
				opts.KillSignal = sig
			}
			s, err := session.Attach(cmd.Context(), e.root, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			force, _ := cmd.Flags().GetBool("force")
			idx, _ := cmd.Flags().GetInt("idx")
			if !cmd.Flags().Changed("idx") {
				if jsonOutput(cmd) {
					return errors.InvalidArgument("--idx is required with --json")
				}
				procs, err := s.List(ctx, force)
				if err != nil {
					return err
				}
				if len(procs) == 0 {
					return printKilled(cmd, nil)
				}
				if idx, err = askIndex(cmd, procs); err != nil {
					return err
				}
				// The listing just shown is the one the index refers to.
				force = false
			}
			killed, err := s.Kill(ctx, idx, force)
			if err != nil {
				return err
			}
			return printKilled(cmd, killed)
		},
	}
	cmd.Flags().IntP("idx", "i", 0, "1-based index from 'rex list', 0 for all (asked for when omitted)")
	cmd.Flags().Bool("force", false, "Reconcile against the remote process table first")
	cmd.Flags().StringP("signal", "s", "", "Signal to send (default: kill_signal from config)")
	return cmd
}

// askIndex prints procs and reads the index to kill.
func askIndex(cmd *cobra.Command, procs []registry.TrackedProcess) (int, error) {
	cli.RenderProcesses(cmd.OutOrStdout(), procs)
	answer, err := cli.ReadLine(cmd.InOrStdin(), cmd.ErrOrStderr(),
		fmt.Sprintf("Index to kill (1-%d, 0 for all): ", len(procs)))
	if err != nil {
		return 0, err
	}
	if answer == "" {
		return 0, errors.InvalidArgument("no index given")
	}
	idx, err := strconv.Atoi(answer)
	if err != nil {
		return 0, errors.InvalidArgument(fmt.Sprintf("not an index: %q", answer))
	}
	return idx, nil
}

func newPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Signal every runner found on the host",
		Long: `Reconcile against the remote process table and signal every runner in it,
including zombie/spawn entries that may belong to other sessions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := attach(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			killed, err := s.Purge(cmd.Context())
			if err != nil {
				return err
			}
			return printKilled(cmd, killed)
		},
	}
}

func printProcesses(cmd *cobra.Command, procs []registry.TrackedProcess) error {
	if jsonOutput(cmd) {
		if procs == nil {
			procs = []registry.TrackedProcess{}
		}
		return cli.PrintJSON(cmd.OutOrStdout(), procs)
	}
	cli.RenderProcesses(cmd.OutOrStdout(), procs)
	return nil
}

func printKilled(cmd *cobra.Command, killed []registry.TrackedProcess) error {
	if jsonOutput(cmd) {
		if killed == nil {
			killed = []registry.TrackedProcess{}
		}
		return cli.PrintJSON(cmd.OutOrStdout(), killed)
	}
	if len(killed) == 0 {
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, cli.NewTheme(w).Muted.Render("Nothing to kill."))
		return nil
	}
	for _, p := range killed {
		cli.Success(cmd, "Signalled %s (pid %d)", p.Name, p.PID)
	}
	return nil
}
