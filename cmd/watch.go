package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/grovetools/rex/cli"
	"github.com/grovetools/rex/pkg/session"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync declared files whenever they change",
		Long: `Sync the declared files once, then watch the project directory and sync
again after each burst of changes to a declared file. Stop with Ctrl-C.`,
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

			ctx := cmd.Context()
			n, err := s.Sync(ctx, b, false)
			if err != nil {
				return err
			}
			cli.Success(cmd, "Synced %d files, watching %s", n, e.root)

			debounce, _ := cmd.Flags().GetDuration("debounce")
			w, err := s.NewWatcher(b, debounce)
			if err != nil {
				return err
			}
			w.OnSync = func(r session.SyncResult) {
				if r.Err != nil {
					(&cli.ErrorHandler{Out: cmd.ErrOrStderr()}).Handle(r.Err)
					return
				}
				cli.Success(cmd, "Synced %d files (%s)", r.Files, strings.Join(r.Changed, ", "))
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().Duration("debounce", session.DefaultDebounce, "Quiet period before syncing")
	return cmd
}
