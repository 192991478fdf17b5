package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print or follow the job log",
		Long: `Fetch the remote job log and print it, or with --loop keep fetching every N
seconds and print what is new until the log ends with EOF. Interrupting
only stops polling; the job keeps running.

Examples:
  rex log
  rex log --loop 5
  rex log --loop 2 --filter loss`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, e, err := attach(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			keyword, _ := cmd.Flags().GetString("filter")
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if !cmd.Flags().Changed("loop") {
				content, err := s.FetchLog(ctx, keyword)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(out, content)
				return err
			}

			if s.Credential.IsLocal() {
				return s.FollowLocal(ctx, keyword, out)
			}
			seconds, _ := cmd.Flags().GetInt("loop")
			if seconds <= 0 {
				seconds = e.cfg.PollInterval
			}
			return s.FollowLog(ctx, time.Duration(seconds)*time.Second, keyword, out)
		},
	}
	cmd.Flags().IntP("loop", "l", 0, "Follow the log, fetching every N seconds (0: poll_interval)")
	cmd.Flags().StringP("filter", "f", "", "Only print lines containing this keyword")
	return cmd
}
