package cmd

import (
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/grovetools/rex/cli"
	"github.com/grovetools/rex/pkg/registry"
	"github.com/grovetools/rex/pkg/session"
)

type notebookResult struct {
	URL     string                  `json:"url"`
	Process registry.TrackedProcess `json:"process"`
}

func newNotebookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notebook",
		Short: "Serve a Jupyter notebook from the host on a local port",
		Long: `Start jupyter-notebook in the remote project directory as a tracked job
named jupyter:<port> and forward a local port to it. The notebook stays up
until Ctrl-C; the server is then killed.

Examples:
  rex notebook
  rex notebook --port 8830 --local-port 8888`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := attach(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			port, _ := cmd.Flags().GetInt("port")
			localPort, _ := cmd.Flags().GetInt("local-port")
			opts := session.NotebookOptions{
				ServerPort: port,
				ListenAddr: net.JoinHostPort("127.0.0.1", strconv.Itoa(localPort)),
				OnReady: func(url string, p registry.TrackedProcess) {
					if jsonOutput(cmd) {
						_ = cli.PrintJSON(cmd.OutOrStdout(), notebookResult{URL: url, Process: p})
						return
					}
					cli.Success(cmd, "Started %s (pid %d) on %s", p.Name, p.PID, s.Credential.String())
					cli.Success(cmd, "Open %s, Ctrl-C stops the server", url)
				},
			}
			if err := s.Notebook(cmd.Context(), opts); err != nil {
				return err
			}
			cli.Success(cmd, "Notebook server stopped")
			return nil
		},
	}
	cmd.Flags().Int("port", 0, "Server port on the host (default: random in 8824-8849)")
	cmd.Flags().Int("local-port", 0, "Local port to forward (default: any free port)")
	return cmd
}
