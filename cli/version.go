package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovetools/rex/version"
)

// SetVersionTemplate sets the --version output of cmd.
func SetVersionTemplate(cmd *cobra.Command) {
	info := version.GetInfo()
	cmd.Version = info.Version
	cmd.SetVersionTemplate(fmt.Sprintf(`{{.Name}} {{.Version}}
  Commit:    %s
  Built:     %s
  Platform:  %s
`, info.Commit, info.BuildDate, info.Platform))
}

// NewVersionCommand creates the version command.
func NewVersionCommand(componentName string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: fmt.Sprintf("Print the version of %s", componentName),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.GetInfo()
			if GetOptions(cmd).JSONOutput {
				return PrintJSON(cmd.OutOrStdout(), info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n%s\n", componentName, info.Version, info.String())
			return nil
		},
	}
}
