package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grovetools/rex/cli"
	"github.com/grovetools/rex/config"
	"github.com/grovetools/rex/errors"
	"github.com/grovetools/rex/pkg/paths"
	"github.com/grovetools/rex/state"
)

func newConfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conf",
		Short: "Write a sample configuration file",
		Long: `Write a sample rex.yml (or rex.toml, by extension of --config) to the
configuration directory. An existing file is kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cli.ConfigPath(cmd)
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return errors.New(errors.ErrCodeInvalidArgument,
					fmt.Sprintf("%s already exists; use --force to overwrite", path)).WithDetail("path", path)
			}
			if err := config.Save(config.Sample(), path); err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return cli.PrintJSON(cmd.OutOrStdout(), map[string]string{"path": path})
			}
			cli.Success(cmd, "Wrote %s", path)
			return nil
		},
	}
	cmd.Flags().BoolP("force", "f", false, "Overwrite an existing configuration")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(newConfigSchemaCmd(), newConfigPathsCmd())
	return cmd
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

// PathsOutput lists the files rex reads and writes.
type PathsOutput struct {
	ConfigDir  string `json:"config_dir"`
	ConfigFile string `json:"config_file"`
	Project    string `json:"project"`
	StateFile  string `json:"state_file"`
}

func newConfigPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the configuration and session state locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			out := PathsOutput{
				ConfigDir:  paths.ConfigDir(),
				ConfigFile: e.cfgPath,
				Project:    e.root,
				StateFile:  state.NewStore(e.root).Path(),
			}
			if jsonOutput(cmd) {
				return cli.PrintJSON(cmd.OutOrStdout(), out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "config_dir:  %s\n", out.ConfigDir)
			fmt.Fprintf(w, "config_file: %s\n", out.ConfigFile)
			fmt.Fprintf(w, "project:     %s\n", out.Project)
			fmt.Fprintf(w, "state_file:  %s\n", out.StateFile)
			return nil
		},
	}
}
