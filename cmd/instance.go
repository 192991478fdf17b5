package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovetools/rex/cli"
	"github.com/grovetools/rex/pkg/instance"
)

func newInstanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "instance",
		Aliases: []string{"instances"},
		Short:   "Manage the hosts jobs run on",
	}
	cmd.AddCommand(newInstanceAddCmd(), newInstanceListCmd())
	return cmd
}

func newInstanceAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <user@host>",
		Short: "Add a host after checking that it answers",
		Long: `Add a host to the configuration. The password is prompted for unless a
key is given. The host must answer a trivial command before it is saved.

Examples:
  rex instance add alice@gpu01
  rex instance add alice@gpu02 --key ~/.ssh/id_ed25519 --port 2222`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			cred, err := instance.Parse(args[0])
			if err != nil {
				return err
			}
			cred.Port, _ = cmd.Flags().GetInt("port")
			cred.KeyPath, _ = cmd.Flags().GetString("key")
			cred.InsecureHostKey, _ = cmd.Flags().GetBool("insecure-host-key")
			if cred.KeyPath == "" && !cred.IsLocal() {
				cred.Password, err = cli.ReadPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: ")
				if err != nil {
					return err
				}
			}

			if err := e.store().Add(cmd.Context(), cred); err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return cli.PrintJSON(cmd.OutOrStdout(), cred)
			}
			cli.Success(cmd, "Added %s as instance %d", cred.String(), len(e.cfg.Instances)-1)
			return nil
		},
	}
	cmd.Flags().Int("port", 0, "SSH port (default 22)")
	cmd.Flags().String("key", "", "Private key file instead of a password")
	cmd.Flags().Bool("insecure-host-key", false, "Skip known_hosts verification")
	return cmd
}

func newInstanceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			creds := e.store().List()
			if jsonOutput(cmd) {
				return cli.PrintJSON(cmd.OutOrStdout(), creds)
			}
			w := cmd.OutOrStdout()
			t := cli.NewTheme(w)
			if len(creds) == 0 {
				fmt.Fprintln(w, t.Muted.Render("No instances configured. Run 'rex instance add user@host'."))
				return nil
			}
			fmt.Fprintln(w, cli.InstanceTable(t, creds, e.cfg.DefaultInstance))
			return nil
		},
	}
}
