package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grovetools/rex/config"
	"github.com/grovetools/rex/errors"
	"github.com/grovetools/rex/logging"
)

// CommandOptions holds common options for rex commands
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
	JSONOutput bool
}

// NewStandardCommand creates a root command with the standard rex flags.
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if GetOptions(cmd).Verbose {
				logging.SetVerbose()
			}
		},
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to rex.yml config file")

	cmd.SetHelpFunc(styledHelpFunc)
	return cmd
}

// GetLogger returns the logger used by command handlers.
func GetLogger(cmd *cobra.Command) *logrus.Entry {
	return logging.NewLogger("cli").WithField("command", cmd.Name())
}

// GetOptions extracts common options from a command
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
	}
}

// ConfigPath returns the --config flag, or the default config location.
func ConfigPath(cmd *cobra.Command) string {
	if p := GetOptions(cmd).ConfigFile; p != "" {
		return p
	}
	return config.DefaultPath()
}

// LoadConfig loads the configuration selected by the command flags. A missing
// file yields the defaults, so commands that only touch an existing session
// work without one.
func LoadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path := ConfigPath(cmd)
	cfg, err := config.Load(path)
	if errors.Is(err, errors.ErrCodeConfigNotFound) {
		cfg = &config.Config{}
		cfg.SetDefaults()
		return cfg, path, nil
	}
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Execute runs root with a context cancelled on interrupt and reports any
// error through the ErrorHandler. It returns the process exit code.
func Execute(root *cobra.Command) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ApplyStyledHelpRecursive(root)
	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}
	if cmd == nil {
		cmd = root
	}
	NewErrorHandler(GetOptions(cmd).Verbose).Handle(err)
	return 1
}
