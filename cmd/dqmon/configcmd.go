package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/dqmon/internal/config"
)

// NewConfigCmd creates the config command.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show, validate and edit the configuration",
		Long: `Config works on the effective configuration: defaults, then the
configuration file, then DQMON_* environment variables
(e.g. DQMON_SLACK_WEBHOOK_URL, DQMON_RATE_LIMIT_MAX_ALERTS_PER_HOUR).

Examples:
  dqmon config show
  dqmon config validate
  dqmon config set rate_limit.max_alerts_per_hour 20
  dqmon config set channels.critical "#data-oncall"
  dqmon config keys`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigKeysCmd())
	cmd.AddCommand(newConfigPathCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(getConfigFlag(cmd))
			if err != nil {
				return err
			}
			data, err := cfg.Masked().YAML()
			if err != nil {
				return err
			}
			if cfg.FilePath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", cfg.FilePath)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "# defaults (no configuration file found)")
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			source := cfg.FilePath
			if source == "" {
				source = "defaults"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %s\n", source)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one dotted key in the configuration file",
		Long: `Set edits one key of the configuration file in place. The value is read
as YAML, so 10 is a number, true a boolean and "[a, b]" a list. The file
must still be valid afterwards.

The file is the one given by --config, else ./dqmon.yaml, else
$XDG_CONFIG_HOME/dqmon/config.yaml. Run 'dqmon init' first if none exists.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.FindConfigFile(getConfigFlag(cmd))
			if path == "" {
				return fmt.Errorf("%w (run 'dqmon init' to create one)", config.ErrConfigNotFound)
			}
			if err := config.Set(path, args[0], args[1]); err != nil {
				if errors.Is(err, config.ErrUnknownKey) {
					return fmt.Errorf("%w (see 'dqmon config keys')", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], path)
			return nil
		},
	}
}

func newConfigKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the configuration keys accepted by set",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, k := range config.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file in use and the data directories",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			file := config.FindConfigFile(getConfigFlag(cmd))
			if file == "" {
				file = "(none)"
			}
			fmt.Fprintf(out, "config:  %s\n", file)
			fmt.Fprintf(out, "user:    %s\n", filepath.Join(config.XDGConfigDir(), config.UserConfigFile))
			fmt.Fprintf(out, "data:    %s\n", config.XDGDataDir())
			fmt.Fprintf(out, "reports: %s\n", config.XDGReportDir())
		},
	}
}
