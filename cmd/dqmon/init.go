package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/dqmon/internal/config"
)

//go:embed templates/dqmon.yaml
var configTemplate embed.FS

// configFileName is the default configuration file name.
const configFileName = config.DefaultConfigFile

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new dqmon configuration file",
		Long: `Init writes a commented dqmon.yaml to the current directory.

The generated file includes:
- Default quality thresholds, anomaly settings and rate limits
- Commented examples of validity rules and data sources
- The optional Slack, Kafka, MQTT and MinIO sections

Examples:
  # Create dqmon.yaml in the current directory
  dqmon init

  # Create the per-user configuration
  dqmon init --user

  # Create the file at a specific path, overwriting it
  dqmon init -o config/dqmon.yaml -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")
	cmd.Flags().Bool("user", false,
		"Write to the XDG config directory instead of --output")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	user, err := cmd.Flags().GetBool("user")
	if err != nil {
		return err
	}
	if user {
		outputPath = filepath.Join(config.XDGConfigDir(), config.UserConfigFile)
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/dqmon.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  - Add your datasets under monitoring.data_sources")
	fmt.Fprintln(out, "  - Export DQMON_SLACK_WEBHOOK_URL and set slack.enabled to true")
	fmt.Fprintln(out, "  - Run 'dqmon config validate'")

	return nil
}
