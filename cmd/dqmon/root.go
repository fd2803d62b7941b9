package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for dqmon.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dqmon",
		Short: "Data quality and anomaly monitoring for tabular datasets",
		Long: `dqmon scores tabular datasets on completeness, uniqueness, validity and
consistency, flags anomalous rows with z-score, IQR and isolation forest
detectors, and compares a dataset against a reference for drift.

Alerts are routed by severity and rate limited per alert, then delivered
to Slack, Kafka or MQTT. Every run is stored as JSON artifacts in a local
directory or an S3-compatible bucket.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: ./dqmon.yaml or $XDG_CONFIG_HOME/dqmon/config.yaml)")

	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewDriftCmd())
	cmd.AddCommand(NewWatchCmd())
	cmd.AddCommand(NewReportCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
