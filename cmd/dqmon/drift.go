package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/dqmon/internal/anomaly"
	"github.com/nao1215/dqmon/internal/dataset"
	"github.com/nao1215/dqmon/internal/model"
)

// ErrDriftDetected is returned by drift --fail-on-drift when a column drifted.
var ErrDriftDetected = errors.New("drift detected")

// NewDriftCmd creates the drift command.
func NewDriftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift <current> <reference>",
		Short: "Compare a dataset against a reference for distribution drift",
		Long: `Drift compares every numeric column of the current dataset with the same
column of the reference dataset. A column's drift score is the mean of the
relative changes of its mean and standard deviation; the column drifts when
the score exceeds the threshold.

No alerts are sent and no artifacts are written. Use 'dqmon check
--reference' for a full monitoring run.

Examples:
  dqmon drift data/orders.csv data/orders_prev.csv
  dqmon drift data/orders.csv data/orders_prev.csv --threshold 0.2 -f json
  dqmon drift data/orders.csv data/orders_prev.csv --fail-on-drift`,
		Args: cobra.ExactArgs(2),
		RunE: runDriftCmd,
	}

	cmd.Flags().Float64("threshold", 0,
		"Drift score threshold (default: quality.drift_threshold from the configuration)")
	cmd.Flags().Bool("fail-on-drift", false,
		"Exit with an error when any column drifted")
	addOutputFlags(cmd)

	return cmd
}

// runDriftCmd executes the drift command.
func runDriftCmd(cmd *cobra.Command, args []string) error {
	threshold, err := cmd.Flags().GetFloat64("threshold")
	if err != nil {
		return err
	}
	failOnDrift, err := cmd.Flags().GetBool("fail-on-drift")
	if err != nil {
		return err
	}
	out, err := getOutputOptions(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if threshold <= 0 {
		threshold = cfg.Quality.DriftThreshold
	}

	logger, closeLog, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck

	current, err := dataset.LoadFile(args[0], dataset.LoadOptions{})
	if err != nil {
		return err
	}
	reference, err := dataset.LoadFile(args[1], dataset.LoadOptions{})
	if err != nil {
		return err
	}

	detector, err := anomaly.New(anomaly.WithLogger(logger))
	if err != nil {
		return err
	}

	rep := model.NewRunReport(args[0])
	rep.DatasetName = current.Name()
	rep.ReferenceSource = args[1]
	rep.Drift, err = detector.DetectDrift(current, reference, threshold)
	rep.FinishedAt = time.Now().UTC()
	if err != nil {
		return fmt.Errorf("drift detection failed: %w", err)
	}

	if err := writeReport(cmd, rep, out); err != nil {
		return err
	}
	if failOnDrift && rep.Drift.DriftDetected {
		return fmt.Errorf("%w: %d column(s) above %.2f", ErrDriftDetected, len(rep.Drift.ColumnsWithDrift), threshold)
	}
	return nil
}
