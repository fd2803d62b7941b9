package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/dqmon/internal/config"
	"github.com/nao1215/dqmon/internal/dataset"
	"github.com/nao1215/dqmon/internal/model"
	"github.com/nao1215/dqmon/internal/pipeline"
)

// ErrQualityGate is returned by check when the dataset is below the
// configured minimum completeness or uniqueness.
var ErrQualityGate = errors.New("quality gate failed")

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <dataset>",
		Short: "Run one monitoring pass over a dataset",
		Long: `Check loads a dataset (.csv, .tsv, .json or .jsonl) and runs the full
monitoring pipeline on it:

1. quality analysis (completeness, uniqueness, validity, consistency)
2. anomaly detection (z-score, IQR, isolation forest)
3. drift detection against --reference, when given
4. threshold alerts and the overall run alert, routed and rate limited
5. JSON artifacts in the configured report directory or bucket

The command fails when a step fails, or when overall completeness or
uniqueness is below quality.min_completeness / quality.min_uniqueness
(disable with --no-gate).

Examples:
  # Check a CSV file
  dqmon check data/orders.csv

  # Compare against last week's extract for drift
  dqmon check data/orders.csv --reference data/orders_prev.csv

  # Markdown report to a file, without storing artifacts
  dqmon check data/orders.csv -f markdown -o reports/orders.md --no-persist

  # Show the ten most anomalous rows
  dqmon check data/orders.csv --details 10`,
		Args: cobra.ExactArgs(1),
		RunE: runCheckCmd,
	}

	cmd.Flags().StringP("reference", "r", "",
		"Reference dataset to compare against for drift")
	cmd.Flags().StringP("name", "n", "",
		"Dataset name used in alerts and reports (default: file name)")
	cmd.Flags().Bool("no-persist", false,
		"Do not write report artifacts")
	cmd.Flags().Bool("no-gate", false,
		"Do not fail when completeness or uniqueness is below the configured minimum")
	cmd.Flags().DurationP("timeout", "t", 0,
		"Abort the run after this duration (0 means no limit)")
	cmd.Flags().Int("details", 0,
		"Print up to N anomalous rows after the report (text format only)")
	addOutputFlags(cmd)

	return cmd
}

// checkOptions are the check command flags.
type checkOptions struct {
	reference string
	name      string
	noPersist bool
	noGate    bool
	timeout   time.Duration
	details   int
	output    outputOptions
}

func getCheckOptions(cmd *cobra.Command) (checkOptions, error) {
	var (
		o   checkOptions
		err error
	)
	if o.reference, err = cmd.Flags().GetString("reference"); err != nil {
		return o, err
	}
	if o.name, err = cmd.Flags().GetString("name"); err != nil {
		return o, err
	}
	if o.noPersist, err = cmd.Flags().GetBool("no-persist"); err != nil {
		return o, err
	}
	if o.noGate, err = cmd.Flags().GetBool("no-gate"); err != nil {
		return o, err
	}
	if o.timeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
		return o, err
	}
	if o.details, err = cmd.Flags().GetInt("details"); err != nil {
		return o, err
	}
	if o.output, err = getOutputOptions(cmd); err != nil {
		return o, err
	}
	return o, nil
}

// runCheckCmd executes the check command.
func runCheckCmd(cmd *cobra.Command, args []string) error {
	opts, err := getCheckOptions(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, closeLog, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	a, err := newApp(ctx, cfg, logger, appOptions{persist: !opts.noPersist})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	src := pipeline.Source{Name: opts.name, Path: args[0], Reference: opts.reference}
	rep, runErr := a.monitor.Run(ctx, src)

	if err := writeReport(cmd, rep, opts.output); err != nil {
		return err
	}
	if opts.details > 0 && rep.Anomaly != nil && opts.output.path == "" && strings.EqualFold(opts.output.format, "text") {
		if err := printAnomalyDetails(ctx, cmd, a, src, rep, opts.details); err != nil {
			logger.Warn("failed to print anomaly details", "error", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("monitoring run failed: %w", runErr)
	}
	if opts.noGate {
		return nil
	}
	return qualityGate(cfg, rep.Quality)
}

// qualityGate compares the overall completeness and uniqueness fractions
// against the configured minimums.
func qualityGate(cfg *config.Config, q *model.QualityReport) error {
	if q == nil {
		return nil
	}

	var failed []string
	if q.Completeness/100 < cfg.Quality.MinCompleteness {
		failed = append(failed, fmt.Sprintf("completeness %.2f%% < %.2f%%",
			q.Completeness, cfg.Quality.MinCompleteness*100))
	}
	if q.Uniqueness/100 < cfg.Quality.MinUniqueness {
		failed = append(failed, fmt.Sprintf("uniqueness %.2f%% < %.2f%%",
			q.Uniqueness, cfg.Quality.MinUniqueness*100))
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrQualityGate, strings.Join(failed, ", "))
	}
	return nil
}

// printAnomalyDetails reloads the dataset and prints the flagged rows.
func printAnomalyDetails(ctx context.Context, cmd *cobra.Command, a *app, src pipeline.Source, rep *model.RunReport, limit int) error {
	ds, err := dataset.LoadFile(src.Path, dataset.LoadOptions{Name: src.Name})
	if err != nil {
		return err
	}
	details, err := a.monitor.Detector.Details(ctx, ds, rep.Anomaly, limit)
	if err != nil {
		return err
	}
	if len(details) == 0 {
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nANOMALOUS ROWS (first %d)\n", len(details))

	columns := ds.ColumnNames()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ROW\tSEVERITY\t%s\n", strings.Join(columns, "\t"))
	for _, d := range details {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = fmt.Sprint(d.Values[c])
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", d.Row, d.Severity, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
