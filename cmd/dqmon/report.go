package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nao1215/dqmon/internal/model"
	"github.com/nao1215/dqmon/internal/report"
)

// ErrNoStoredReports is returned when the artifact directory holds no
// matching final report.
var ErrNoStoredReports = errors.New("no stored reports found")

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect stored run reports",
		Long: `Report reads the final_report_<timestamp>_<dataset>.json artifacts written by check
and watch from the artifact directory (artifacts.dir, default
$XDG_DATA_HOME/dqmon/reports).

Examples:
  # List stored runs, newest first
  dqmon report list

  # Render the latest run of a dataset as Markdown
  dqmon report show --dataset orders -f markdown

  # Render a specific stored report
  dqmon report show ~/.local/share/dqmon/reports/final_report_20260301_120000_orders.json

  # What changed since the previous run of a dataset
  dqmon report compare --dataset orders`,
	}

	cmd.PersistentFlags().String("dir", "", "Artifact directory (default: artifacts.dir from the configuration)")
	cmd.PersistentFlags().StringP("dataset", "d", "", "Only consider runs of this dataset")

	cmd.AddCommand(newReportListCmd())
	cmd.AddCommand(newReportShowCmd())
	cmd.AddCommand(newReportCompareCmd())
	return cmd
}

func newReportListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}
			stored, err := storedReports(cmd)
			if err != nil {
				return err
			}
			if limit > 0 && len(stored) > limit {
				stored = stored[:limit]
			}
			return printReportList(cmd, stored)
		},
	}
	cmd.Flags().IntP("limit", "l", 20, "Maximum number of runs to list (0 lists all)")
	return cmd
}

func newReportShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [report-file]",
		Short: "Render a stored run (default: the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := getOutputOptions(cmd)
			if err != nil {
				return err
			}

			var rep *model.RunReport
			if len(args) == 1 {
				data, err := os.ReadFile(filepath.Clean(args[0]))
				if err != nil {
					return fmt.Errorf("failed to read report: %w", err)
				}
				if rep, err = model.DecodeRunReport(data); err != nil {
					return err
				}
			} else {
				stored, err := storedReports(cmd)
				if err != nil {
					return err
				}
				rep = stored[0].Report
			}
			return writeReport(cmd, rep, out)
		},
	}
	addOutputFlags(cmd)
	return cmd
}

func newReportCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare the two most recent runs of a dataset",
		Long: `Compare shows the score and anomaly deltas, the new and resolved alerts,
and whether the dataset improved or worsened between its two most recent
stored runs. Without --dataset, the dataset of the latest run is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}
			stored, err := storedReports(cmd)
			if err != nil {
				return err
			}

			name := stored[0].Report.DatasetName
			var runs []*model.RunReport
			for _, s := range stored {
				if s.Report.DatasetName == name {
					runs = append(runs, s.Report)
				}
				if len(runs) == 2 {
					break
				}
			}
			if len(runs) < 2 {
				return fmt.Errorf("comparison needs two stored runs of %s, found %d", name, len(runs))
			}

			return report.WriteComparison(cmd.OutOrStdout(), report.CompareRuns(runs[1], runs[0]), format)
		},
	}
	cmd.Flags().StringP("format", "f", report.FormatText, "Output format: text, json or markdown")
	return cmd
}

// storedReports lists the final reports of the artifact directory, newest
// first, filtered by --dataset. It fails when none match.
func storedReports(cmd *cobra.Command) ([]report.StoredReport, error) {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return nil, err
	}
	if dir == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		dir = cfg.Artifacts.Dir
	}
	dataset, err := cmd.Flags().GetString("dataset")
	if err != nil {
		return nil, err
	}

	all, err := report.ListFinalReports(dir)
	if err != nil {
		return nil, err
	}
	stored := all[:0]
	for _, s := range all {
		if dataset == "" || s.Report.DatasetName == dataset {
			stored = append(stored, s)
		}
	}
	if len(stored) == 0 {
		if dataset != "" {
			return nil, fmt.Errorf("%w for %s in %s", ErrNoStoredReports, dataset, dir)
		}
		return nil, fmt.Errorf("%w in %s", ErrNoStoredReports, dir)
	}
	return stored, nil
}

// printReportList prints one line per stored run.
func printReportList(cmd *cobra.Command, stored []report.StoredReport) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tDATASET\tSCORE\tANOMALIES\tSEVERITY\tALERTS\tFILE")
	for _, s := range stored {
		sum := model.NewRunSummary(s.Report)
		severity := sum.Severity
		if s.Report.Failed() {
			severity = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f%%\t%.2f%%\t%s\t%d\t%s\n",
			sum.Date.Local().Format("2006-01-02 15:04:05"),
			sum.DatasetName,
			sum.QualityScore,
			sum.AnomalyPercentage,
			severity,
			sum.TotalAlerts(),
			filepath.Base(s.Path),
		)
	}
	return tw.Flush()
}
