package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/dqmon/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for documentation and
// sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run report in Markdown format.
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	return w.WriteSummary(model.NewRunSummary(report))
}

// WriteSummary outputs the summary in Markdown format.
func (w *MarkdownWriter) WriteSummary(s *model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, s)
	w.writeQuality(md, s)
	w.writeAnomalies(md, s)
	w.writeDrift(md, s)
	w.writeAlerts(md, s)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *model.RunSummary) {
	md.H1("Data Quality Report")
	md.PlainText("")

	rows := [][]string{{"Dataset", "`" + s.DatasetName + "`"}}
	if s.Source != "" {
		rows = append(rows, []string{"Source", "`" + s.Source + "`"})
	}
	rows = append(rows,
		[]string{"Run Date", s.Date.Format("2006-01-02 15:04:05 MST")},
		[]string{"Rows", strconv.Itoa(s.RowCount)},
		[]string{"Columns", strconv.Itoa(s.ColumnCount)},
		[]string{"Status", w.statusText(s)},
	)
	if s.Severity != "" {
		rows = append(rows, []string{"Severity", severityIcon(s.Severity) + " " + s.Severity})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	switch s.Severity {
	case "critical":
		md.Cautionf("Critical data quality problems. Quality score %.2f%%, %.2f%% of rows anomalous.",
			s.QualityScore, s.AnomalyPercentage)
	case "warning":
		md.Warningf("Data quality needs attention. Quality score %.2f%%, %.2f%% of rows anomalous.",
			s.QualityScore, s.AnomalyPercentage)
	case "info":
		md.Tip("Data quality is within expected limits.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) statusText(s *model.RunSummary) string {
	if s.TimedOut {
		return "⚠️ Timed Out (partial results)"
	}
	if s.Error != "" {
		return "❌ Error - " + s.Error
	}
	return "✅ Complete"
}

func (w *MarkdownWriter) writeQuality(md *markdown.Markdown, s *model.RunSummary) {
	md.H2("Quality")
	md.PlainText("")

	if len(s.Dimensions) == 0 {
		md.PlainText("No quality analysis was performed.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(s.Dimensions)+1)
	for _, name := range s.DimensionNames() {
		rows = append(rows, []string{titleCase(name), fmt.Sprintf("%.2f%%", s.Dimensions[name])})
	}
	rows = append(rows, []string{"**Quality Score**", fmt.Sprintf("**%.2f%%**", s.QualityScore)})

	md.Table(markdown.TableSet{
		Header: []string{"Dimension", "Score"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeAnomalies(md *markdown.Markdown, s *model.RunSummary) {
	md.H2("Anomalies")
	md.PlainText("")

	if len(s.AnomaliesByMethod) == 0 && s.TotalAnomalies == 0 {
		md.PlainText("No anomalies detected.")
		md.PlainText("")
		return
	}

	md.PlainTextf("%d anomalous rows (%.2f%%).", s.TotalAnomalies, s.AnomalyPercentage)
	md.PlainText("")

	rows := make([][]string, 0, len(s.AnomaliesByMethod))
	for _, m := range s.MethodNames() {
		rows = append(rows, []string{m, strconv.Itoa(s.AnomaliesByMethod[m])})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Method", "Rows"},
		Rows:   rows,
	})
	md.PlainText("")

	if s.AnomalySeverity.Total() > 0 {
		w.writePieChart(md, s.AnomalySeverity)
	}
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, d model.SeverityDistribution) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Anomaly Severity Distribution"),
		piechart.WithShowData(true),
	)
	if d.High > 0 {
		chart.LabelAndIntValue("High", uint64(d.High)) //nolint:gosec // counts are non-negative
	}
	if d.Medium > 0 {
		chart.LabelAndIntValue("Medium", uint64(d.Medium)) //nolint:gosec // counts are non-negative
	}
	if d.Low > 0 {
		chart.LabelAndIntValue("Low", uint64(d.Low)) //nolint:gosec // counts are non-negative
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeDrift(md *markdown.Markdown, s *model.RunSummary) {
	if len(s.DriftedColumns) == 0 {
		return
	}

	md.H2("Drift")
	md.PlainText("")

	rows := make([][]string, len(s.DriftedColumns))
	for i, d := range s.DriftedColumns {
		rows[i] = []string{
			"`" + d.Column + "`",
			strconv.FormatFloat(d.DriftScore, 'f', 4, 64),
			fmt.Sprintf("%.2f%%", d.MeanChange),
			fmt.Sprintf("%.2f%%", d.StdChange),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Column", "Drift Score", "Mean Change", "Std Change"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlerts(md *markdown.Markdown, s *model.RunSummary) {
	md.H2("Alerts")
	md.PlainText("")

	if !s.HasAlerts() {
		md.PlainText("No alerts were raised.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(s.Alerts))
	for _, sev := range []string{"critical", "error", "warning", "info"} {
		for _, a := range s.AlertsBySeverity(sev) {
			status := string(a.Status)
			if a.Reason != "" {
				status += " (" + a.Reason + ")"
			}
			rows = append(rows, []string{
				severityIcon(sev) + " " + sev,
				truncateString(a.Title, 60),
				a.Source,
				status,
			})
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Title", "Source", "Delivery"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [dqmon](https://github.com/nao1215/dqmon)*")
}

func severityIcon(severity string) string {
	switch severity {
	case "critical":
		return "🔴"
	case "error":
		return "🟠"
	case "warning":
		return "🟡"
	default:
		return "🔵"
	}
}

// truncateString truncates s to maxLen characters with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
