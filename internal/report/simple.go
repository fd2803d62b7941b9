package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nao1215/dqmon/internal/model"
)

// SimpleWriter outputs human-readable text reports for the terminal.
//
// Design decision: plain ASCII layout by default so output pipes cleanly to
// files. WithColor adds lipgloss styling on top of the same layout.
type SimpleWriter struct {
	baseWriter

	color   bool
	verbose bool
	printer *message.Printer
	styles  textStyles
}

type textStyles struct {
	title    lipgloss.Style
	critical lipgloss.Style
	warning  lipgloss.Style
	ok       lipgloss.Style
	dim      lipgloss.Style
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithColor enables colored output.
func WithColor(color bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.color = color
	}
}

// WithVerbose adds alert messages and delivery reasons to the output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		printer:    message.NewPrinter(language.English),
	}
	for _, opt := range opts {
		opt(w)
	}

	r := lipgloss.NewRenderer(output)
	w.styles = textStyles{
		title:    r.NewStyle().Bold(true),
		critical: r.NewStyle().Foreground(lipgloss.Color("#FF005F")).Bold(true),
		warning:  r.NewStyle().Foreground(lipgloss.Color("#FFAF00")),
		ok:       r.NewStyle().Foreground(lipgloss.Color("#00D787")),
		dim:      r.NewStyle().Foreground(lipgloss.Color("#6C6C6C")),
	}
	return w
}

// Write outputs the run report in human-readable format.
func (w *SimpleWriter) Write(report *model.RunReport) (int, error) {
	return w.WriteSummary(model.NewRunSummary(report))
}

// WriteSummary outputs the summary in human-readable format.
func (w *SimpleWriter) WriteSummary(s *model.RunSummary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, s)
	w.writeQuality(&sb, s)
	w.writeAnomalies(&sb, s)
	w.writeDrift(&sb, s)
	w.writeAlerts(&sb, s)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) style(st lipgloss.Style, s string) string {
	if !w.color {
		return s
	}
	return st.Render(s)
}

func (w *SimpleWriter) severityStyle(severity string) lipgloss.Style {
	switch severity {
	case "critical", "error":
		return w.styles.critical
	case "warning":
		return w.styles.warning
	default:
		return w.styles.ok
	}
}

func (w *SimpleWriter) section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(w.style(w.styles.title, title))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, s *model.RunSummary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString(w.style(w.styles.title, "                       DATA QUALITY REPORT"))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Dataset:   %s\n", s.DatasetName))
	if s.Source != "" {
		sb.WriteString(fmt.Sprintf("Source:    %s\n", s.Source))
	}
	sb.WriteString(fmt.Sprintf("Run Date:  %s\n", s.Date.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(w.printer.Sprintf("Rows:      %d\n", s.RowCount))
	sb.WriteString(w.printer.Sprintf("Columns:   %d\n", s.ColumnCount))

	switch {
	case s.TimedOut:
		sb.WriteString("Status:    " + w.style(w.styles.warning, "TIMED OUT (partial results)") + "\n")
	case s.Error != "":
		sb.WriteString("Status:    " + w.style(w.styles.critical, "ERROR - "+s.Error) + "\n")
	default:
		sb.WriteString("Status:    Complete\n")
	}
	if s.Severity != "" {
		sb.WriteString("Severity:  " + w.style(w.severityStyle(s.Severity), strings.ToUpper(s.Severity)) + "\n")
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeQuality(sb *strings.Builder, s *model.RunSummary) {
	if len(s.Dimensions) == 0 {
		return
	}
	w.section(sb, "QUALITY")

	for _, name := range s.DimensionNames() {
		sb.WriteString(fmt.Sprintf("  %-14s %6.2f%%\n", titleCase(name)+":", s.Dimensions[name]))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  %-14s %6.2f%%\n", "Quality Score:", s.QualityScore))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeAnomalies(sb *strings.Builder, s *model.RunSummary) {
	if len(s.AnomaliesByMethod) == 0 && s.TotalAnomalies == 0 {
		return
	}
	w.section(sb, "ANOMALIES")

	sb.WriteString(w.printer.Sprintf("  Total:  %d rows (%.2f%%)\n", s.TotalAnomalies, s.AnomalyPercentage))
	for _, m := range s.MethodNames() {
		sb.WriteString(w.printer.Sprintf("    %-18s %d\n", m+":", s.AnomaliesByMethod[m]))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  HIGH:   %d\n", s.AnomalySeverity.High))
	sb.WriteString(fmt.Sprintf("  MEDIUM: %d\n", s.AnomalySeverity.Medium))
	sb.WriteString(fmt.Sprintf("  LOW:    %d\n", s.AnomalySeverity.Low))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeDrift(sb *strings.Builder, s *model.RunSummary) {
	if len(s.DriftedColumns) == 0 {
		return
	}
	w.section(sb, "DRIFT")

	for _, d := range s.DriftedColumns {
		sb.WriteString(fmt.Sprintf("  [!] %s  score %.4f  mean %+.2f%%  std %+.2f%%\n",
			d.Column, d.DriftScore, d.MeanChange, d.StdChange))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeAlerts(sb *strings.Builder, s *model.RunSummary) {
	w.section(sb, "ALERTS")

	if !s.HasAlerts() {
		sb.WriteString("  No alerts\n\n")
		return
	}

	for _, sev := range []string{"critical", "error", "warning", "info"} {
		for _, a := range s.AlertsBySeverity(sev) {
			label := w.style(w.severityStyle(sev), fmt.Sprintf("[%s]", strings.ToUpper(sev)))
			sb.WriteString(fmt.Sprintf("  %s %s (%s)\n", label, a.Title, a.Status))
			if w.verbose {
				if a.Message != "" {
					sb.WriteString(w.style(w.styles.dim, "    "+strings.ReplaceAll(strings.TrimSpace(a.Message), "\n", "\n    ")))
					sb.WriteString("\n")
				}
				if a.Reason != "" {
					sb.WriteString(fmt.Sprintf("    Reason: %s\n", a.Reason))
				}
				if a.Error != "" {
					sb.WriteString(fmt.Sprintf("    Error: %s\n", a.Error))
				}
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by dqmon\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

func titleCase(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}
