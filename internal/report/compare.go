package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/nao1215/dqmon/internal/model"
)

// Direction of a comparison.
const (
	DirectionImproved  = "improved"
	DirectionWorsened  = "worsened"
	DirectionUnchanged = "unchanged"
)

// RunSnapshot is the part of a run a comparison looks at.
type RunSnapshot struct {
	ID                string             `json:"id"`
	Date              time.Time          `json:"date"`
	QualityScore      float64            `json:"quality_score"`
	Dimensions        map[string]float64 `json:"dimensions,omitempty"`
	AnomalyPercentage float64            `json:"anomaly_percentage"`
	DriftedColumns    int                `json:"drifted_columns"`
	CriticalCount     int                `json:"critical_count"`
	ErrorCount        int                `json:"error_count"`
	WarningCount      int                `json:"warning_count"`
}

func snapshot(s *model.RunSummary) RunSnapshot {
	return RunSnapshot{
		ID:                s.ID,
		Date:              s.Date,
		QualityScore:      s.QualityScore,
		Dimensions:        s.Dimensions,
		AnomalyPercentage: s.AnomalyPercentage,
		DriftedColumns:    len(s.DriftedColumns),
		CriticalCount:     s.CriticalCount,
		ErrorCount:        s.ErrorCount,
		WarningCount:      s.WarningCount,
	}
}

// risk weighs alerts by severity. Info alerts do not count.
func (r RunSnapshot) risk() int {
	return r.CriticalCount*100 + r.ErrorCount*50 + r.WarningCount*10
}

// Comparison is the difference between two runs of one dataset.
type Comparison struct {
	DatasetName string      `json:"dataset_name"`
	Previous    RunSnapshot `json:"previous"`
	Current     RunSnapshot `json:"current"`

	// ScoreDelta and AnomalyDelta are percentage points, current minus previous.
	ScoreDelta     float64            `json:"score_delta"`
	DimensionDelta map[string]float64 `json:"dimension_delta,omitempty"`
	AnomalyDelta   float64            `json:"anomaly_delta"`

	// NewAlerts fired in the current run but not in the previous one.
	// ResolvedAlerts fired only in the previous run. Alerts are matched by
	// source and title; run summary alerts are left out.
	NewAlerts      []model.AlertRecord `json:"new_alerts,omitempty"`
	ResolvedAlerts []model.AlertRecord `json:"resolved_alerts,omitempty"`
	UnchangedCount int                 `json:"unchanged_count"`

	Direction string `json:"direction"`
}

// CompareRuns compares the previous run with the current one.
//
// The direction follows the weighted alert count (critical 100, error 50,
// warning 10); on a tie, the quality score decides.
func CompareRuns(previous, current *model.RunReport) *Comparison {
	ps := model.NewRunSummary(previous)
	cs := model.NewRunSummary(current)

	c := &Comparison{
		DatasetName:    cs.DatasetName,
		Previous:       snapshot(ps),
		Current:        snapshot(cs),
		ScoreDelta:     cs.QualityScore - ps.QualityScore,
		AnomalyDelta:   cs.AnomalyPercentage - ps.AnomalyPercentage,
		DimensionDelta: make(map[string]float64),
	}
	for name, v := range cs.Dimensions {
		if prev, ok := ps.Dimensions[name]; ok {
			c.DimensionDelta[name] = v - prev
		}
	}

	prevAlerts := alertsByKey(ps.Alerts)
	curAlerts := alertsByKey(cs.Alerts)
	for key, a := range curAlerts {
		if _, ok := prevAlerts[key]; !ok {
			c.NewAlerts = append(c.NewAlerts, a)
		}
	}
	for key, a := range prevAlerts {
		if _, ok := curAlerts[key]; ok {
			c.UnchangedCount++
		} else {
			c.ResolvedAlerts = append(c.ResolvedAlerts, a)
		}
	}
	sortAlerts(c.NewAlerts)
	sortAlerts(c.ResolvedAlerts)

	pr, cr := c.Previous.risk(), c.Current.risk()
	switch {
	case cr < pr, cr == pr && c.ScoreDelta > 0:
		c.Direction = DirectionImproved
	case cr > pr, cr == pr && c.ScoreDelta < 0:
		c.Direction = DirectionWorsened
	default:
		c.Direction = DirectionUnchanged
	}
	return c
}

// runAlertSource is the source of run summary alerts, which every run has.
const runAlertSource = "dqmon"

func alertsByKey(alerts []model.AlertRecord) map[string]model.AlertRecord {
	out := make(map[string]model.AlertRecord, len(alerts))
	for _, a := range alerts {
		if a.Source == runAlertSource {
			continue
		}
		out[a.Source+"|"+a.Title] = a
	}
	return out
}

func sortAlerts(alerts []model.AlertRecord) {
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Source != alerts[j].Source {
			return alerts[i].Source < alerts[j].Source
		}
		return alerts[i].Title < alerts[j].Title
	})
}

// WriteComparison renders c in format (text, json or markdown).
func WriteComparison(w io.Writer, c *Comparison, format string) error {
	switch strings.ToLower(format) {
	case FormatText, "":
		return writeComparisonText(w, c)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	case FormatMarkdown, "md":
		return writeComparisonMarkdown(w, c)
	default:
		return fmt.Errorf("%w: %q (use text, json or markdown)", ErrUnknownFormat, format)
	}
}

func writeComparisonText(w io.Writer, c *Comparison) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Run Comparison: %s\n", c.DatasetName)
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&sb, "\nStatus: %s\n", directionText(c.Direction))
	fmt.Fprintf(&sb, "\nPrevious run: %s\n", c.Previous.Date.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Current run:  %s\n", c.Current.Date.Format("2006-01-02 15:04:05"))

	sb.WriteString("\nScores:\n")
	fmt.Fprintf(&sb, "  %-14s  %-10s  %-10s  %-10s\n", "Metric", "Previous", "Current", "Change")
	sb.WriteString("  " + strings.Repeat("-", 50) + "\n")
	for _, row := range comparisonRows(c) {
		fmt.Fprintf(&sb, "  %-14s  %-10s  %-10s  %-10s\n", row[0], row[1], row[2], row[3])
	}

	if len(c.NewAlerts) > 0 {
		fmt.Fprintf(&sb, "\nNew Alerts (%d):\n", len(c.NewAlerts))
		for _, a := range c.NewAlerts {
			fmt.Fprintf(&sb, "  [+] [%s] %s\n", strings.ToUpper(a.Severity), a.Title)
		}
	}
	if len(c.ResolvedAlerts) > 0 {
		fmt.Fprintf(&sb, "\nResolved Alerts (%d):\n", len(c.ResolvedAlerts))
		for _, a := range c.ResolvedAlerts {
			fmt.Fprintf(&sb, "  [-] [%s] %s\n", strings.ToUpper(a.Severity), a.Title)
		}
	}
	if c.UnchangedCount > 0 {
		fmt.Fprintf(&sb, "\nUnchanged: %d alerts\n", c.UnchangedCount)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeComparisonMarkdown(w io.Writer, c *Comparison) error {
	md := markdown.NewMarkdown(w)
	md.H1("Run Comparison: " + c.DatasetName)
	md.PlainText("")
	md.PlainTextf("**Status:** %s", directionText(c.Direction))
	md.PlainText("")

	rows := [][]string{{
		"Date",
		c.Previous.Date.Format("2006-01-02 15:04"),
		c.Current.Date.Format("2006-01-02 15:04"),
		"-",
	}}
	rows = append(rows, comparisonRows(c)...)
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows:   rows,
	})

	if len(c.NewAlerts) > 0 {
		md.PlainText("")
		md.H2(fmt.Sprintf("New Alerts (%d)", len(c.NewAlerts)))
		items := make([]string, 0, len(c.NewAlerts))
		for _, a := range c.NewAlerts {
			items = append(items, fmt.Sprintf("**[%s]** %s", strings.ToUpper(a.Severity), a.Title))
		}
		md.BulletList(items...)
	}
	if len(c.ResolvedAlerts) > 0 {
		md.PlainText("")
		md.H2(fmt.Sprintf("Resolved Alerts (%d)", len(c.ResolvedAlerts)))
		items := make([]string, 0, len(c.ResolvedAlerts))
		for _, a := range c.ResolvedAlerts {
			items = append(items, fmt.Sprintf("~~**[%s]** %s~~", strings.ToUpper(a.Severity), a.Title))
		}
		md.BulletList(items...)
	}
	if c.UnchangedCount > 0 {
		md.PlainText("")
		md.HorizontalRule()
		md.PlainTextf("*%d alerts unchanged*", c.UnchangedCount)
	}

	return md.Build()
}

// comparisonRows returns metric, previous, current and change columns.
func comparisonRows(c *Comparison) [][]string {
	pct := func(v float64) string { return fmt.Sprintf("%.2f%%", v) }
	rows := [][]string{
		{"Quality score", pct(c.Previous.QualityScore), pct(c.Current.QualityScore), formatFloatDelta(c.ScoreDelta)},
	}
	for _, name := range []string{model.MetricCompleteness, model.MetricUniqueness, model.MetricValidity, model.MetricConsistency} {
		d, ok := c.DimensionDelta[name]
		if !ok {
			continue
		}
		rows = append(rows, []string{
			titleCase(name), pct(c.Previous.Dimensions[name]), pct(c.Current.Dimensions[name]), formatFloatDelta(d),
		})
	}
	rows = append(rows,
		[]string{"Anomalies", pct(c.Previous.AnomalyPercentage), pct(c.Current.AnomalyPercentage), formatFloatDelta(c.AnomalyDelta)},
		[]string{"Drifted cols", fmt.Sprint(c.Previous.DriftedColumns), fmt.Sprint(c.Current.DriftedColumns),
			formatIntDelta(c.Current.DriftedColumns - c.Previous.DriftedColumns)},
		[]string{"Critical", fmt.Sprint(c.Previous.CriticalCount), fmt.Sprint(c.Current.CriticalCount),
			formatIntDelta(c.Current.CriticalCount - c.Previous.CriticalCount)},
		[]string{"Error", fmt.Sprint(c.Previous.ErrorCount), fmt.Sprint(c.Current.ErrorCount),
			formatIntDelta(c.Current.ErrorCount - c.Previous.ErrorCount)},
		[]string{"Warning", fmt.Sprint(c.Previous.WarningCount), fmt.Sprint(c.Current.WarningCount),
			formatIntDelta(c.Current.WarningCount - c.Previous.WarningCount)},
	)
	return rows
}

func directionText(direction string) string {
	switch direction {
	case DirectionImproved:
		return "IMPROVED"
	case DirectionWorsened:
		return "WORSENED"
	default:
		return "UNCHANGED"
	}
}

func formatFloatDelta(d float64) string {
	switch {
	case d > 0.005:
		return fmt.Sprintf("+%.2f", d)
	case d < -0.005:
		return fmt.Sprintf("%.2f", d)
	default:
		return "0"
	}
}

func formatIntDelta(d int) string {
	if d > 0 {
		return fmt.Sprintf("+%d", d)
	}
	return fmt.Sprint(d)
}
