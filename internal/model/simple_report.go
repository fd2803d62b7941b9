package model

import (
	"fmt"
	"sort"
	"time"
)

// RunSummary is a flattened view of a RunReport for terminal and Markdown output.
type RunSummary struct {
	ID          string    `json:"id"`
	DatasetName string    `json:"dataset_name"`
	Source      string    `json:"source,omitempty"`
	Date        time.Time `json:"date"`
	Severity    string    `json:"severity,omitempty"`

	RowCount    int `json:"row_count"`
	ColumnCount int `json:"column_count"`

	QualityScore float64            `json:"quality_score"`
	Dimensions   map[string]float64 `json:"dimensions,omitempty"`

	TotalAnomalies    int                  `json:"total_anomalies"`
	AnomalyPercentage float64              `json:"anomaly_percentage"`
	AnomaliesByMethod map[string]int       `json:"anomalies_by_method,omitempty"`
	AnomalySeverity   SeverityDistribution `json:"anomaly_severity"`

	DriftedColumns []ColumnDrift `json:"drifted_columns,omitempty"`

	// Alert counts by severity name.
	CriticalCount int `json:"critical_count"`
	ErrorCount    int `json:"error_count"`
	WarningCount  int `json:"warning_count"`
	InfoCount     int `json:"info_count"`

	Alerts []AlertRecord `json:"alerts,omitempty"`

	TimedOut bool   `json:"timed_out"`
	Error    string `json:"error,omitempty"`
}

// NewRunSummary flattens report.
func NewRunSummary(report *RunReport) *RunSummary {
	s := &RunSummary{
		ID:          report.ID,
		DatasetName: report.DatasetName,
		Source:      report.Source,
		Date:        report.StartedAt,
		Severity:    report.Severity,
		TimedOut:    report.TimedOut,
		Error:       report.ErrorMessage,
	}
	if report.Error != nil && s.Error == "" {
		s.Error = report.Error.Error()
	}

	if q := report.Quality; q != nil {
		s.RowCount = q.RowCount
		s.ColumnCount = q.ColumnCount
		s.QualityScore = q.QualityScore
		s.Dimensions = map[string]float64{
			MetricCompleteness: q.Completeness,
			MetricUniqueness:   q.Uniqueness,
			MetricValidity:     q.Validity,
			MetricConsistency:  q.Consistency,
		}
	}

	if a := report.Anomaly; a != nil {
		if s.RowCount == 0 {
			s.RowCount = a.RowCount
		}
		s.TotalAnomalies = a.TotalAnomalies
		s.AnomalyPercentage = a.AnomalyPercentage
		s.AnomaliesByMethod = a.AnomaliesByMethod
		s.AnomalySeverity = a.SeverityDistribution
	}

	if d := report.Drift; d != nil {
		s.DriftedColumns = append(s.DriftedColumns, d.ColumnsWithDrift...)
	}

	s.Alerts = append(s.Alerts, report.Alerts...)
	s.countBySeverity()

	return s
}

func (s *RunSummary) countBySeverity() {
	for _, a := range s.Alerts {
		switch a.Severity {
		case "critical":
			s.CriticalCount++
		case "error":
			s.ErrorCount++
		case "warning":
			s.WarningCount++
		default:
			s.InfoCount++
		}
	}
}

// TotalAlerts returns the number of alerts produced by the run.
func (s *RunSummary) TotalAlerts() int {
	return s.CriticalCount + s.ErrorCount + s.WarningCount + s.InfoCount
}

// HasAlerts reports whether the run produced any alert.
func (s *RunSummary) HasAlerts() bool {
	return s.TotalAlerts() > 0
}

// AlertsBySeverity returns the alerts of one severity name.
func (s *RunSummary) AlertsBySeverity(severity string) []AlertRecord {
	var out []AlertRecord
	for _, a := range s.Alerts {
		if a.Severity == severity {
			out = append(out, a)
		}
	}
	return out
}

// DimensionNames returns the dimension names in a fixed display order.
func (s *RunSummary) DimensionNames() []string {
	order := []string{MetricCompleteness, MetricUniqueness, MetricValidity, MetricConsistency}
	out := make([]string, 0, len(order))
	for _, n := range order {
		if _, ok := s.Dimensions[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// MethodNames returns the anomaly method names sorted alphabetically.
func (s *RunSummary) MethodNames() []string {
	names := make([]string, 0, len(s.AnomaliesByMethod))
	for n := range s.AnomaliesByMethod {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Status returns a one-word run status.
func (s *RunSummary) Status() string {
	switch {
	case s.TimedOut:
		return "timed out"
	case s.Error != "":
		return fmt.Sprintf("failed: %s", s.Error)
	default:
		return "complete"
	}
}
