package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// AnomalyReport is the merged result of one detection run.
//
// Invariants: TotalAnomalies == len(AnomalyRowIndices) and
// AnomalyPercentage == TotalAnomalies / RowCount * 100 (two decimals).
// Per-method counts are independent, so a row flagged by two methods counts
// once in TotalAnomalies and once in each method.
type AnomalyReport struct {
	Timestamp            time.Time            `json:"timestamp"`
	DatasetName          string               `json:"dataset_name"`
	RowCount             int                  `json:"row_count"`
	TotalAnomalies       int                  `json:"total_anomalies"`
	AnomalyPercentage    float64              `json:"anomaly_percentage"`
	MethodsUsed          []string             `json:"methods_used"`
	AnomaliesByMethod    map[string]int       `json:"anomalies_by_method"`
	AnomaliesByColumn    map[string]int       `json:"anomalies_by_column"`
	SeverityDistribution SeverityDistribution `json:"severity_distribution"`
	AnomalyRowIndices    []int                `json:"anomaly_row_indices"`
}

// DecodeAnomalyReport parses a JSON-encoded AnomalyReport.
func DecodeAnomalyReport(data []byte) (*AnomalyReport, error) {
	var r AnomalyReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode anomaly report: %w", err)
	}
	return &r, nil
}

// AnomalyDetail is one flagged row with its cell values, for inspection.
type AnomalyDetail struct {
	Row      int            `json:"row"`
	Severity string         `json:"severity"`
	Values   map[string]any `json:"values"`
}
