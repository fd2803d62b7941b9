package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ColumnDrift describes the shift of one numeric column.
// MeanChange and StdChange are relative changes expressed as percentages.
type ColumnDrift struct {
	Column     string  `json:"column"`
	DriftScore float64 `json:"drift_score"`
	MeanChange float64 `json:"mean_change"`
	StdChange  float64 `json:"std_change"`
}

// DriftReport compares a dataset against a reference.
type DriftReport struct {
	Timestamp        time.Time          `json:"timestamp"`
	DatasetName      string             `json:"dataset_name"`
	ReferenceName    string             `json:"reference_name"`
	Threshold        float64            `json:"threshold"`
	DriftDetected    bool               `json:"drift_detected"`
	ColumnsWithDrift []ColumnDrift      `json:"columns_with_drift"`
	DriftScores      map[string]float64 `json:"drift_scores"`
}

// DecodeDriftReport parses a JSON-encoded DriftReport.
func DecodeDriftReport(data []byte) (*DriftReport, error) {
	var r DriftReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode drift report: %w", err)
	}
	return &r, nil
}
