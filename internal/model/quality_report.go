package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Quality dimension names, used as metric names by the decision layer.
const (
	MetricCompleteness = "completeness"
	MetricUniqueness   = "uniqueness"
	MetricValidity     = "validity"
	MetricConsistency  = "consistency"
)

// QualityReport is the result of one quality analysis.
// All scores are percentages in [0, 100] rounded to two decimals.
type QualityReport struct {
	Timestamp    time.Time      `json:"timestamp"`
	DatasetName  string         `json:"dataset_name"`
	RowCount     int            `json:"row_count"`
	ColumnCount  int            `json:"column_count"`
	Completeness float64        `json:"completeness"`
	Uniqueness   float64        `json:"uniqueness"`
	Validity     float64        `json:"validity"`
	Consistency  float64        `json:"consistency"`
	QualityScore float64        `json:"quality_score"`
	Details      QualityDetails `json:"details"`
}

// QualityDetails holds the per-dimension breakdowns.
type QualityDetails struct {
	Completeness CompletenessDetail `json:"completeness"`
	Uniqueness   UniquenessDetail   `json:"uniqueness"`
	Validity     ValidityDetail     `json:"validity"`
	Consistency  ConsistencyDetail  `json:"consistency"`
}

// CompletenessDetail is the non-null percentage overall and per column.
type CompletenessDetail struct {
	Overall  float64            `json:"overall"`
	ByColumn map[string]float64 `json:"by_column"`
}

// UniquenessDetail is the duplicate analysis.
type UniquenessDetail struct {
	Overall        float64            `json:"overall"`
	DuplicateCount int                `json:"duplicates_count"`
	KeyColumns     []string           `json:"key_columns,omitempty"`
	ByColumn       map[string]float64 `json:"by_column"`
}

// ValidityDetail is the pass percentage per rule. Errors lists the rules
// that could not be evaluated; those score 0 and are left out of Overall.
type ValidityDetail struct {
	Overall float64            `json:"overall"`
	ByRule  map[string]float64 `json:"by_rule"`
	Errors  map[string]string  `json:"errors,omitempty"`
}

// ConsistencyDetail holds one score per check, keyed <column>_dtype or <column>_range.
type ConsistencyDetail struct {
	Overall float64            `json:"overall"`
	Details map[string]float64 `json:"details"`
}

// Scores returns the four dimensions as fractions in [0, 1], keyed by metric name.
// This is the form the decision layer compares against thresholds.
func (r *QualityReport) Scores() map[string]float64 {
	return map[string]float64{
		MetricCompleteness: r.Completeness / 100,
		MetricUniqueness:   r.Uniqueness / 100,
		MetricValidity:     r.Validity / 100,
		MetricConsistency:  r.Consistency / 100,
	}
}

// DecodeQualityReport parses a JSON-encoded QualityReport.
func DecodeQualityReport(data []byte) (*QualityReport, error) {
	var r QualityReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode quality report: %w", err)
	}
	return &r, nil
}
