package model

import (
	"fmt"
	"strings"
)

// AnomalySeverity grades a single anomalous row by how many numeric columns
// it is extreme in.
//
// Design decision: iota constants ordered from least to most severe so
// callers can compare levels directly.
type AnomalySeverity int

const (
	// AnomalyLow means fewer than 20% of numeric columns are extreme.
	// Examples: an order whose amount alone is far from the mean, a row
	// flagged only by the isolation forest.
	AnomalyLow AnomalySeverity = iota

	// AnomalyMedium means at least 20% of numeric columns are extreme.
	// Example: one of four numeric columns has |z| above 3.
	// Often a data entry slip confined to a few fields.
	AnomalyMedium

	// AnomalyHigh means at least 50% of numeric columns are extreme.
	// Examples: a row with shifted columns, a unit change applied to a whole
	// record.
	// These rows usually point at a broken upstream export.
	AnomalyHigh
)

// String returns the lower-case level name.
func (s AnomalySeverity) String() string {
	switch s {
	case AnomalyLow:
		return "low"
	case AnomalyMedium:
		return "medium"
	case AnomalyHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseAnomalySeverity parses a level name, ignoring case.
func ParseAnomalySeverity(s string) (AnomalySeverity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return AnomalyLow, nil
	case "medium":
		return AnomalyMedium, nil
	case "high":
		return AnomalyHigh, nil
	default:
		return AnomalyLow, fmt.Errorf("unknown anomaly severity %q", s)
	}
}

// SeverityDistribution counts anomalous rows per severity.
type SeverityDistribution struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Add counts one row at level s.
func (d *SeverityDistribution) Add(s AnomalySeverity) {
	switch s {
	case AnomalyHigh:
		d.High++
	case AnomalyMedium:
		d.Medium++
	default:
		d.Low++
	}
}

// Total returns the number of counted rows.
func (d SeverityDistribution) Total() int {
	return d.High + d.Medium + d.Low
}
