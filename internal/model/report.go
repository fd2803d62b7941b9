package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is what happened to an alert after the decision layer produced it.
type DeliveryStatus string

const (
	// DeliverySent means the notifier accepted the alert.
	DeliverySent DeliveryStatus = "sent"

	// DeliverySuppressed means the rate limiter denied the alert.
	DeliverySuppressed DeliveryStatus = "suppressed"

	// DeliveryFailed means the notifier returned an error.
	DeliveryFailed DeliveryStatus = "failed"
)

// AlertRecord is the serializable trace of one alert and its delivery.
type AlertRecord struct {
	ID          string         `json:"id"`
	Severity    string         `json:"severity"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Source      string         `json:"source"`
	MetricName  string         `json:"metric_name,omitempty"`
	MetricValue *float64       `json:"metric_value,omitempty"`
	Threshold   *float64       `json:"threshold,omitempty"`
	Channel     string         `json:"channel,omitempty"`
	Status      DeliveryStatus `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	Error       string         `json:"error,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// RunReport is everything one monitoring run produced for one dataset.
// Steps fill it in order; a failed step leaves later sections nil.
type RunReport struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// DatasetName is the logical name of the analyzed dataset.
	DatasetName string `json:"dataset_name"`

	// Source is the path or URI the dataset was loaded from.
	Source string `json:"source,omitempty"`

	// ReferenceSource is the reference dataset used for drift, if any.
	ReferenceSource string `json:"reference_source,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Quality *QualityReport `json:"quality,omitempty"`
	Anomaly *AnomalyReport `json:"anomaly,omitempty"`
	Drift   *DriftReport   `json:"drift,omitempty"`

	// Severity is the overall run severity (info, warning or critical).
	Severity string `json:"severity,omitempty"`

	// Alerts lists every alert produced during the run with its delivery outcome.
	Alerts []AlertRecord `json:"alerts,omitempty"`

	// Artifacts lists where report documents were written.
	Artifacts []string `json:"artifacts,omitempty"`

	// PerformedSteps lists the steps that ran, in order.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// TimedOut is set when the run was cancelled before all steps finished.
	TimedOut bool `json:"timed_out"`

	// Error holds the step error that stopped the run. It is not serialized;
	// ErrorMessage carries its text.
	Error error `json:"-"`

	ErrorMessage string `json:"error,omitempty"` //nolint:tagliatelle // error is conventional
}

// NewRunReport creates a report for a run over source.
func NewRunReport(source string) *RunReport {
	return &RunReport{
		ID:        uuid.NewString(),
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
}

// Failed reports whether a step error stopped the run.
func (r *RunReport) Failed() bool {
	return r.Error != nil || r.ErrorMessage != ""
}

// AddAlert appends an alert trace.
func (r *RunReport) AddAlert(rec AlertRecord) {
	r.Alerts = append(r.Alerts, rec)
}

// DecodeRunReport parses a JSON-encoded RunReport.
func DecodeRunReport(data []byte) (*RunReport, error) {
	var r RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode run report: %w", err)
	}
	return &r, nil
}
