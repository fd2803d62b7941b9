package alert

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/dqmon/internal/model"
)

// Sources used by the factories.
const (
	SourceQuality  = "data_quality"
	SourceAnomaly  = "anomaly_detector"
	SourcePipeline = "pipeline"
)

// Alert is one alert. Values are never modified after creation; Metadata
// returns a copy.
type Alert struct {
	ID          string         `json:"id"`
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Source      string         `json:"source"`
	MetricName  string         `json:"metric_name,omitempty"`
	MetricValue *float64       `json:"metric_value,omitempty"`
	Threshold   *float64       `json:"threshold,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Meta        map[string]any `json:"metadata,omitempty"`
}

// New creates an alert with a fresh id and the current time.
func New(severity Severity, title, message, source string) Alert {
	return Alert{
		ID:        uuid.NewString(),
		Severity:  severity,
		Title:     title,
		Message:   message,
		Source:    source,
		Timestamp: time.Now(),
	}
}

// WithMetric returns a copy of a carrying a metric name and value.
func (a Alert) WithMetric(name string, value float64) Alert {
	a.MetricName = name
	a.MetricValue = &value
	return a
}

// WithThreshold returns a copy of a carrying the breached threshold.
func (a Alert) WithThreshold(threshold float64) Alert {
	a.Threshold = &threshold
	return a
}

// WithMetadata returns a copy of a with key set in its metadata.
func (a Alert) WithMetadata(key string, value any) Alert {
	meta := make(map[string]any, len(a.Meta)+1)
	maps.Copy(meta, a.Meta)
	meta[key] = value
	a.Meta = meta
	return a
}

// Metadata returns a copy of the alert metadata.
func (a Alert) Metadata() map[string]any {
	return maps.Clone(a.Meta)
}

// Key groups repeated alerts about the same metric or title from the same
// source for rate limiting.
func (a Alert) Key() string {
	if a.MetricName != "" {
		return a.Source + ":" + a.MetricName
	}
	return a.Source + ":" + a.Title
}

// Record converts a to its serializable trace with the delivery outcome.
func (a Alert) Record(channel string, status model.DeliveryStatus, reason string, err error) model.AlertRecord {
	rec := model.AlertRecord{
		ID:          a.ID,
		Severity:    a.Severity.String(),
		Title:       a.Title,
		Message:     a.Message,
		Source:      a.Source,
		MetricName:  a.MetricName,
		MetricValue: a.MetricValue,
		Threshold:   a.Threshold,
		Channel:     channel,
		Status:      status,
		Reason:      reason,
		Timestamp:   a.Timestamp,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}

// QualityAlert reports a quality metric below its threshold. score and
// threshold are fractions in [0, 1].
func QualityAlert(metric string, score, threshold float64, severity Severity) Alert {
	return New(severity,
		"Quality below expected: "+metric,
		fmt.Sprintf("Metric %s is at %.2f%%, below the limit of %.2f%%", metric, score*100, threshold*100),
		SourceQuality,
	).WithMetric(metric, score).WithThreshold(threshold)
}

// AnomalyAlert reports a value outside its expected closed range.
func AnomalyAlert(metric string, value, lower, upper float64, severity Severity) Alert {
	return New(severity,
		"Anomaly detected: "+metric,
		fmt.Sprintf("Value %.2f outside the expected range [%g, %g]", value, lower, upper),
		SourceAnomaly,
	).WithMetric(metric, value).WithMetadata("expected_range", []float64{lower, upper})
}

// PipelineAlert reports an infrastructure failure of a named pipeline.
func PipelineAlert(pipeline, message string, severity Severity) Alert {
	return New(severity,
		"Pipeline error: "+pipeline,
		message,
		SourcePipeline,
	).WithMetadata("pipeline", pipeline)
}
