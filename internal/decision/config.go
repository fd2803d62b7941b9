package decision

import (
	"github.com/nao1215/dqmon/internal/alert"
	"github.com/nao1215/dqmon/internal/model"
)

// Thresholds are the warning, error and critical floors of a metric, as
// fractions in [0, 1]. A score below a floor breaches it.
type Thresholds struct {
	Warning  float64 `json:"warning" yaml:"warning" mapstructure:"warning"`
	Error    float64 `json:"error" yaml:"error" mapstructure:"error"`
	Critical float64 `json:"critical" yaml:"critical" mapstructure:"critical"`
}

// Classify returns the severity of the lowest breached floor and that
// floor. ok is false when score breaches none.
func (t Thresholds) Classify(score float64) (sev alert.Severity, floor float64, ok bool) {
	switch {
	case score < t.Critical:
		return alert.Critical, t.Critical, true
	case score < t.Error:
		return alert.Error, t.Error, true
	case score < t.Warning:
		return alert.Warning, t.Warning, true
	default:
		return alert.Info, 0, false
	}
}

// RunThresholds classify a whole run. Scores are on the 0 to 100 scale and
// anomaly limits are percentages of rows.
type RunThresholds struct {
	CriticalScore      float64 `json:"critical_score" yaml:"critical_score" mapstructure:"critical_score"`
	WarningScore       float64 `json:"warning_score" yaml:"warning_score" mapstructure:"warning_score"`
	CriticalAnomalyPct float64 `json:"critical_anomaly_pct" yaml:"critical_anomaly_pct" mapstructure:"critical_anomaly_pct"`
	WarningAnomalyPct  float64 `json:"warning_anomaly_pct" yaml:"warning_anomaly_pct" mapstructure:"warning_anomaly_pct"`
}

// Config is the routing and threshold configuration of a System.
type Config struct {
	// Thresholds maps a metric name to its floors. Unknown metrics use the
	// completeness entry.
	Thresholds map[string]Thresholds

	// Channels maps a severity name to a notifier channel.
	Channels map[string]string

	// Mentions maps a severity name to user ids to mention.
	Mentions map[string][]string

	Run RunThresholds
}

// DefaultThresholds returns the built-in floors.
func DefaultThresholds() map[string]Thresholds {
	return map[string]Thresholds{
		model.MetricCompleteness: {Warning: 0.95, Error: 0.90, Critical: 0.80},
		model.MetricUniqueness:   {Warning: 0.98, Error: 0.95, Critical: 0.90},
		model.MetricValidity:     {Warning: 0.95, Error: 0.90, Critical: 0.85},
	}
}

// DefaultRunThresholds returns the built-in run classification.
func DefaultRunThresholds() RunThresholds {
	return RunThresholds{
		CriticalScore:      70,
		WarningScore:       85,
		CriticalAnomalyPct: 10,
		WarningAnomalyPct:  5,
	}
}

// DefaultConfig returns thresholds and run limits with no routing.
func DefaultConfig() Config {
	return Config{
		Thresholds: DefaultThresholds(),
		Channels:   map[string]string{},
		Mentions:   map[string][]string{},
		Run:        DefaultRunThresholds(),
	}
}

// thresholdsFor returns the floors of metric.
func (c Config) thresholdsFor(metric string) Thresholds {
	if t, ok := c.Thresholds[metric]; ok {
		return t
	}
	if t, ok := c.Thresholds[model.MetricCompleteness]; ok {
		return t
	}
	return DefaultThresholds()[model.MetricCompleteness]
}

// Route returns the channel and mentions for severity s.
func (c Config) Route(s alert.Severity) (string, []string) {
	mentions := c.Mentions[s.String()]
	if len(mentions) > 0 {
		mentions = append([]string(nil), mentions...)
	}
	return c.Channels[s.String()], mentions
}
