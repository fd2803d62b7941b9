package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/nao1215/dqmon/internal/alert"
	"github.com/nao1215/dqmon/internal/model"
	"github.com/nao1215/dqmon/internal/notify"
)

// RunSource is the source of run-level alerts.
const RunSource = "dqmon"

// RunMetric names the run alert metric of a dataset. Run alerts are rate
// limited per dataset.
func RunMetric(datasetName string) string {
	return datasetName + ".quality_score"
}

// Dispatch is the outcome of one alert passing through the gate.
type Dispatch struct {
	Alert    alert.Alert
	Channel  string
	Mentions []string
	Status   model.DeliveryStatus

	// Reason explains a suppression.
	Reason string

	// Err is the delivery error, usually a *notify.DeliveryError.
	Err error
}

// Record converts d to its serializable trace.
func (d Dispatch) Record() model.AlertRecord {
	return d.Alert.Record(d.Channel, d.Status, d.Reason, d.Err)
}

// System is the alert decision layer.
type System struct {
	cfg      Config
	manager  *alert.Manager
	notifier notify.Notifier
	observe  func(Dispatch)
	logger   *slog.Logger
}

// Option configures a System.
type Option func(*System)

// WithManager sets the alert manager. The default has no rate limiting.
func WithManager(m *alert.Manager) Option {
	return func(s *System) {
		s.manager = m
	}
}

// WithNotifier sets the notifier. The default logs alerts.
func WithNotifier(n notify.Notifier) Option {
	return func(s *System) {
		s.notifier = n
	}
}

// WithObserver registers a callback invoked with every Dispatch.
func WithObserver(fn func(Dispatch)) Option {
	return func(s *System) {
		s.observe = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *System) {
		s.logger = logger
	}
}

// New creates a System.
func New(cfg Config, opts ...Option) *System {
	s := &System{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.Thresholds == nil {
		s.cfg.Thresholds = DefaultThresholds()
	}
	if s.manager == nil {
		s.manager = alert.NewManager(alert.WithLogger(s.logger))
	}
	if s.notifier == nil {
		s.notifier = notify.NewLog(s.logger)
	}
	return s
}

// Manager returns the alert manager.
func (s *System) Manager() *alert.Manager { return s.manager }

// CheckQuality produces one alert per metric whose score, a fraction in
// [0, 1], breaches a floor, and dispatches it. Metrics are visited in name
// order.
func (s *System) CheckQuality(ctx context.Context, scores map[string]float64) []Dispatch {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Dispatch
	for _, name := range names {
		score := scores[name]
		sev, floor, breached := s.cfg.thresholdsFor(name).Classify(score)
		if !breached {
			continue
		}
		out = append(out, s.dispatch(ctx, alert.QualityAlert(name, score, floor, sev)))
	}
	return out
}

// CheckAnomalyRange dispatches an alert when value lies outside the closed
// range [lower, upper] and returns nil otherwise.
func (s *System) CheckAnomalyRange(ctx context.Context, metric string, value, lower, upper float64, sev alert.Severity) *Dispatch {
	if value >= lower && value <= upper {
		return nil
	}
	d := s.dispatch(ctx, alert.AnomalyAlert(metric, value, lower, upper, sev))
	return &d
}

// ReportPipelineFailure always dispatches an alert for pipeline.
func (s *System) ReportPipelineFailure(ctx context.Context, pipeline, message string, sev alert.Severity) Dispatch {
	return s.dispatch(ctx, alert.PipelineAlert(pipeline, message, sev))
}

// RunSeverity classifies a run from its quality score and anomaly share.
// A nil report contributes nothing.
func (s *System) RunSeverity(q *model.QualityReport, a *model.AnomalyReport) alert.Severity {
	rt := s.cfg.Run
	score := 100.0
	if q != nil {
		score = q.QualityScore
	}
	pct := 0.0
	if a != nil {
		pct = a.AnomalyPercentage
	}
	switch {
	case score < rt.CriticalScore || pct > rt.CriticalAnomalyPct:
		return alert.Critical
	case score < rt.WarningScore || pct > rt.WarningAnomalyPct:
		return alert.Warning
	default:
		return alert.Info
	}
}

// EvaluateRun dispatches the run summary alert for datasetName.
func (s *System) EvaluateRun(ctx context.Context, datasetName string, q *model.QualityReport, a *model.AnomalyReport) Dispatch {
	sev := s.RunSeverity(q, a)

	var b strings.Builder
	fmt.Fprintf(&b, "*Monitoring run for %s*\n", datasetName)
	score := 0.0
	if q != nil {
		score = q.QualityScore
		fmt.Fprintf(&b, "\n*Data quality:*\n")
		fmt.Fprintf(&b, "• Quality score: *%.2f%%*\n", q.QualityScore)
		fmt.Fprintf(&b, "• Completeness: %.2f%%\n", q.Completeness)
		fmt.Fprintf(&b, "• Uniqueness: %.2f%%\n", q.Uniqueness)
		fmt.Fprintf(&b, "• Validity: %.2f%%\n", q.Validity)
		fmt.Fprintf(&b, "• Consistency: %.2f%%\n", q.Consistency)
	}
	if a != nil {
		fmt.Fprintf(&b, "\n*Anomalies:*\n")
		fmt.Fprintf(&b, "• Total: *%d* rows (%.2f%%)\n", a.TotalAnomalies, a.AnomalyPercentage)
		fmt.Fprintf(&b, "• Methods: %s\n", strings.Join(a.MethodsUsed, ", "))
		for _, m := range a.MethodsUsed {
			fmt.Fprintf(&b, "• %s: %d anomalies\n", m, a.AnomaliesByMethod[m])
		}
		fmt.Fprintf(&b, "• Severity: high %d, medium %d, low %d\n",
			a.SeverityDistribution.High, a.SeverityDistribution.Medium, a.SeverityDistribution.Low)
	}

	al := alert.New(sev, "Monitoring report: "+datasetName, b.String(), RunSource).
		WithMetric(RunMetric(datasetName), score).
		WithThreshold(s.cfg.Run.WarningScore).
		WithMetadata("dataset", datasetName)
	if a != nil {
		al = al.WithMetadata("anomalies", a.TotalAnomalies)
	}
	return s.dispatch(ctx, al)
}

// SendDigest sends a summary of the alert history. An empty channel means
// the info channel.
func (s *System) SendDigest(ctx context.Context, channel string) error {
	if channel == "" {
		channel, _ = s.cfg.Route(alert.Info)
	}
	return s.notifier.SendSummary(ctx, s.manager.Summary(), channel)
}

// Stats returns the alert manager summary.
func (s *System) Stats() alert.Summary {
	return s.manager.Summary()
}

func (s *System) dispatch(ctx context.Context, a alert.Alert) Dispatch {
	a = s.manager.Create(a)
	channel, mentions := s.cfg.Route(a.Severity)
	d := Dispatch{Alert: a, Channel: channel, Mentions: mentions}
	defer func() {
		if s.observe != nil {
			s.observe(d)
		}
	}()

	decision, err := s.manager.ShouldSend(ctx, a)
	if err != nil {
		d.Status = model.DeliveryFailed
		d.Err = err
		s.logger.Error("rate limiter unavailable", "alert", a.Title, "error", err)
		return d
	}
	if !decision.Allowed {
		d.Status = model.DeliverySuppressed
		d.Reason = decision.Reason
		s.logger.Warn("alert not sent", "alert", a.Title, "reason", decision.Reason)
		return d
	}

	if err := s.notifier.Send(ctx, a, channel, mentions); err != nil {
		var de *notify.DeliveryError
		if !errors.As(err, &de) {
			err = &notify.DeliveryError{Notifier: s.notifier.Name(), Err: err}
		}
		d.Status = model.DeliveryFailed
		d.Err = err
		s.logger.Error("failed to send alert", "alert", a.Title, "error", err)
		return d
	}

	d.Status = model.DeliverySent
	return d
}
