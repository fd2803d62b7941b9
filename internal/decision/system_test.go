package decision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/dqmon/internal/alert"
	"github.com/nao1215/dqmon/internal/model"
	"github.com/nao1215/dqmon/internal/notify"
	"github.com/nao1215/dqmon/internal/ratelimit"
)

type sent struct {
	alert    alert.Alert
	channel  string
	mentions []string
}

type recorder struct {
	mu        sync.Mutex
	sent      []sent
	summaries []alert.Summary
	fail      map[string]bool
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Send(_ context.Context, a alert.Alert, channel string, mentions []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[a.MetricName] {
		return errors.New("webhook down")
	}
	r.sent = append(r.sent, sent{alert: a, channel: channel, mentions: mentions})
	return nil
}

func (r *recorder) SendSummary(_ context.Context, s alert.Summary, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, s)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Channels = map[string]string{
		"info":     "#data",
		"warning":  "#data-alerts",
		"error":    "#data-alerts",
		"critical": "#oncall",
	}
	cfg.Mentions = map[string][]string{"critical": {"U1", "U2"}}
	return cfg
}

func newSystem(t *testing.T, maxPerHour int, opts ...Option) (*System, *recorder) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	limiter, err := ratelimit.New(ratelimit.WithMaxPerHour(maxPerHour), ratelimit.WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	m := alert.NewManager(alert.WithLimiter(limiter), alert.WithClock(clock), alert.WithLogger(logger))
	opts = append([]Option{WithManager(m), WithNotifier(rec), WithLogger(logger)}, opts...)
	return New(testConfig(), opts...), rec
}

func TestThresholdsClassify(t *testing.T) {
	t.Parallel()

	th := Thresholds{Warning: 0.95, Error: 0.90, Critical: 0.80}
	tests := []struct {
		score     float64
		want      alert.Severity
		wantFloor float64
		breached  bool
	}{
		{score: 0.99, breached: false},
		{score: 0.95, breached: false},
		{score: 0.94, want: alert.Warning, wantFloor: 0.95, breached: true},
		{score: 0.89, want: alert.Error, wantFloor: 0.90, breached: true},
		{score: 0.5, want: alert.Critical, wantFloor: 0.80, breached: true},
	}
	for _, tt := range tests {
		sev, floor, ok := th.Classify(tt.score)
		if ok != tt.breached || (ok && (sev != tt.want || floor != tt.wantFloor)) {
			t.Errorf("Classify(%v) = %v %v %v", tt.score, sev, floor, ok)
		}
	}
}

func TestCheckQuality(t *testing.T) {
	t.Parallel()

	s, rec := newSystem(t, 10)
	got := s.CheckQuality(context.Background(), map[string]float64{
		"completeness": 0.89,
		"uniqueness":   0.97,
		"validity":     0.99,
		"freshness":    0.70, // unconfigured: completeness floors
	})

	if len(got) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(got))
	}
	want := []struct {
		metric string
		sev    alert.Severity
	}{
		{metric: "completeness", sev: alert.Error},
		{metric: "freshness", sev: alert.Critical},
		{metric: "uniqueness", sev: alert.Warning},
	}
	for i, w := range want {
		d := got[i]
		if d.Alert.MetricName != w.metric || d.Alert.Severity != w.sev {
			t.Errorf("alert %d: got %s/%s, want %s/%s", i, d.Alert.MetricName, d.Alert.Severity, w.metric, w.sev)
		}
		if d.Status != model.DeliverySent {
			t.Errorf("alert %d: status %s", i, d.Status)
		}
	}

	if got[1].Channel != "#oncall" || len(got[1].Mentions) != 2 {
		t.Errorf("critical routing: %q %v", got[1].Channel, got[1].Mentions)
	}
	if got[0].Channel != "#data-alerts" || got[0].Mentions != nil {
		t.Errorf("error routing: %q %v", got[0].Channel, got[0].Mentions)
	}
	if len(rec.sent) != 3 {
		t.Errorf("expected 3 deliveries, got %d", len(rec.sent))
	}
	if s.Manager().History().Len() != 3 {
		t.Errorf("expected 3 alerts in history, got %d", s.Manager().History().Len())
	}
}

func TestRateLimitGate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, rec := newSystem(t, 3)

	var statuses []model.DeliveryStatus
	for i := 0; i < 4; i++ {
		d := s.CheckQuality(ctx, map[string]float64{"completeness": 0.93})
		statuses = append(statuses, d[0].Status)
	}
	if statuses[2] != model.DeliverySent || statuses[3] != model.DeliverySuppressed {
		t.Errorf("unexpected statuses %v", statuses)
	}
	if len(rec.sent) != 3 {
		t.Errorf("expected 3 deliveries, got %d", len(rec.sent))
	}

	// Critical alerts for the same key always pass.
	for i := 0; i < 5; i++ {
		d := s.CheckQuality(ctx, map[string]float64{"completeness": 0.5})
		if d[0].Status != model.DeliverySent {
			t.Fatalf("critical alert %d was %s: %s", i, d[0].Status, d[0].Reason)
		}
	}
}

func TestDeliveryFailureIsIsolated(t *testing.T) {
	t.Parallel()

	var observed []Dispatch
	s, rec := newSystem(t, 10, WithObserver(func(d Dispatch) { observed = append(observed, d) }))
	rec.fail = map[string]bool{"completeness": true}

	got := s.CheckQuality(context.Background(), map[string]float64{
		"completeness": 0.5,
		"validity":     0.5,
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 dispatches, got %d", len(got))
	}

	var de *notify.DeliveryError
	if got[0].Status != model.DeliveryFailed || !errors.As(got[0].Err, &de) {
		t.Errorf("expected failed delivery, got %+v", got[0])
	}
	if got[1].Status != model.DeliverySent {
		t.Errorf("second alert should still be sent, got %s", got[1].Status)
	}
	if rec := got[0].Record(); rec.Error == "" || rec.Status != model.DeliveryFailed {
		t.Errorf("unexpected record %+v", rec)
	}
	if len(observed) != 2 {
		t.Errorf("observer saw %d dispatches", len(observed))
	}
}

func TestCheckAnomalyRange(t *testing.T) {
	t.Parallel()

	s, _ := newSystem(t, 10)
	ctx := context.Background()

	if d := s.CheckAnomalyRange(ctx, "row_count", 10000, 10000, 15000, alert.Error); d != nil {
		t.Error("value on the lower bound should not alert")
	}
	if d := s.CheckAnomalyRange(ctx, "row_count", 15000, 10000, 15000, alert.Error); d != nil {
		t.Error("value on the upper bound should not alert")
	}
	d := s.CheckAnomalyRange(ctx, "row_count", 5000, 10000, 15000, alert.Error)
	if d == nil {
		t.Fatal("expected an alert")
	}
	if d.Alert.Source != alert.SourceAnomaly || d.Alert.Severity != alert.Error {
		t.Errorf("unexpected alert %+v", d.Alert)
	}
}

func TestReportPipelineFailure(t *testing.T) {
	t.Parallel()

	s, rec := newSystem(t, 1)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d := s.ReportPipelineFailure(ctx, "daily_ingestion", "timeout", alert.Critical)
		if d.Status != model.DeliverySent {
			t.Fatalf("pipeline alert %d: %s", i, d.Status)
		}
	}
	if len(rec.sent) != 3 || rec.sent[0].channel != "#oncall" {
		t.Errorf("unexpected deliveries %+v", rec.sent)
	}
}

func TestRunSeverity(t *testing.T) {
	t.Parallel()

	s, _ := newSystem(t, 10)
	tests := []struct {
		name  string
		score float64
		pct   float64
		want  alert.Severity
	}{
		{name: "healthy", score: 95, pct: 1, want: alert.Info},
		{name: "low score", score: 80, pct: 1, want: alert.Warning},
		{name: "many anomalies", score: 95, pct: 6, want: alert.Warning},
		{name: "very low score", score: 69.9, pct: 0, want: alert.Critical},
		{name: "anomaly flood", score: 99, pct: 10.5, want: alert.Critical},
		{name: "boundaries", score: 85, pct: 5, want: alert.Info},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := s.RunSeverity(&model.QualityReport{QualityScore: tt.score}, &model.AnomalyReport{AnomalyPercentage: tt.pct})
			if got != tt.want {
				t.Errorf("RunSeverity() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEvaluateRunLimitsPerDataset(t *testing.T) {
	t.Parallel()

	s, _ := newSystem(t, 1)
	ctx := context.Background()
	q := &model.QualityReport{QualityScore: 80}

	tests := []struct {
		dataset string
		want    model.DeliveryStatus
	}{
		{dataset: "orders", want: model.DeliverySent},
		{dataset: "users", want: model.DeliverySent},
		{dataset: "orders", want: model.DeliverySuppressed},
	}
	for i, tt := range tests {
		d := s.EvaluateRun(ctx, tt.dataset, q, nil)
		if d.Status != tt.want {
			t.Errorf("run %d (%s): status %s, want %s", i, tt.dataset, d.Status, tt.want)
		}
		if d.Alert.Key() != RunSource+":"+RunMetric(tt.dataset) {
			t.Errorf("run %d: unexpected key %s", i, d.Alert.Key())
		}
	}
}

func TestEvaluateRunAndDigest(t *testing.T) {
	t.Parallel()

	s, rec := newSystem(t, 10)
	ctx := context.Background()

	q := &model.QualityReport{QualityScore: 70.75, Completeness: 75, Uniqueness: 75, Validity: 50, Consistency: 85}
	a := &model.AnomalyReport{
		TotalAnomalies:    2,
		AnomalyPercentage: 6.67,
		MethodsUsed:       []string{"zscore"},
		AnomaliesByMethod: map[string]int{"zscore": 2},
	}
	d := s.EvaluateRun(ctx, "sales", q, a)
	if d.Alert.Severity != alert.Warning || d.Alert.Source != RunSource || d.Alert.MetricName != "sales.quality_score" {
		t.Errorf("unexpected run alert %+v", d.Alert)
	}
	if d.Alert.Metadata()["anomalies"] != 2 {
		t.Errorf("unexpected metadata %v", d.Alert.Metadata())
	}

	if err := s.SendDigest(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if len(rec.summaries) != 1 || rec.summaries[0].TotalAlerts != 1 {
		t.Errorf("unexpected summaries %+v", rec.summaries)
	}
	if st := s.Stats(); st.BySeverity["warning"] != 1 || st.BySource[RunSource] != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestDefaultsWithoutOptions(t *testing.T) {
	t.Parallel()

	s := New(Config{}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	got := s.CheckQuality(context.Background(), map[string]float64{"validity": 0.8})
	if len(got) != 1 || got[0].Alert.Severity != alert.Critical || got[0].Status != model.DeliverySent {
		t.Errorf("unexpected dispatch %+v", got)
	}
}
