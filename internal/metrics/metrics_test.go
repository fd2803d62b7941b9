package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nao1215/dqmon/internal/alert"
	"github.com/nao1215/dqmon/internal/decision"
	"github.com/nao1215/dqmon/internal/model"
)

func sampleRun() *model.RunReport {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := model.NewRunReport("orders.csv")
	r.DatasetName = "orders"
	r.StartedAt = start
	r.FinishedAt = start.Add(1500 * time.Millisecond)
	r.Quality = &model.QualityReport{
		Completeness: 50,
		Uniqueness:   100,
		Validity:     100,
		Consistency:  100,
		QualityScore: 87.5,
	}
	r.Anomaly = &model.AnomalyReport{
		AnomalyPercentage: 6.67,
		MethodsUsed:       []string{"zscore", "iqr"},
		AnomaliesByMethod: map[string]int{"zscore": 2, "iqr": 3},
	}
	r.Drift = &model.DriftReport{DriftScores: map[string]float64{"amount": 1.6667}}
	return r
}

func TestObserveRun(t *testing.T) {
	t.Parallel()

	c := New()
	c.ObserveRun(sampleRun())

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{name: "quality score", got: testutil.ToFloat64(c.qualityScore.WithLabelValues("orders")), want: 87.5},
		{name: "completeness", got: testutil.ToFloat64(c.dimensionScore.WithLabelValues("orders", "completeness")), want: 50},
		{name: "anomaly pct", got: testutil.ToFloat64(c.anomalyPct.WithLabelValues("orders")), want: 6.67},
		{name: "iqr rows", got: testutil.ToFloat64(c.anomalyRows.WithLabelValues("orders", "iqr")), want: 3},
		{name: "drift", got: testutil.ToFloat64(c.driftScore.WithLabelValues("orders", "amount")), want: 1.6667},
		{name: "success runs", got: testutil.ToFloat64(c.runs.WithLabelValues("orders", "success")), want: 1},
		{name: "last run", got: testutil.ToFloat64(c.lastRun.WithLabelValues("orders")), want: float64(time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC).Unix())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestObserveRunOutcome(t *testing.T) {
	t.Parallel()

	c := New()

	failed := model.NewRunReport("x.csv")
	failed.DatasetName = "x"
	failed.ErrorMessage = "dataset is empty"
	c.ObserveRun(failed)

	timedOut := model.NewRunReport("x.csv")
	timedOut.DatasetName = "x"
	timedOut.TimedOut = true
	c.ObserveRun(timedOut)

	if got := testutil.ToFloat64(c.runs.WithLabelValues("x", "failure")); got != 1 {
		t.Errorf("failure runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.runs.WithLabelValues("x", "timeout")); got != 1 {
		t.Errorf("timeout runs = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.qualityScore); got != 0 {
		t.Errorf("expected no quality series for failed runs, got %d", got)
	}
}

func TestObserveDispatch(t *testing.T) {
	t.Parallel()

	c := New()
	a := alert.New(alert.Warning, "Quality below expected: validity", "", alert.SourceQuality)

	c.ObserveDispatch(decision.Dispatch{Alert: a, Status: model.DeliverySent})
	c.ObserveDispatch(decision.Dispatch{Alert: a, Status: model.DeliverySent})
	c.ObserveDispatch(decision.Dispatch{Alert: a, Status: model.DeliverySuppressed})

	if got := testutil.ToFloat64(c.alerts.WithLabelValues("data_quality", "warning", "sent")); got != 2 {
		t.Errorf("sent = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.alerts.WithLabelValues("data_quality", "warning", "suppressed")); got != 1 {
		t.Errorf("suppressed = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()

	c := New()
	c.ObserveRun(sampleRun())

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL) //nolint:noctx // test server
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`dqmon_quality_score{dataset="orders"} 87.5`,
		`dqmon_runs_total{dataset="orders",outcome="success"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected exposition to contain %q", want)
		}
	}
}
