package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/dqmon/internal/decision"
	"github.com/nao1215/dqmon/internal/model"
)

// Namespace prefixes every metric name.
const Namespace = "dqmon"

// Collector holds the dqmon metrics and the registry they are registered in.
//
// Design decision: each Collector owns its registry instead of using the
// global default, so tests and multiple watchers do not collide.
type Collector struct {
	registry *prometheus.Registry

	qualityScore   *prometheus.GaugeVec
	dimensionScore *prometheus.GaugeVec
	anomalyRows    *prometheus.GaugeVec
	anomalyPct     *prometheus.GaugeVec
	driftScore     *prometheus.GaugeVec
	runs           *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	lastRun        *prometheus.GaugeVec
	alerts         *prometheus.CounterVec
}

// New creates a Collector with a fresh registry. Go runtime and process
// collectors are registered alongside the dqmon metrics.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		qualityScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "quality_score",
			Help:      "Weighted quality score of the latest run, in percent.",
		}, []string{"dataset"}),
		dimensionScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "quality_dimension_score",
			Help:      "Score of one quality dimension in the latest run, in percent.",
		}, []string{"dataset", "dimension"}),
		anomalyRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "anomaly_rows",
			Help:      "Rows flagged by a detection method in the latest run.",
		}, []string{"dataset", "method"}),
		anomalyPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "anomaly_percentage",
			Help:      "Share of rows flagged by any method in the latest run.",
		}, []string{"dataset"}),
		driftScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "drift_score",
			Help:      "Drift score of a numeric column against the reference dataset.",
		}, []string{"dataset", "column"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Monitoring runs by outcome.",
		}, []string{"dataset", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of monitoring runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"dataset"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the latest run finished.",
		}, []string{"dataset"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "alerts_total",
			Help:      "Alerts produced by the decision layer, by delivery outcome.",
		}, []string{"source", "severity", "status"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.qualityScore,
		c.dimensionScore,
		c.anomalyRows,
		c.anomalyPct,
		c.driftScore,
		c.runs,
		c.runDuration,
		c.lastRun,
		c.alerts,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveRun records the results of one run. Missing sections leave their
// gauges untouched so the last known value stays visible.
func (c *Collector) ObserveRun(r *model.RunReport) {
	name := r.DatasetName

	outcome := "success"
	switch {
	case r.TimedOut:
		outcome = "timeout"
	case r.Failed():
		outcome = "failure"
	}
	c.runs.WithLabelValues(name, outcome).Inc()

	if !r.FinishedAt.IsZero() {
		c.lastRun.WithLabelValues(name).Set(float64(r.FinishedAt.Unix()))
		if d := r.FinishedAt.Sub(r.StartedAt); d >= 0 {
			c.runDuration.WithLabelValues(name).Observe(d.Seconds())
		}
	}

	if q := r.Quality; q != nil {
		c.qualityScore.WithLabelValues(name).Set(q.QualityScore)
		for dim, score := range q.Scores() {
			c.dimensionScore.WithLabelValues(name, dim).Set(score * 100)
		}
	}

	if a := r.Anomaly; a != nil {
		c.anomalyPct.WithLabelValues(name).Set(a.AnomalyPercentage)
		for _, m := range a.MethodsUsed {
			c.anomalyRows.WithLabelValues(name, m).Set(float64(a.AnomaliesByMethod[m]))
		}
	}

	if d := r.Drift; d != nil {
		for col, score := range d.DriftScores {
			c.driftScore.WithLabelValues(name, col).Set(score)
		}
	}
}

// ObserveDispatch counts one alert outcome. It matches decision.WithObserver.
func (c *Collector) ObserveDispatch(d decision.Dispatch) {
	c.alerts.WithLabelValues(d.Alert.Source, d.Alert.Severity.String(), string(d.Status)).Inc()
}
