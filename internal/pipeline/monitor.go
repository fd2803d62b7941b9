package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/dqmon/internal/alert"
	"github.com/nao1215/dqmon/internal/anomaly"
	"github.com/nao1215/dqmon/internal/dataset"
	"github.com/nao1215/dqmon/internal/decision"
	"github.com/nao1215/dqmon/internal/model"
	"github.com/nao1215/dqmon/internal/quality"
	"github.com/nao1215/dqmon/internal/report"
)

// DefaultDriftThreshold is the drift score above which a column counts as drifted.
const DefaultDriftThreshold = anomaly.DefaultDriftThreshold

// Monitor builds complete monitoring pipelines from shared components.
//
// The quality engine, the anomaly detector and the decision system are
// shared by every pipeline it builds; their histories and the rate limiter
// therefore span runs and data sources.
type Monitor struct {
	Engine   *quality.Engine
	Detector *anomaly.Detector
	System   *decision.System

	// Sink receives the report artifacts. Nil skips persistence.
	Sink report.Sink

	// QualityOptions are passed to every quality analysis.
	QualityOptions quality.Options

	// LoadOptions are passed to the load step.
	LoadOptions dataset.LoadOptions

	// Methods selects the anomaly detection methods. Empty means all.
	Methods []string

	// DriftThreshold defaults to DefaultDriftThreshold when zero.
	DriftThreshold float64

	// OnComplete is called with every finished report, failed ones included.
	OnComplete func(*model.RunReport)

	Logger *slog.Logger
}

func (m *Monitor) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

// Pipeline returns a fresh pipeline with every step. Step failures are
// reported through the decision system as critical pipeline alerts.
func (m *Monitor) Pipeline() *Pipeline {
	threshold := m.DriftThreshold
	if threshold == 0 {
		threshold = DefaultDriftThreshold
	}

	p := New(
		WithLogger(m.logger()),
		WithFailureHandler(m.reportFailure),
	)
	p.AddSteps(
		NewLoadStep(m.LoadOptions),
		NewQualityStep(m.Engine, m.QualityOptions),
		NewAnomalyStep(m.Detector, m.Methods...),
		NewDriftStep(m.Detector, threshold),
		NewThresholdAlertStep(m.System),
		NewRunAlertStep(m.System),
	)
	if m.Sink != nil {
		p.AddStep(NewPersistStep(m.Sink, WithPersistLogger(m.logger())))
	}
	return p
}

// Run executes one monitoring pass over src. The returned report is never
// nil; the error is the step error that stopped the run, if any.
func (m *Monitor) Run(ctx context.Context, src Source) (*model.RunReport, error) {
	run := NewRun(src)
	err := m.Pipeline().Execute(ctx, run)
	if m.OnComplete != nil {
		m.OnComplete(run.Report)
	}
	return run.Report, err
}

func (m *Monitor) reportFailure(ctx context.Context, run *Run, step string, err error) {
	if m.System == nil {
		return
	}
	name := run.Report.DatasetName
	if name == "" {
		name = run.Source.Path
	}
	d := m.System.ReportPipelineFailure(ctx, name,
		fmt.Sprintf("step %s failed: %v", step, err), alert.Critical)
	run.Report.AddAlert(d.Record())
}

// RunAll monitors sources concurrently and returns their reports in input order.
func (m *Monitor) RunAll(ctx context.Context, sources []Source, concurrency int) ([]*model.RunReport, error) {
	bp := NewBatchProcessor(m.Pipeline,
		WithConcurrency(concurrency),
		WithBatchLogger(m.logger()),
	)
	reports, err := bp.ProcessBatch(ctx, sources)
	if m.OnComplete != nil {
		for _, r := range reports {
			if r != nil {
				m.OnComplete(r)
			}
		}
	}
	return reports, err
}
