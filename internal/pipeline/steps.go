package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/dqmon/internal/anomaly"
	"github.com/nao1215/dqmon/internal/dataset"
	"github.com/nao1215/dqmon/internal/decision"
	"github.com/nao1215/dqmon/internal/quality"
	"github.com/nao1215/dqmon/internal/report"
)

// Step names.
const (
	StepLoad     = "load"
	StepQuality  = "quality"
	StepAnomaly  = "anomaly"
	StepDrift    = "drift"
	StepAlerts   = "threshold_alerts"
	StepRunAlert = "run_alert"
	StepPersist  = "persist"
)

// ErrNotLoaded is returned by a step that needs the dataset when no load step ran.
var ErrNotLoaded = errors.New("dataset not loaded")

// Source is one monitored dataset.
type Source struct {
	// Name is the logical dataset name. Defaults to the file base name.
	Name string

	// Path is the dataset file (.csv, .tsv, .json, .jsonl).
	Path string

	// Reference is an optional dataset file to compare against for drift.
	Reference string
}

// LoadStep reads the dataset and the optional reference from disk.
type LoadStep struct {
	opts dataset.LoadOptions
}

// NewLoadStep creates a LoadStep. opts.Name is overridden by Source.Name.
func NewLoadStep(opts dataset.LoadOptions) *LoadStep {
	return &LoadStep{opts: opts}
}

// Name returns the step name.
func (s *LoadStep) Name() string { return StepLoad }

// Do loads run.Source.
func (s *LoadStep) Do(_ context.Context, run *Run) error {
	opts := s.opts
	opts.Name = run.Source.Name

	ds, err := dataset.LoadFile(run.Source.Path, opts)
	if err != nil {
		return err
	}
	run.Dataset = ds
	run.Report.DatasetName = ds.Name()

	if run.Source.Reference != "" {
		refOpts := s.opts
		refOpts.Name = ""
		ref, err := dataset.LoadFile(run.Source.Reference, refOpts)
		if err != nil {
			return fmt.Errorf("reference: %w", err)
		}
		run.Reference = ref
	}
	return nil
}

// QualityStep measures the four quality dimensions.
type QualityStep struct {
	engine *quality.Engine
	opts   quality.Options
}

// NewQualityStep creates a QualityStep.
func NewQualityStep(engine *quality.Engine, opts quality.Options) *QualityStep {
	return &QualityStep{engine: engine, opts: opts}
}

// Name returns the step name.
func (s *QualityStep) Name() string { return StepQuality }

// Do runs the quality analysis.
func (s *QualityStep) Do(ctx context.Context, run *Run) error {
	if run.Dataset == nil {
		return ErrNotLoaded
	}
	q, err := s.engine.Analyze(ctx, run.Dataset, s.opts)
	if err != nil {
		return err
	}
	run.Report.Quality = q
	return nil
}

// AnomalyStep runs the configured detection methods.
type AnomalyStep struct {
	detector *anomaly.Detector
	methods  []string
}

// NewAnomalyStep creates an AnomalyStep. Empty methods means all of them.
func NewAnomalyStep(detector *anomaly.Detector, methods ...string) *AnomalyStep {
	return &AnomalyStep{detector: detector, methods: methods}
}

// Name returns the step name.
func (s *AnomalyStep) Name() string { return StepAnomaly }

// Do runs anomaly detection.
func (s *AnomalyStep) Do(ctx context.Context, run *Run) error {
	if run.Dataset == nil {
		return ErrNotLoaded
	}
	a, err := s.detector.DetectAll(ctx, run.Dataset, s.methods...)
	if err != nil {
		return err
	}
	run.Report.Anomaly = a
	return nil
}

// DriftStep compares the dataset with the reference. It does nothing when
// the run has no reference.
type DriftStep struct {
	detector  *anomaly.Detector
	threshold float64
}

// NewDriftStep creates a DriftStep.
func NewDriftStep(detector *anomaly.Detector, threshold float64) *DriftStep {
	return &DriftStep{detector: detector, threshold: threshold}
}

// Name returns the step name.
func (s *DriftStep) Name() string { return StepDrift }

// Do runs drift detection.
func (s *DriftStep) Do(_ context.Context, run *Run) error {
	if run.Dataset == nil {
		return ErrNotLoaded
	}
	if run.Reference == nil {
		return nil
	}
	d, err := s.detector.DetectDrift(run.Dataset, run.Reference, s.threshold)
	if err != nil {
		return err
	}
	run.Report.Drift = d
	return nil
}

// ThresholdAlertStep gates the quality scores against the configured
// thresholds and delivers the resulting alerts.
type ThresholdAlertStep struct {
	system *decision.System
}

// NewThresholdAlertStep creates a ThresholdAlertStep.
func NewThresholdAlertStep(system *decision.System) *ThresholdAlertStep {
	return &ThresholdAlertStep{system: system}
}

// Name returns the step name.
func (s *ThresholdAlertStep) Name() string { return StepAlerts }

// Do checks the quality report. Delivery failures are recorded, not returned.
func (s *ThresholdAlertStep) Do(ctx context.Context, run *Run) error {
	if run.Report.Quality == nil {
		return nil
	}
	for _, d := range s.system.CheckQuality(ctx, run.Report.Quality.Scores()) {
		run.Report.AddAlert(d.Record())
	}
	return nil
}

// RunAlertStep sends the overall run alert and sets the run severity.
type RunAlertStep struct {
	system *decision.System
}

// NewRunAlertStep creates a RunAlertStep.
func NewRunAlertStep(system *decision.System) *RunAlertStep {
	return &RunAlertStep{system: system}
}

// Name returns the step name.
func (s *RunAlertStep) Name() string { return StepRunAlert }

// Do evaluates the run.
func (s *RunAlertStep) Do(ctx context.Context, run *Run) error {
	r := run.Report
	r.Severity = s.system.RunSeverity(r.Quality, r.Anomaly).String()
	d := s.system.EvaluateRun(ctx, r.DatasetName, r.Quality, r.Anomaly)
	r.AddAlert(d.Record())
	return nil
}

// PersistStep writes the report artifacts to a sink.
type PersistStep struct {
	sink   report.Sink
	clock  func() time.Time
	logger *slog.Logger
}

// PersistStepOption configures a PersistStep.
type PersistStepOption func(*PersistStep)

// WithPersistClock overrides the artifact timestamp source.
func WithPersistClock(clock func() time.Time) PersistStepOption {
	return func(s *PersistStep) {
		s.clock = clock
	}
}

// WithPersistLogger sets the logger.
func WithPersistLogger(logger *slog.Logger) PersistStepOption {
	return func(s *PersistStep) {
		s.logger = logger
	}
}

// NewPersistStep creates a PersistStep.
func NewPersistStep(sink report.Sink, opts ...PersistStepOption) *PersistStep {
	s := &PersistStep{
		sink:   sink,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *PersistStep) Name() string { return StepPersist }

// Do writes the artifacts.
func (s *PersistStep) Do(ctx context.Context, run *Run) error {
	run.Report.FinishedAt = s.clock().UTC()
	locs, err := report.WriteArtifacts(ctx, s.sink, run.Report, s.clock())
	if err != nil {
		return fmt.Errorf("failed to persist report: %w", err)
	}
	s.logger.Info("report artifacts written", "dataset", run.Report.DatasetName, "artifacts", len(locs))
	return nil
}
