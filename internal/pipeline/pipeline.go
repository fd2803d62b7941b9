package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/dqmon/internal/dataset"
	"github.com/nao1215/dqmon/internal/model"
)

// Run is the state shared by the steps of one pipeline execution.
type Run struct {
	// Source describes what is being monitored.
	Source Source

	// Report accumulates the results.
	Report *model.RunReport

	// Dataset is set by the load step.
	Dataset *dataset.Dataset

	// Reference is set by the load step when Source.Reference is not empty.
	Reference *dataset.Dataset
}

// NewRun creates a Run with a fresh report for src.
func NewRun(src Source) *Run {
	r := model.NewRunReport(src.Path)
	r.DatasetName = src.Name
	r.ReferenceSource = src.Reference
	return &Run{Source: src, Report: r}
}

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, each receiving the Run filled in by the
// previous steps.
type Step interface {
	// Do executes the step. Errors that should stop the run are returned;
	// recoverable problems are recorded in the report and Do returns nil.
	Do(ctx context.Context, run *Run) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// FailureHandler is called once when a step fails.
type FailureHandler func(ctx context.Context, run *Run, step string, err error)

// Pipeline orchestrates the execution of multiple steps.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
	onFailure       FailureHandler
	clock           func() time.Time
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails.
//
// Design decision: the default is to stop, because later steps depend on
// earlier ones (no quality report means nothing to gate).
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// WithFailureHandler registers a callback for step failures. It runs with a
// context that is not cancelled when the run's context is, so a timed-out run
// can still report its failure.
func WithFailureHandler(fn FailureHandler) Option {
	return func(p *Pipeline) {
		p.onFailure = fn
	}
}

// WithClock overrides the clock used for the report's finish time.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence.
//
// Cancellation is checked before each step; a cancelled run is marked
// TimedOut. Returns the first step error unless continueOnError is set, in
// which case errors are only recorded in the report.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	report := run.Report
	defer func() {
		report.FinishedAt = p.clock().UTC()
	}()

	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			report.TimedOut = true
			p.fail(ctx, run, step.Name(), ctx.Err())
			return ctx.Err()
		default:
		}

		p.logger.Info("executing step",
			"step", step.Name(),
			"dataset", report.DatasetName,
		)

		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"dataset", report.DatasetName,
				"error", err,
			)

			report.Error = err
			report.ErrorMessage = err.Error()
			p.fail(ctx, run, step.Name(), err)

			if !p.continueOnError {
				return err
			}
		} else {
			p.logger.Debug("step completed",
				"step", step.Name(),
				"dataset", report.DatasetName,
			)
		}

		report.PerformedSteps = append(report.PerformedSteps, step.Name())
	}

	return nil
}

func (p *Pipeline) fail(ctx context.Context, run *Run, step string, err error) {
	if p.onFailure == nil {
		return
	}
	p.onFailure(context.WithoutCancel(ctx), run, step, err)
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
