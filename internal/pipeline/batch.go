package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/dqmon/internal/model"
)

// DefaultBatchConcurrency is the number of sources processed at once.
const DefaultBatchConcurrency = 4

// BatchProcessor handles concurrent monitoring of multiple data sources.
//
// Design decision: a separate type rather than batch support inside Pipeline,
// so the Pipeline stays focused on one run and the batch strategy can vary.
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each source so no state
	// leaks between runs.
	pipelineFactory func() *Pipeline

	concurrency int
	logger      *slog.Logger

	results []*model.RunReport
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent runs.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultBatchConcurrency,
		results:         make([]*model.RunReport, 0),
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch monitors sources concurrently, bounded by the concurrency limit.
//
// Returns one report per source in input order, including failed runs. A
// source that never started because the batch was cancelled has a nil entry.
// The error is non-nil only when the batch itself was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, sources []Source) ([]*model.RunReport, error) {
	bp.logger.Info("starting batch processing",
		"total_sources", len(sources),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()
	bp.results = make([]*model.RunReport, len(sources))

	err := bp.each(ctx, sources, func(r *model.RunReport, i int) {
		bp.mu.Lock()
		bp.results[i] = r
		bp.mu.Unlock()
	})

	bp.logger.Info("batch processing complete",
		"total_sources", len(sources),
		"elapsed", time.Since(startTime),
	)

	return bp.results, err
}

// ProcessBatchWithCallback monitors sources and calls callback for each
// finished run. The callback runs on the worker goroutine and must be safe
// for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	sources []Source,
	callback func(report *model.RunReport, index int),
) error {
	return bp.each(ctx, sources, callback)
}

func (bp *BatchProcessor) each(ctx context.Context, sources []Source, done func(*model.RunReport, int)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, src := range sources {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("monitoring source",
				"source", src.Path,
				"index", i+1,
				"total", len(sources),
			)

			run := NewRun(src)
			if err := bp.pipelineFactory().Execute(ctx, run); err != nil {
				// The error is recorded in the report; other sources continue.
				bp.logger.Warn("run failed", "source", src.Path, "error", err)
			}
			done(run.Report, i)
			return nil
		})
	}

	return g.Wait()
}
