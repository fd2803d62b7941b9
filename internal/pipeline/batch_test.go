package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/dqmon/internal/model"
)

func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	t.Run("creates processor with defaults", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline { return New() })
		if bp.concurrency != DefaultBatchConcurrency {
			t.Errorf("expected default concurrency %d, got %d", DefaultBatchConcurrency, bp.concurrency)
		}
		if bp.logger == nil {
			t.Error("expected non-nil logger")
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline { return New() }, WithConcurrency(0))
		if bp.concurrency != DefaultBatchConcurrency {
			t.Errorf("expected concurrency %d, got %d", DefaultBatchConcurrency, bp.concurrency)
		}
	})

	t.Run("applies WithConcurrency option", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline { return New() }, WithConcurrency(7))
		if bp.concurrency != 7 {
			t.Errorf("expected concurrency 7, got %d", bp.concurrency)
		}
	})
}

func TestBatchProcessorProcessBatch(t *testing.T) {
	t.Parallel()

	sources := []Source{
		{Name: "a", Path: "a.csv"},
		{Name: "b", Path: "b.csv"},
		{Name: "c", Path: "c.csv"},
	}

	t.Run("processes all sources in input order", func(t *testing.T) {
		t.Parallel()

		var processed atomic.Int32
		bp := NewBatchProcessor(func() *Pipeline {
			p := New(WithLogger(discardLogger()))
			p.AddStep(&mockStep{name: "counter", doFunc: func(context.Context, *Run) error {
				processed.Add(1)
				return nil
			}})
			return p
		}, WithBatchLogger(discardLogger()))

		results, err := bp.ProcessBatch(context.Background(), sources)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if processed.Load() != 3 {
			t.Errorf("expected 3 processed, got %d", processed.Load())
		}
		for i, r := range results {
			if r == nil || r.DatasetName != sources[i].Name {
				t.Errorf("results[%d] = %+v, want dataset %s", i, r, sources[i].Name)
			}
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var current, peak atomic.Int32
		var mu sync.Mutex
		bp := NewBatchProcessor(func() *Pipeline {
			p := New(WithLogger(discardLogger()))
			p.AddStep(&mockStep{name: "slow", doFunc: func(context.Context, *Run) error {
				n := current.Add(1)
				mu.Lock()
				if n > peak.Load() {
					peak.Store(n)
				}
				mu.Unlock()
				time.Sleep(20 * time.Millisecond)
				current.Add(-1)
				return nil
			}})
			return p
		}, WithConcurrency(2), WithBatchLogger(discardLogger()))

		many := append(append([]Source{}, sources...), sources...)
		if _, err := bp.ProcessBatch(context.Background(), many); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if peak.Load() > 2 {
			t.Errorf("expected at most 2 concurrent runs, got %d", peak.Load())
		}
	})

	t.Run("a failed run does not stop the others", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline {
			p := New(WithLogger(discardLogger()))
			p.AddStep(&mockStep{name: "maybe", doFunc: func(_ context.Context, run *Run) error {
				if run.Source.Name == "b" {
					return errors.New("bad file")
				}
				return nil
			}})
			return p
		}, WithBatchLogger(discardLogger()))

		results, err := bp.ProcessBatch(context.Background(), sources)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results[1].ErrorMessage != "bad file" {
			t.Errorf("expected failure recorded for b, got %q", results[1].ErrorMessage)
		}
		if results[0].Failed() || results[2].Failed() {
			t.Error("expected a and c to succeed")
		}
	})

	t.Run("cancelled batch returns the context error", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		bp := NewBatchProcessor(func() *Pipeline { return New(WithLogger(discardLogger())) },
			WithBatchLogger(discardLogger()))
		_, err := bp.ProcessBatch(ctx, sources)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestBatchProcessorProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	bp := NewBatchProcessor(func() *Pipeline { return New(WithLogger(discardLogger())) },
		WithBatchLogger(discardLogger()))

	var mu sync.Mutex
	seen := make(map[int]string)
	err := bp.ProcessBatchWithCallback(context.Background(),
		[]Source{{Name: "x"}, {Name: "y"}},
		func(r *model.RunReport, i int) {
			mu.Lock()
			defer mu.Unlock()
			seen[i] = r.DatasetName
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen[0] != "x" || seen[1] != "y" {
		t.Errorf("unexpected callbacks: %v", seen)
	}
}
