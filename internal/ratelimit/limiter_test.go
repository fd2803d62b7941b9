package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, clock *fakeClock, opts ...Option) *Limiter {
	t.Helper()
	l, err := New(append([]Option{WithClock(clock.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    []Option
		wantErr error
	}{
		{name: "defaults", opts: nil},
		{name: "zero cap", opts: []Option{WithMaxPerHour(0)}, wantErr: ErrInvalidMaxPerHour},
		{name: "negative cooldown", opts: []Option{WithCooldown(-time.Minute)}, wantErr: ErrInvalidCooldown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, err := New(tt.opts...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if err == nil {
				if l.MaxPerHour() != DefaultMaxPerHour || l.Cooldown() != DefaultCooldown {
					t.Errorf("unexpected defaults: %d %v", l.MaxPerHour(), l.Cooldown())
				}
			}
		})
	}
}

func TestLimiterCanSend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLimiter(t, clock, WithMaxPerHour(3))

	for i := 0; i < 3; i++ {
		d, err := l.CanSend(ctx, "data_quality:completeness")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("call %d: expected allowed, got %q", i+1, d.Reason)
		}
		clock.Advance(time.Minute)
	}

	d, err := l.CanSend(ctx, "data_quality:completeness")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected 4th call to be denied")
	}
	if d.Reason != "limit of 3 alerts per hour reached" {
		t.Errorf("unexpected reason %q", d.Reason)
	}

	clock.Advance(10 * time.Minute)
	d, _ = l.CanSend(ctx, "data_quality:completeness")
	if d.Allowed || d.Reason != "in cooldown for 20 more minutes" {
		t.Errorf("expected cooldown denial, got %+v", d)
	}

	// Other keys are unaffected.
	d, _ = l.CanSend(ctx, "data_quality:uniqueness")
	if !d.Allowed {
		t.Errorf("expected other key to be allowed, got %q", d.Reason)
	}

	// Past the cooldown and with the window drained.
	clock.Advance(time.Hour)
	d, err = l.CanSend(ctx, "data_quality:completeness")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Errorf("expected allowed after cooldown, got %q", d.Reason)
	}
}

func TestLimiterReentersCooldownWhileWindowIsFull(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLimiter(t, clock, WithMaxPerHour(2), WithCooldown(5*time.Minute))

	for i := 0; i < 2; i++ {
		if d, _ := l.CanSend(ctx, "k"); !d.Allowed {
			t.Fatalf("call %d denied", i+1)
		}
	}
	if d, _ := l.CanSend(ctx, "k"); d.Allowed {
		t.Fatal("expected cap denial")
	}

	// Cooldown over, but both emissions are still inside the hour.
	clock.Advance(6 * time.Minute)
	d, _ := l.CanSend(ctx, "k")
	if d.Allowed || d.Reason != "limit of 2 alerts per hour reached" {
		t.Errorf("expected a fresh cap denial, got %+v", d)
	}
}

func TestLimiterStats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLimiter(t, clock, WithMaxPerHour(2))

	for i := 0; i < 3; i++ {
		if _, err := l.CanSend(ctx, "pipeline:ingest"); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := l.Stats(ctx, "pipeline:ingest")
	if err != nil {
		t.Fatal(err)
	}
	if stats.AlertKey != "pipeline:ingest" || stats.AlertsLastHour != 2 || stats.MaxPerHour != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if !stats.InCooldown || stats.CooldownUntil == nil {
		t.Fatalf("expected cooldown, got %+v", stats)
	}
	if want := clock.Now().Add(DefaultCooldown); !stats.CooldownUntil.Equal(want) {
		t.Errorf("cooldown until %v, want %v", stats.CooldownUntil, want)
	}

	clock.Advance(2 * time.Hour)
	stats, err = l.Stats(ctx, "pipeline:ingest")
	if err != nil {
		t.Fatal(err)
	}
	if stats.InCooldown || stats.AlertsLastHour != 0 {
		t.Errorf("expected idle key, got %+v", stats)
	}
}

func TestLimiterConcurrentCallers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := newTestLimiter(t, newFakeClock(), WithMaxPerHour(5))

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.CanSend(ctx, "shared")
			if err != nil {
				t.Error(err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 5 {
		t.Errorf("expected exactly 5 allowed, got %d", allowed)
	}
}

type failingStore struct{ MemoryStore }

func (failingStore) Get(context.Context, string) (State, error) {
	return State{}, errors.New("store down")
}

func TestLimiterStoreError(t *testing.T) {
	t.Parallel()

	l := newTestLimiter(t, newFakeClock(), WithStore(&failingStore{MemoryStore: *NewMemoryStore(0)}))
	if _, err := l.CanSend(context.Background(), "k"); err == nil {
		t.Error("expected store error")
	}
}
