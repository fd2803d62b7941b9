package ratelimit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sampleState() State {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return State{
		Emissions:     []time.Time{base, base.Add(time.Minute)},
		CooldownUntil: base.Add(30 * time.Minute),
	}
}

func assertStoreRoundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	empty, err := s.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(empty.Emissions) != 0 || !empty.CooldownUntil.IsZero() {
		t.Errorf("expected zero state, got %+v", empty)
	}

	want := sampleState()
	if err := s.Put(ctx, "data_quality:completeness", want); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	got, err := s.Get(ctx, "data_quality:completeness")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if len(got.Emissions) != len(want.Emissions) {
		t.Fatalf("expected %d emissions, got %d", len(want.Emissions), len(got.Emissions))
	}
	for i := range want.Emissions {
		if !got.Emissions[i].Equal(want.Emissions[i]) {
			t.Errorf("emission %d: got %v, want %v", i, got.Emissions[i], want.Emissions[i])
		}
	}
	if !got.CooldownUntil.Equal(want.CooldownUntil) {
		t.Errorf("cooldown: got %v, want %v", got.CooldownUntil, want.CooldownUntil)
	}

	// Overwrite clears the cooldown.
	if err := s.Put(ctx, "data_quality:completeness", State{Emissions: want.Emissions[:1]}); err != nil {
		t.Fatalf("failed to overwrite: %v", err)
	}
	got, err = s.Get(ctx, "data_quality:completeness")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if len(got.Emissions) != 1 || !got.CooldownUntil.IsZero() {
		t.Errorf("unexpected state after overwrite: %+v", got)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		assertStoreRoundTrip(t, NewMemoryStore(time.Hour))
	})

	t.Run("returned state is a copy", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := NewMemoryStore(0)
		if err := s.Put(ctx, "k", sampleState()); err != nil {
			t.Fatal(err)
		}
		got, _ := s.Get(ctx, "k")
		got.Emissions[0] = time.Time{}
		again, _ := s.Get(ctx, "k")
		if again.Emissions[0].IsZero() {
			t.Error("mutating a returned state changed the store")
		}
	})
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		s, err := OpenSQLite(t.TempDir(), DefaultSQLiteOptions())
		if err != nil {
			t.Fatalf("failed to open: %v", err)
		}
		defer s.Close()
		assertStoreRoundTrip(t, s)
	})

	t.Run("DeleteIdle removes only stale keys", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s, err := OpenSQLite(t.TempDir(), DefaultSQLiteOptions())
		if err != nil {
			t.Fatal(err)
		}
		defer s.Close()

		for _, k := range []string{"stale", "fresh"} {
			if err := s.Put(ctx, k, sampleState()); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE rate_limits SET updated_at = datetime('now', '-3 hours') WHERE alert_key = ?`, "stale"); err != nil {
			t.Fatal(err)
		}

		n, err := s.DeleteIdle(ctx, time.Hour)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 1 {
			t.Errorf("deleted %d keys, want 1", n)
		}
		if got, _ := s.Get(ctx, "stale"); len(got.Emissions) != 0 {
			t.Errorf("stale key survived: %+v", got)
		}
		if got, _ := s.Get(ctx, "fresh"); len(got.Emissions) != 2 {
			t.Errorf("fresh key was deleted: %+v", got)
		}
	})

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "data", "dqmon")
		s, err := OpenSQLite(dir, DefaultSQLiteOptions())
		if err != nil {
			t.Fatalf("failed to open: %v", err)
		}
		defer s.Close()
		if _, err := os.Stat(filepath.Join(dir, SQLiteFileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if s.Path() != filepath.Join(dir, SQLiteFileName) {
			t.Errorf("unexpected path %s", s.Path())
		}
	})

	t.Run("CreateIfNotExists=false requires an existing database", func(t *testing.T) {
		t.Parallel()
		_, err := OpenSQLite(filepath.Join(t.TempDir(), "nope"), SQLiteOptions{})
		if err == nil {
			t.Error("expected error for missing database")
		}
	})

	t.Run("state survives reopen", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		dir := t.TempDir()

		s, err := OpenSQLite(dir, DefaultSQLiteOptions())
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Put(ctx, "k", sampleState()); err != nil {
			t.Fatal(err)
		}
		_ = s.Close()

		s, err = OpenSQLite(dir, SQLiteOptions{EnableWAL: true})
		if err != nil {
			t.Fatal(err)
		}
		defer s.Close()
		got, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Emissions) != 2 {
			t.Errorf("expected persisted emissions, got %+v", got)
		}
	})

	t.Run("limiter on sqlite", func(t *testing.T) {
		t.Parallel()
		s, err := OpenSQLite(t.TempDir(), DefaultSQLiteOptions())
		if err != nil {
			t.Fatal(err)
		}
		clock := newFakeClock()
		l := newTestLimiter(t, clock, WithStore(s), WithMaxPerHour(1))
		ctx := context.Background()
		if d, _ := l.CanSend(ctx, "k"); !d.Allowed {
			t.Fatal("first call denied")
		}
		if d, _ := l.CanSend(ctx, "k"); d.Allowed {
			t.Fatal("second call allowed")
		}
	})
}

func TestRedisStore(t *testing.T) {
	t.Parallel()

	addr := os.Getenv("DQMON_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DQMON_TEST_REDIS_ADDR not set")
	}

	s, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr}, time.Minute)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer s.Close()
	assertStoreRoundTrip(t, s)
}
