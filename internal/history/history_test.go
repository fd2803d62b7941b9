package history

import (
	"bytes"
	"sync"
	"testing"
)

func TestLog(t *testing.T) {
	t.Parallel()

	t.Run("append and read back", func(t *testing.T) {
		t.Parallel()
		l := New[int]()
		l.Append(1, 2, 3)
		if l.Len() != 3 {
			t.Fatalf("expected 3 entries, got %d", l.Len())
		}
		last, ok := l.Last()
		if !ok || last != 3 {
			t.Errorf("Last() = %d, %v", last, ok)
		}
		all := l.All()
		all[0] = 99
		if l.All()[0] != 1 {
			t.Error("expected All to return a copy")
		}
	})

	t.Run("retain removes entries", func(t *testing.T) {
		t.Parallel()
		l := New[int]()
		l.Append(1, 2, 3, 4)
		removed := l.Retain(func(v int) bool { return v%2 == 0 })
		if removed != 2 || l.Len() != 2 {
			t.Errorf("Retain() removed %d, left %d", removed, l.Len())
		}
	})

	t.Run("save and load", func(t *testing.T) {
		t.Parallel()
		l := New[string]()
		l.Append("a", "b")

		var buf bytes.Buffer
		if err := l.Save(&buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		restored := New[string]()
		if err := restored.Load(&buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := restored.All(); len(got) != 2 || got[1] != "b" {
			t.Errorf("unexpected restored entries: %v", got)
		}
	})

	t.Run("concurrent appends", func(t *testing.T) {
		t.Parallel()
		l := New[int]()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(v int) {
				defer wg.Done()
				l.Append(v)
			}(i)
		}
		wg.Wait()
		if l.Len() != 50 {
			t.Errorf("expected 50 entries, got %d", l.Len())
		}
	})
}
