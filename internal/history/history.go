// Package history provides the append-only, caller-owned logs kept by the
// quality engine, the anomaly detector and the alert manager.
//
// A Log is safe for concurrent use. Callers that want an engine's history to
// outlive the engine, or to share one history between engines, create the
// Log themselves and inject it.
package history

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Log is an append-only list of entries.
type Log[T any] struct {
	mu      sync.RWMutex
	entries []T
}

// New returns an empty log.
func New[T any]() *Log[T] {
	return &Log[T]{}
}

// Append adds entries to the end of the log.
func (l *Log[T]) Append(entries ...T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entries...)
}

// Len returns the number of entries.
func (l *Log[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// All returns a copy of every entry in insertion order.
func (l *Log[T]) All() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]T, len(l.entries))
	copy(out, l.entries)
	return out
}

// Last returns the most recent entry.
func (l *Log[T]) Last() (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var zero T
	if len(l.entries) == 0 {
		return zero, false
	}
	return l.entries[len(l.entries)-1], true
}

// Filter returns the entries for which keep returns true.
func (l *Log[T]) Filter(keep func(T) bool) []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []T
	for _, e := range l.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Retain drops every entry for which keep returns false and returns how many
// were removed. It is the only way entries leave a log.
func (l *Log[T]) Retain(keep func(T) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.entries[:0]
	for _, e := range l.entries {
		if keep(e) {
			kept = append(kept, e)
		}
	}
	removed := len(l.entries) - len(kept)
	var zero T
	for i := len(kept); i < len(l.entries); i++ {
		l.entries[i] = zero
	}
	l.entries = kept
	return removed
}

// Save writes every entry as a JSON array.
func (l *Log[T]) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(l.All()); err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	return nil
}

// Load appends the entries of a JSON array written by Save.
func (l *Log[T]) Load(r io.Reader) error {
	var entries []T
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode history: %w", err)
	}
	l.Append(entries...)
	return nil
}
