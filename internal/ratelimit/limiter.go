package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Defaults.
const (
	DefaultMaxPerHour = 10
	DefaultCooldown   = 30 * time.Minute

	// Window is the span of the sliding emission window.
	Window = time.Hour
)

var (
	// ErrInvalidMaxPerHour is returned for a non-positive hourly cap.
	ErrInvalidMaxPerHour = errors.New("max alerts per hour must be greater than 0")

	// ErrInvalidCooldown is returned for a non-positive cooldown.
	ErrInvalidCooldown = errors.New("cooldown must be greater than 0")
)

// Decision is the outcome of CanSend. A denial is a policy outcome, not an
// error.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Stats describes the current state of one key.
type Stats struct {
	AlertKey       string     `json:"alert_key"`
	AlertsLastHour int        `json:"alerts_last_hour"`
	MaxPerHour     int        `json:"max_per_hour"`
	InCooldown     bool       `json:"in_cooldown"`
	CooldownUntil  *time.Time `json:"cooldown_until"`
}

// Limiter enforces the hourly cap and cooldown per key.
//
// CanSend reads and writes a key's state as one step under a mutex, so a
// single Limiter is safe for concurrent use. Two processes sharing a
// RedisStore are not serialized against each other.
type Limiter struct {
	mu         sync.Mutex
	store      Store
	maxPerHour int
	cooldown   time.Duration
	clock      func() time.Time
	logger     *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithStore sets the state store. The default is a MemoryStore.
func WithStore(s Store) Option {
	return func(l *Limiter) {
		l.store = s
	}
}

// WithMaxPerHour sets the hourly cap per key.
func WithMaxPerHour(n int) Option {
	return func(l *Limiter) {
		l.maxPerHour = n
	}
}

// WithCooldown sets how long a key stays blocked after reaching the cap.
func WithCooldown(d time.Duration) Option {
	return func(l *Limiter) {
		l.cooldown = d
	}
}

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		l.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New creates a Limiter.
func New(opts ...Option) (*Limiter, error) {
	l := &Limiter{
		maxPerHour: DefaultMaxPerHour,
		cooldown:   DefaultCooldown,
		clock:      time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.maxPerHour <= 0 {
		return nil, ErrInvalidMaxPerHour
	}
	if l.cooldown <= 0 {
		return nil, ErrInvalidCooldown
	}
	if l.store == nil {
		l.store = NewMemoryStore(Window + l.cooldown)
	}
	return l, nil
}

// MaxPerHour returns the hourly cap.
func (l *Limiter) MaxPerHour() int { return l.maxPerHour }

// Cooldown returns the cooldown length.
func (l *Limiter) Cooldown() time.Duration { return l.cooldown }

// CanSend decides whether an alert with key may be emitted now and, when it
// may, records the emission.
func (l *Limiter) CanSend(ctx context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.store.Get(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load rate limit state for %q: %w", key, err)
	}
	now := l.clock()

	if !state.CooldownUntil.IsZero() {
		if now.Before(state.CooldownUntil) {
			remaining := int(state.CooldownUntil.Sub(now) / time.Minute)
			return Decision{
				Allowed: false,
				Reason:  fmt.Sprintf("in cooldown for %d more minutes", remaining),
			}, nil
		}
		state.CooldownUntil = time.Time{}
	}

	state.Emissions = prune(state.Emissions, now.Add(-Window))

	if len(state.Emissions) >= l.maxPerHour {
		state.CooldownUntil = now.Add(l.cooldown)
		if err := l.store.Put(ctx, key, state); err != nil {
			return Decision{}, fmt.Errorf("failed to save rate limit state for %q: %w", key, err)
		}
		l.logger.Debug("alert key entered cooldown",
			"key", key,
			"until", state.CooldownUntil,
		)
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("limit of %d alerts per hour reached", l.maxPerHour),
		}, nil
	}

	state.Emissions = append(state.Emissions, now)
	if err := l.store.Put(ctx, key, state); err != nil {
		return Decision{}, fmt.Errorf("failed to save rate limit state for %q: %w", key, err)
	}
	return Decision{Allowed: true, Reason: "OK"}, nil
}

// Stats reports the state of key without recording anything.
func (l *Limiter) Stats(ctx context.Context, key string) (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.store.Get(ctx, key)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to load rate limit state for %q: %w", key, err)
	}
	now := l.clock()

	stats := Stats{
		AlertKey:       key,
		AlertsLastHour: len(prune(state.Emissions, now.Add(-Window))),
		MaxPerHour:     l.maxPerHour,
	}
	if !state.CooldownUntil.IsZero() && now.Before(state.CooldownUntil) {
		until := state.CooldownUntil
		stats.InCooldown = true
		stats.CooldownUntil = &until
	}
	return stats, nil
}

// Close closes the underlying store.
func (l *Limiter) Close() error {
	return l.store.Close()
}

// prune keeps the timestamps strictly after cutoff.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	out := ts[:0:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
