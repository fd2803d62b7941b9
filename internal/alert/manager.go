package alert

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/nao1215/dqmon/internal/history"
	"github.com/nao1215/dqmon/internal/ratelimit"
)

// Default query windows.
const (
	RecentWindow    = 24 * time.Hour
	RetentionWindow = 7 * 24 * time.Hour
)

// ErrRateLimitingDisabled is returned by LimiterStats when the manager has
// no limiter.
var ErrRateLimitingDisabled = errors.New("rate limiting is disabled")

// Summary counts alerts in the manager's history.
type Summary struct {
	TotalAlerts int            `json:"total_alerts"`
	Last24h     int            `json:"last_24h"`
	BySeverity  map[string]int `json:"by_severity"`
	BySource    map[string]int `json:"by_source"`
}

// Sources returns the BySource keys in order.
func (s Summary) Sources() []string {
	out := make([]string, 0, len(s.BySource))
	for k := range s.BySource {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Manager records alerts and decides whether they may be sent.
type Manager struct {
	history *history.Log[Alert]
	limiter *ratelimit.Limiter
	clock   func() time.Time
	logger  *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLimiter enables rate limiting through l.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(m *Manager) {
		m.limiter = l
	}
}

// WithHistory injects the alert history.
func WithHistory(h *history.Log[Alert]) Option {
	return func(m *Manager) {
		m.history = h
	}
}

// WithClock sets the time source used for ids, timestamps and queries.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager. Without WithLimiter every alert may be sent.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.history == nil {
		m.history = history.New[Alert]()
	}
	return m
}

// History returns the alert history.
func (m *Manager) History() *history.Log[Alert] { return m.history }

// Create stamps a with the manager clock and appends it to history.
func (m *Manager) Create(a Alert) Alert {
	a.Timestamp = m.clock()
	m.history.Append(a)
	m.logger.Debug("alert created",
		"id", a.ID,
		"severity", a.Severity.String(),
		"key", a.Key(),
	)
	return a
}

// ShouldSend decides whether a may be emitted. Critical alerts always may.
func (m *Manager) ShouldSend(ctx context.Context, a Alert) (ratelimit.Decision, error) {
	if m.limiter == nil {
		return ratelimit.Decision{Allowed: true, Reason: "rate limiting disabled"}, nil
	}
	if a.Severity.BypassesRateLimit() {
		return ratelimit.Decision{Allowed: true, Reason: "critical alert bypasses rate limiting"}, nil
	}
	return m.limiter.CanSend(ctx, a.Key())
}

// BySeverity returns the alerts of level s in creation order.
func (m *Manager) BySeverity(s Severity) []Alert {
	return m.history.Filter(func(a Alert) bool { return a.Severity == s })
}

// Recent returns the alerts created within window of now.
func (m *Manager) Recent(window time.Duration) []Alert {
	cutoff := m.clock().Add(-window)
	return m.history.Filter(func(a Alert) bool { return a.Timestamp.After(cutoff) })
}

// ClearOlderThan drops alerts older than age and returns how many were dropped.
func (m *Manager) ClearOlderThan(age time.Duration) int {
	cutoff := m.clock().Add(-age)
	removed := m.history.Retain(func(a Alert) bool { return a.Timestamp.After(cutoff) })
	if removed > 0 {
		m.logger.Info("old alerts removed", "count", removed, "older_than", age)
	}
	return removed
}

// Summary counts all alerts and breaks down the last 24 hours by severity
// and source.
func (m *Manager) Summary() Summary {
	recent := m.Recent(RecentWindow)
	s := Summary{
		TotalAlerts: m.history.Len(),
		Last24h:     len(recent),
		BySeverity:  make(map[string]int, 4),
		BySource:    make(map[string]int),
	}
	for _, sev := range Severities() {
		s.BySeverity[sev.String()] = 0
	}
	for _, a := range recent {
		s.BySeverity[a.Severity.String()]++
		s.BySource[a.Source]++
	}
	return s
}

// LimiterStats reports the limiter state of key.
func (m *Manager) LimiterStats(ctx context.Context, key string) (ratelimit.Stats, error) {
	if m.limiter == nil {
		return ratelimit.Stats{}, ErrRateLimitingDisabled
	}
	return m.limiter.Stats(ctx, key)
}
