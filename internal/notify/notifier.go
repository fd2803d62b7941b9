package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/dqmon/internal/alert"
)

// Notifier delivers alerts and alert digests.
type Notifier interface {
	// Name identifies the notifier in logs and errors.
	Name() string

	// Send delivers a. channel and mentions may be empty.
	Send(ctx context.Context, a alert.Alert, channel string, mentions []string) error

	// SendSummary delivers an alert digest.
	SendSummary(ctx context.Context, s alert.Summary, channel string) error
}

// DeliveryError wraps a failure reported by a notifier.
type DeliveryError struct {
	Notifier string
	Err      error
}

// Error implements error.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Notifier, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeliveryError) Unwrap() error { return e.Err }

func deliveryError(name string, err error) error {
	if err == nil {
		return nil
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		return err
	}
	return &DeliveryError{Notifier: name, Err: err}
}

// Event is the JSON document published by the bus notifiers.
type Event struct {
	Type     string         `json:"type"`
	Alert    *alert.Alert   `json:"alert,omitempty"`
	Summary  *alert.Summary `json:"summary,omitempty"`
	Channel  string         `json:"channel,omitempty"`
	Mentions []string       `json:"mentions,omitempty"`
	SentAt   time.Time      `json:"sent_at"`
}

// Event types.
const (
	EventAlert   = "alert"
	EventSummary = "summary"
)

func alertEvent(a alert.Alert, channel string, mentions []string) Event {
	return Event{Type: EventAlert, Alert: &a, Channel: channel, Mentions: mentions, SentAt: time.Now().UTC()}
}

func summaryEvent(s alert.Summary, channel string) Event {
	return Event{Type: EventSummary, Summary: &s, Channel: channel, SentAt: time.Now().UTC()}
}

// Log writes alerts to a logger. It is the notifier of last resort when
// nothing else is configured.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a Log notifier. A nil logger means slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Name implements Notifier.
func (l *Log) Name() string { return "log" }

// Send implements Notifier.
func (l *Log) Send(ctx context.Context, a alert.Alert, channel string, mentions []string) error {
	l.logger.Log(ctx, logLevel(a.Severity), a.Title,
		"alert_id", a.ID,
		"severity", a.Severity.String(),
		"source", a.Source,
		"message", a.Message,
		"channel", channel,
		"mentions", mentions,
	)
	return nil
}

// SendSummary implements Notifier.
func (l *Log) SendSummary(ctx context.Context, s alert.Summary, channel string) error {
	l.logger.InfoContext(ctx, "alert summary",
		"total_alerts", s.TotalAlerts,
		"last_24h", s.Last24h,
		"by_severity", s.BySeverity,
		"by_source", s.BySource,
		"channel", channel,
	)
	return nil
}

func logLevel(s alert.Severity) slog.Level {
	switch s {
	case alert.Critical, alert.Error:
		return slog.LevelError
	case alert.Warning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Multi sends to every notifier and joins their errors.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a Multi over notifiers.
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

// Name implements Notifier.
func (m *Multi) Name() string { return "multi" }

// Len returns the number of wrapped notifiers.
func (m *Multi) Len() int { return len(m.notifiers) }

// Send implements Notifier. Every notifier is tried even when an earlier one
// fails.
func (m *Multi) Send(ctx context.Context, a alert.Alert, channel string, mentions []string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, a, channel, mentions); err != nil {
			errs = append(errs, deliveryError(n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// SendSummary implements Notifier.
func (m *Multi) SendSummary(ctx context.Context, s alert.Summary, channel string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.SendSummary(ctx, s, channel); err != nil {
			errs = append(errs, deliveryError(n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every wrapped notifier that has a Close method.
func (m *Multi) Close() error {
	var errs []error
	for _, n := range m.notifiers {
		if c, ok := n.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
