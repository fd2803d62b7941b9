package alert

import (
	"fmt"
	"strings"
)

// Severity is the urgency of an alert.
//
// Design decision: an ordered iota type rather than strings, so levels can
// be compared with < and the rate limit bypass lives in one predicate.
type Severity int

const (
	// Info is informational only and needs no action.
	// Example: a run summary with a score of 85 or more and at most 5% of
	// rows flagged as anomalies.
	Info Severity = iota

	// Warning needs attention soon but nothing is broken yet.
	// Examples: completeness below 95%, more than 5% of rows flagged as
	// anomalies.
	Warning

	// Error is a breached quality or anomaly expectation.
	// Examples: completeness below 90%, uniqueness below 95%.
	// Repeats are rate limited like warnings.
	Error

	// Critical requires immediate action and is never rate limited.
	// Examples: a failed pipeline step, a run score below 70.
	Critical
)

// Severities returns every level from least to most severe.
func Severities() []Severity {
	return []Severity{Info, Warning, Error, Critical}
}

// String returns the lower-case level name.
func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// BypassesRateLimit reports whether alerts of this level skip the limiter.
func (s Severity) BypassesRateLimit() bool {
	return s == Critical
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	if s < Info || s > Critical {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity parses a level name, ignoring case.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return Info, nil
	case "warning", "warn":
		return Warning, nil
	case "error":
		return Error, nil
	case "critical":
		return Critical, nil
	default:
		return Info, fmt.Errorf("unknown severity %q", s)
	}
}
