package config

import "errors"

// Configuration validation errors returned by Config.Validate.
//
// Design decision: sentinels rather than ad hoc messages so callers can use
// errors.Is. Validate wraps them with the offending key and value.
var (
	// ErrInvalidMaxAlerts is returned when rate_limit.max_alerts_per_hour is not positive.
	ErrInvalidMaxAlerts = errors.New("invalid rate_limit.max_alerts_per_hour: must be positive")

	// ErrInvalidCooldown is returned when rate_limit.cooldown_minutes is not positive.
	ErrInvalidCooldown = errors.New("invalid rate_limit.cooldown_minutes: must be positive")

	// ErrUnknownStore is returned for a rate limiter store other than memory, sqlite or redis.
	ErrUnknownStore = errors.New("unknown rate_limit.store: use memory, sqlite or redis")

	// ErrInvalidThreshold is returned when a threshold is outside [0, 1] or
	// the floors are not ordered warning >= error >= critical.
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrInvalidRunThresholds is returned when the run limits are out of range or out of order.
	ErrInvalidRunThresholds = errors.New("invalid run thresholds")

	// ErrInvalidQuality is returned for quality settings out of range.
	ErrInvalidQuality = errors.New("invalid quality setting")

	// ErrUnknownSeverity is returned for a channels or mentions key that is not a severity.
	ErrUnknownSeverity = errors.New("unknown severity")

	// ErrInvalidSchedule is returned when monitoring.schedule is not a valid cron spec.
	ErrInvalidSchedule = errors.New("invalid monitoring.schedule")

	// ErrInvalidDataSource is returned for a data source without a path or with an unknown type.
	ErrInvalidDataSource = errors.New("invalid data source")

	// ErrInvalidRule is returned when a quality rule spec cannot be built.
	ErrInvalidRule = errors.New("invalid quality rule")

	// ErrConfigNotFound is returned when an explicitly requested file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrUnknownKey is returned by Set for a key outside the schema.
	ErrUnknownKey = errors.New("unknown configuration key")
)
