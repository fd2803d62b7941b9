// Package config holds the dqmon configuration: defaults, the YAML file,
// environment overrides and validation.
//
// A configuration is resolved in three layers. NewConfig supplies every
// default, the YAML file found by FindConfigFile is merged over it, and
// DQMON_* environment variables override both (DQMON_SLACK_WEBHOOK_URL,
// DQMON_RATE_LIMIT_MAX_ALERTS_PER_HOUR, ...).
package config
