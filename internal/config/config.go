package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/robfig/cron/v3"

	"github.com/nao1215/dqmon/internal/alert"
	"github.com/nao1215/dqmon/internal/anomaly"
	"github.com/nao1215/dqmon/internal/dataset"
	"github.com/nao1215/dqmon/internal/decision"
	"github.com/nao1215/dqmon/internal/notify"
	"github.com/nao1215/dqmon/internal/ratelimit"
	"github.com/nao1215/dqmon/internal/report"
	"github.com/nao1215/dqmon/internal/rules"
)

// AppName is the application name used for XDG directory paths.
const AppName = "dqmon"

// Default values not owned by another package.
const (
	DefaultSlackChannel    = "#alerts"
	DefaultMinCompleteness = 0.95
	DefaultMinUniqueness   = 0.90
	DefaultSchedule        = "0 0 */6 * * *"
	DefaultListen          = ":9464"
	DefaultMQTTTopic       = "dqmon/alerts"
	DefaultKafkaTopic      = "dqmon.alerts"
	DefaultMinioRegion     = "us-east-1"
	DefaultConcurrency     = 4
)

// Rate limiter store kinds.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config is the complete dqmon configuration.
//
// Design decision: nested sections mirroring the YAML file, so a dotted key
// such as rate_limit.cooldown_minutes names both the field and the
// environment variable DQMON_RATE_LIMIT_COOLDOWN_MINUTES.
type Config struct {
	Slack      SlackConfig                    `yaml:"slack" mapstructure:"slack"`
	Quality    QualityConfig                  `yaml:"quality" mapstructure:"quality"`
	Thresholds map[string]decision.Thresholds `yaml:"thresholds" mapstructure:"thresholds"`
	Channels   map[string]string              `yaml:"channels" mapstructure:"channels"`
	Mentions   map[string][]string            `yaml:"mentions" mapstructure:"mentions"`
	RateLimit  RateLimitConfig                `yaml:"rate_limit" mapstructure:"rate_limit"`
	Run        decision.RunThresholds         `yaml:"run" mapstructure:"run"`
	Monitoring MonitoringConfig               `yaml:"monitoring" mapstructure:"monitoring"`
	Notifiers  NotifiersConfig                `yaml:"notifiers" mapstructure:"notifiers"`
	Artifacts  ArtifactsConfig                `yaml:"artifacts" mapstructure:"artifacts"`
	Log        LogConfig                      `yaml:"log" mapstructure:"log"`

	// FilePath is the file the configuration was loaded from, if any.
	FilePath string `yaml:"-" mapstructure:"-"`
}

// SlackConfig configures Slack delivery. Either WebhookURL or Token is required when enabled.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	Token      string `yaml:"token" mapstructure:"token"`
	Channel    string `yaml:"channel" mapstructure:"channel"`
}

// QualityConfig tunes the quality engine and the anomaly detector.
type QualityConfig struct {
	MinCompleteness  float64      `yaml:"min_completeness" mapstructure:"min_completeness"`
	MinUniqueness    float64      `yaml:"min_uniqueness" mapstructure:"min_uniqueness"`
	AnomalyThreshold float64      `yaml:"anomaly_threshold" mapstructure:"anomaly_threshold"`
	IQRMultiplier    float64      `yaml:"iqr_multiplier" mapstructure:"iqr_multiplier"`
	Contamination    float64      `yaml:"contamination" mapstructure:"contamination"`
	DriftThreshold   float64      `yaml:"drift_threshold" mapstructure:"drift_threshold"`
	KeyColumns       []string     `yaml:"key_columns" mapstructure:"key_columns"`
	Methods          []string     `yaml:"methods" mapstructure:"methods"`
	Rules            []rules.Spec `yaml:"rules,omitempty" mapstructure:"rules"`
}

// RateLimitConfig configures the alert rate limiter.
type RateLimitConfig struct {
	MaxAlertsPerHour int         `yaml:"max_alerts_per_hour" mapstructure:"max_alerts_per_hour"`
	CooldownMinutes  int         `yaml:"cooldown_minutes" mapstructure:"cooldown_minutes"`
	Store            string      `yaml:"store" mapstructure:"store"`
	Redis            RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig locates the Redis server of the redis store.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// MonitoringConfig configures the watch command.
type MonitoringConfig struct {
	Schedule    string       `yaml:"schedule" mapstructure:"schedule"`
	Listen      string       `yaml:"listen" mapstructure:"listen"`
	Concurrency int          `yaml:"concurrency" mapstructure:"concurrency"`
	DataSources []DataSource `yaml:"data_sources" mapstructure:"data_sources"`
}

// DataSource is one dataset monitored by watch. The file format follows
// the path extension (.csv, .tsv, .json, .jsonl).
type DataSource struct {
	Name      string `yaml:"name" mapstructure:"name"`
	Path      string `yaml:"path" mapstructure:"path"`
	Reference string `yaml:"reference,omitempty" mapstructure:"reference"`
}

// NotifiersConfig configures the optional event-bus notifiers.
type NotifiersConfig struct {
	Kafka KafkaConfig `yaml:"kafka" mapstructure:"kafka"`
	MQTT  MQTTConfig  `yaml:"mqtt" mapstructure:"mqtt"`
}

// KafkaConfig enables the Kafka notifier when Brokers is not empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// MQTTConfig enables the MQTT notifier when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker" mapstructure:"broker"`
	Topic    string `yaml:"topic" mapstructure:"topic"`
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// ArtifactsConfig says where report artifacts go.
type ArtifactsConfig struct {
	Dir   string      `yaml:"dir" mapstructure:"dir"`
	Minio MinioConfig `yaml:"minio" mapstructure:"minio"`
}

// MinioConfig enables uploads to an S3-compatible bucket when Endpoint is set.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
	Region    string `yaml:"region" mapstructure:"region"`
}

// LogConfig configures the optional JSON log file.
type LogConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// NewConfig creates a Config with every default set.
func NewConfig() *Config {
	thresholds := decision.DefaultThresholds()
	return &Config{
		Slack: SlackConfig{
			Channel: DefaultSlackChannel,
		},
		Quality: QualityConfig{
			MinCompleteness:  DefaultMinCompleteness,
			MinUniqueness:    DefaultMinUniqueness,
			AnomalyThreshold: anomaly.DefaultZThreshold,
			IQRMultiplier:    anomaly.DefaultIQRMultiplier,
			Contamination:    anomaly.DefaultContamination,
			DriftThreshold:   anomaly.DefaultDriftThreshold,
			KeyColumns:       []string{},
			Methods:          anomaly.AllMethods(),
		},
		Thresholds: thresholds,
		Channels:   map[string]string{},
		Mentions: map[string][]string{
			alert.Critical.String(): {},
		},
		RateLimit: RateLimitConfig{
			MaxAlertsPerHour: ratelimit.DefaultMaxPerHour,
			CooldownMinutes:  int(ratelimit.DefaultCooldown / time.Minute),
			Store:            StoreMemory,
			Redis:            RedisConfig{Addr: "localhost:6379"},
		},
		Run: decision.DefaultRunThresholds(),
		Monitoring: MonitoringConfig{
			Schedule:    DefaultSchedule,
			Listen:      DefaultListen,
			Concurrency: DefaultConcurrency,
			DataSources: []DataSource{},
		},
		Notifiers: NotifiersConfig{
			Kafka: KafkaConfig{Brokers: []string{}, Topic: DefaultKafkaTopic},
			MQTT:  MQTTConfig{Topic: DefaultMQTTTopic, ClientID: AppName},
		},
		Artifacts: ArtifactsConfig{
			Dir:   XDGReportDir(),
			Minio: MinioConfig{Region: DefaultMinioRegion},
		},
	}
}

// XDGDataDir returns the XDG data directory for dqmon.
// On Linux: ~/.local/share/dqmon
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for dqmon.
// On Linux: ~/.config/dqmon
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGReportDir returns the default artifact directory.
func XDGReportDir() string {
	return filepath.Join(XDGDataDir(), "reports")
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.RateLimit.MaxAlertsPerHour <= 0 {
		return ErrInvalidMaxAlerts
	}
	if c.RateLimit.CooldownMinutes <= 0 {
		return ErrInvalidCooldown
	}
	switch c.RateLimit.Store {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.RateLimit.Store)
	}

	for metric, t := range c.Thresholds {
		for _, v := range []float64{t.Warning, t.Error, t.Critical} {
			if v < 0 || v > 1 {
				return fmt.Errorf("%w: thresholds.%s must be within [0, 1]", ErrInvalidThreshold, metric)
			}
		}
		if t.Warning < t.Error || t.Error < t.Critical {
			return fmt.Errorf("%w: thresholds.%s must satisfy warning >= error >= critical", ErrInvalidThreshold, metric)
		}
	}

	r := c.Run
	if r.CriticalScore > r.WarningScore || r.WarningScore > 100 || r.CriticalScore < 0 {
		return fmt.Errorf("%w: need 0 <= critical_score <= warning_score <= 100", ErrInvalidRunThresholds)
	}
	if r.WarningAnomalyPct > r.CriticalAnomalyPct || r.WarningAnomalyPct < 0 || r.CriticalAnomalyPct > 100 {
		return fmt.Errorf("%w: need 0 <= warning_anomaly_pct <= critical_anomaly_pct <= 100", ErrInvalidRunThresholds)
	}

	if err := c.validateQuality(); err != nil {
		return err
	}

	for key := range c.Channels {
		if _, err := alert.ParseSeverity(key); err != nil {
			return fmt.Errorf("%w: channels.%s", ErrUnknownSeverity, key)
		}
	}
	for key := range c.Mentions {
		if _, err := alert.ParseSeverity(key); err != nil {
			return fmt.Errorf("%w: mentions.%s", ErrUnknownSeverity, key)
		}
	}

	if _, err := ParseSchedule(c.Monitoring.Schedule); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	for i, ds := range c.Monitoring.DataSources {
		if strings.TrimSpace(ds.Path) == "" {
			return fmt.Errorf("%w: data_sources[%d] has no path", ErrInvalidDataSource, i)
		}
		if !dataset.Supported(ds.Path) {
			return fmt.Errorf("%w: data_sources[%d] %s is not .csv, .tsv, .json or .jsonl", ErrInvalidDataSource, i, ds.Path)
		}
	}

	return nil
}

func (c *Config) validateQuality() error {
	q := c.Quality
	if q.Contamination <= 0 || q.Contamination > 0.5 {
		return fmt.Errorf("%w: contamination must be in (0, 0.5], got %v", ErrInvalidQuality, q.Contamination)
	}
	if q.AnomalyThreshold <= 0 {
		return fmt.Errorf("%w: anomaly_threshold must be positive", ErrInvalidQuality)
	}
	if q.IQRMultiplier <= 0 {
		return fmt.Errorf("%w: iqr_multiplier must be positive", ErrInvalidQuality)
	}
	if q.DriftThreshold < 0 {
		return fmt.Errorf("%w: drift_threshold must not be negative", ErrInvalidQuality)
	}
	for _, v := range []float64{q.MinCompleteness, q.MinUniqueness} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: min_completeness and min_uniqueness must be within [0, 1]", ErrInvalidQuality)
		}
	}
	for _, m := range q.Methods {
		switch m {
		case anomaly.MethodZScore, anomaly.MethodIQR, anomaly.MethodIsolationForest:
		default:
			return fmt.Errorf("%w: %w: %q", ErrInvalidQuality, anomaly.ErrUnknownMethod, m)
		}
	}
	if _, err := rules.FromSpecs(q.Rules); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	return nil
}

// ParseSchedule parses a six-field cron spec (with seconds) or a descriptor
// such as @hourly.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	).Parse(spec)
}

// Cooldown returns the limiter cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.RateLimit.CooldownMinutes) * time.Minute
}

// DecisionConfig converts the routing and threshold sections.
func (c *Config) DecisionConfig() decision.Config {
	cfg := decision.Config{
		Thresholds: make(map[string]decision.Thresholds, len(c.Thresholds)),
		Channels:   make(map[string]string, len(c.Channels)),
		Mentions:   make(map[string][]string, len(c.Mentions)),
		Run:        c.Run,
	}
	for k, v := range c.Thresholds {
		cfg.Thresholds[k] = v
	}
	for k, v := range c.Channels {
		cfg.Channels[normalizeSeverity(k)] = v
	}
	for k, v := range c.Mentions {
		if len(v) > 0 {
			cfg.Mentions[normalizeSeverity(k)] = append([]string(nil), v...)
		}
	}
	return cfg
}

func normalizeSeverity(key string) string {
	if s, err := alert.ParseSeverity(key); err == nil {
		return s.String()
	}
	return key
}

// RuleSet builds the configured validity rules. Nil means the default rules.
func (c *Config) RuleSet() (*rules.Set, error) {
	return rules.FromSpecs(c.Quality.Rules)
}

// SlackSettings converts the slack section.
func (c *Config) SlackSettings() notify.SlackConfig {
	return notify.SlackConfig{
		WebhookURL:     c.Slack.WebhookURL,
		Token:          c.Slack.Token,
		DefaultChannel: c.Slack.Channel,
	}
}

// KafkaSettings converts the kafka section.
func (c *Config) KafkaSettings() notify.KafkaConfig {
	return notify.KafkaConfig{Brokers: c.Notifiers.Kafka.Brokers, Topic: c.Notifiers.Kafka.Topic}
}

// MQTTSettings converts the mqtt section.
func (c *Config) MQTTSettings() notify.MQTTConfig {
	m := c.Notifiers.MQTT
	return notify.MQTTConfig{
		Broker:   m.Broker,
		Topic:    m.Topic,
		ClientID: m.ClientID,
		Username: m.Username,
		Password: m.Password,
	}
}

// RedisSettings converts the redis section.
func (c *Config) RedisSettings() ratelimit.RedisOptions {
	r := c.RateLimit.Redis
	return ratelimit.RedisOptions{Addr: r.Addr, Password: r.Password, DB: r.DB}
}

// MinioSettings converts the minio section.
func (c *Config) MinioSettings() report.MinioConfig {
	m := c.Artifacts.Minio
	return report.MinioConfig{
		Endpoint:  m.Endpoint,
		AccessKey: m.AccessKey,
		SecretKey: m.SecretKey,
		Bucket:    m.Bucket,
		Region:    m.Region,
		UseSSL:    m.UseSSL,
	}
}
