package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/dqmon/internal/anomaly"
	"github.com/nao1215/dqmon/internal/decision"
	"github.com/nao1215/dqmon/internal/rules"
)

const sampleYAML = `slack:
  enabled: true
  channel: "#data"
rate_limit:
  max_alerts_per_hour: 3
  store: sqlite
thresholds:
  validity:
    warning: 0.99
    error: 0.9
    critical: 0.8
channels:
  critical: "#oncall"
mentions:
  critical: [U123]
quality:
  key_columns: [id]
  rules:
    - name: amount_positive
      type: range
      column: amount
      min: 0
monitoring:
  data_sources:
    - name: orders
      path: data/orders.csv
      reference: data/orders_ref.csv
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dqmon.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	if cfg.Slack.Channel != DefaultSlackChannel {
		t.Errorf("Slack.Channel = %q", cfg.Slack.Channel)
	}
	if cfg.Quality.Contamination != anomaly.DefaultContamination {
		t.Errorf("Contamination = %v", cfg.Quality.Contamination)
	}
	if len(cfg.Quality.Methods) != 3 {
		t.Errorf("Methods = %v", cfg.Quality.Methods)
	}
	if cfg.RateLimit.MaxAlertsPerHour != 10 || cfg.RateLimit.CooldownMinutes != 30 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Run.CriticalScore != 70 || cfg.Run.WarningAnomalyPct != 5 {
		t.Errorf("Run = %+v", cfg.Run)
	}
	if got := cfg.Thresholds["uniqueness"]; got.Warning != 0.98 || got.Critical != 0.90 {
		t.Errorf("uniqueness thresholds = %+v", got)
	}
	if !strings.HasSuffix(cfg.Artifacts.Dir, filepath.Join("dqmon", "reports")) {
		t.Errorf("Artifacts.Dir = %q", cfg.Artifacts.Dir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "zero max alerts", mutate: func(c *Config) { c.RateLimit.MaxAlertsPerHour = 0 }, wantErr: ErrInvalidMaxAlerts},
		{name: "negative cooldown", mutate: func(c *Config) { c.RateLimit.CooldownMinutes = -1 }, wantErr: ErrInvalidCooldown},
		{name: "unknown store", mutate: func(c *Config) { c.RateLimit.Store = "etcd" }, wantErr: ErrUnknownStore},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Thresholds["validity"] = decision.Thresholds{Warning: 1.2, Error: 0.9, Critical: 0.8} },
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "thresholds out of order",
			mutate:  func(c *Config) { c.Thresholds["validity"] = decision.Thresholds{Warning: 0.8, Error: 0.9, Critical: 0.7} },
			wantErr: ErrInvalidThreshold,
		},
		{name: "run scores out of order", mutate: func(c *Config) { c.Run.CriticalScore = 90 }, wantErr: ErrInvalidRunThresholds},
		{name: "run pct out of order", mutate: func(c *Config) { c.Run.WarningAnomalyPct = 20 }, wantErr: ErrInvalidRunThresholds},
		{name: "contamination too high", mutate: func(c *Config) { c.Quality.Contamination = 0.6 }, wantErr: ErrInvalidQuality},
		{name: "unknown method", mutate: func(c *Config) { c.Quality.Methods = []string{"lof"} }, wantErr: anomaly.ErrUnknownMethod},
		{
			name:    "bad rule",
			mutate:  func(c *Config) { c.Quality.Rules = []rules.Spec{{Name: "x", Type: "bogus", Column: "a"}} },
			wantErr: ErrInvalidRule,
		},
		{name: "unknown channel severity", mutate: func(c *Config) { c.Channels["urgent"] = "#x" }, wantErr: ErrUnknownSeverity},
		{name: "bad schedule", mutate: func(c *Config) { c.Monitoring.Schedule = "every day" }, wantErr: ErrInvalidSchedule},
		{
			name:    "source without path",
			mutate:  func(c *Config) { c.Monitoring.DataSources = []DataSource{{Name: "x"}} },
			wantErr: ErrInvalidDataSource,
		},
		{
			name:    "source with unsupported extension",
			mutate:  func(c *Config) { c.Monitoring.DataSources = []DataSource{{Path: "x.parquet"}} },
			wantErr: ErrInvalidDataSource,
		},
		{name: "descriptor schedule", mutate: func(c *Config) { c.Monitoring.Schedule = "@hourly" }},
		{name: "warn alias channel", mutate: func(c *Config) { c.Channels["WARN"] = "#data" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("merges the file over defaults", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, sampleYAML)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.FilePath != path {
			t.Errorf("FilePath = %q", cfg.FilePath)
		}
		if cfg.Slack.Channel != "#data" || !cfg.Slack.Enabled {
			t.Errorf("Slack = %+v", cfg.Slack)
		}
		if cfg.RateLimit.MaxAlertsPerHour != 3 || cfg.RateLimit.CooldownMinutes != 30 {
			t.Errorf("RateLimit = %+v", cfg.RateLimit)
		}
		if cfg.Thresholds["validity"].Warning != 0.99 {
			t.Errorf("validity thresholds = %+v", cfg.Thresholds["validity"])
		}
		if cfg.Thresholds["completeness"].Warning != 0.95 {
			t.Errorf("expected completeness default kept, got %+v", cfg.Thresholds["completeness"])
		}
		if len(cfg.Quality.KeyColumns) != 1 || cfg.Quality.KeyColumns[0] != "id" {
			t.Errorf("KeyColumns = %v", cfg.Quality.KeyColumns)
		}
		if len(cfg.Quality.Rules) != 1 || cfg.Quality.Rules[0].Min == nil || *cfg.Quality.Rules[0].Min != 0 {
			t.Errorf("Rules = %+v", cfg.Quality.Rules)
		}
		if len(cfg.Monitoring.DataSources) != 1 || cfg.Monitoring.DataSources[0].Reference != "data/orders_ref.csv" {
			t.Errorf("DataSources = %+v", cfg.Monitoring.DataSources)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("loaded config should validate: %v", err)
		}
	})

	t.Run("missing explicit file", func(t *testing.T) {
		t.Parallel()

		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		t.Parallel()

		if _, err := Load(writeConfig(t, "slack: [unclosed\n")); err == nil {
			t.Error("expected a parse error")
		}
	})
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DQMON_RATE_LIMIT_MAX_ALERTS_PER_HOUR", "7")
	t.Setenv("DQMON_SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/T/B/X")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RateLimit.MaxAlertsPerHour != 7 {
		t.Errorf("MaxAlertsPerHour = %d, want 7 from the environment", cfg.RateLimit.MaxAlertsPerHour)
	}
	if cfg.Slack.WebhookURL != "https://hooks.slack.com/services/T/B/X" {
		t.Errorf("WebhookURL = %q", cfg.Slack.WebhookURL)
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := NewConfig()
	cfg.Quality.KeyColumns = []string{"order_id"}
	cfg.Channels["error"] = "#data-errors"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Channels["error"] != "#data-errors" || got.Quality.KeyColumns[0] != "order_id" {
		t.Errorf("round trip lost values: %+v", got)
	}
}

func TestSet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		key     string
		value   string
		check   func(*testing.T, *Config)
		wantErr error
	}{
		{
			name: "number", key: "rate_limit.max_alerts_per_hour", value: "25",
			check: func(t *testing.T, c *Config) {
				if c.RateLimit.MaxAlertsPerHour != 25 {
					t.Errorf("got %d", c.RateLimit.MaxAlertsPerHour)
				}
			},
		},
		{
			name: "channel with hash", key: "slack.channel", value: "#quality",
			check: func(t *testing.T, c *Config) {
				if c.Slack.Channel != "#quality" {
					t.Errorf("got %q", c.Slack.Channel)
				}
			},
		},
		{
			name: "list", key: "quality.key_columns", value: "[id, region]",
			check: func(t *testing.T, c *Config) {
				if len(c.Quality.KeyColumns) != 2 || c.Quality.KeyColumns[1] != "region" {
					t.Errorf("got %v", c.Quality.KeyColumns)
				}
			},
		},
		{
			name: "new open key", key: "thresholds.consistency.warning", value: "0.97",
			check: func(t *testing.T, c *Config) {
				if c.Thresholds["consistency"].Warning != 0.97 {
					t.Errorf("got %+v", c.Thresholds["consistency"])
				}
			},
		},
		{name: "unknown key", key: "slack.colour", value: "red", wantErr: ErrUnknownKey},
		{name: "invalid value", key: "rate_limit.max_alerts_per_hour", value: "0", wantErr: ErrInvalidMaxAlerts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfig(t, sampleYAML)
			err := Set(path, tt.key, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Set() = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.check(t, cfg)
			if cfg.Slack.Enabled != true {
				t.Error("expected untouched keys to survive")
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		err := Set(filepath.Join(t.TempDir(), "none.yaml"), "slack.channel", "#x")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

func TestKeys(t *testing.T) {
	t.Parallel()

	keys := Keys()
	for _, want := range []string{
		"rate_limit.cooldown_minutes",
		"slack.webhook_url",
		"artifacts.minio.bucket",
		"quality.rules",
		"thresholds",
	} {
		var found bool
		for _, k := range keys {
			if k == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Keys() is missing %q", want)
		}
	}
}

func TestMasked(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.Slack.WebhookURL = "https://hooks.slack.com/services/secret"
	cfg.Slack.Token = "xoxb-secret"
	cfg.Artifacts.Minio.SecretKey = "minio-secret"

	m := cfg.Masked()
	if m.Slack.WebhookURL != MaskedValue || m.Slack.Token != MaskedValue || m.Artifacts.Minio.SecretKey != MaskedValue {
		t.Errorf("secrets not masked: %+v", m.Slack)
	}
	if m.Artifacts.Minio.AccessKey != "" {
		t.Error("empty secret should stay empty")
	}
	if cfg.Slack.Token != "xoxb-secret" {
		t.Error("Masked must not modify the original")
	}

	data, err := m.YAML()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "xoxb-secret") {
		t.Error("YAML output leaks the token")
	}
}

func TestDecisionConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.Channels["WARN"] = "#data"
	cfg.Mentions["critical"] = []string{"U1"}

	dc := cfg.DecisionConfig()
	if dc.Channels["warning"] != "#data" {
		t.Errorf("Channels = %v", dc.Channels)
	}
	if len(dc.Mentions["critical"]) != 1 {
		t.Errorf("Mentions = %v", dc.Mentions)
	}
	if dc.Run != cfg.Run {
		t.Errorf("Run = %+v", dc.Run)
	}

	cfg.Mentions["critical"][0] = "changed"
	if dc.Mentions["critical"][0] != "U1" {
		t.Error("DecisionConfig must copy mentions")
	}
}

func TestXDGDirs(t *testing.T) {
	t.Parallel()

	if !strings.HasSuffix(XDGDataDir(), AppName) {
		t.Errorf("XDGDataDir = %q", XDGDataDir())
	}
	if !strings.HasSuffix(XDGConfigDir(), AppName) {
		t.Errorf("XDGConfigDir = %q", XDGConfigDir())
	}
}

func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "slack: {}\n")
	if got := FindConfigFile(path); got != path {
		t.Errorf("FindConfigFile(%q) = %q", path, got)
	}
	if got := FindConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); got != "" {
		t.Errorf("expected empty for missing explicit path, got %q", got)
	}
}
