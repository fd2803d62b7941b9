package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/dqmon/internal/config"
	"github.com/nao1215/dqmon/internal/model"
	"github.com/nao1215/dqmon/internal/report"
)

// writeFile writes content to name under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// testConfig writes a configuration that stores artifacts under dir.
func testConfig(t *testing.T, dir string) string {
	t.Helper()
	return writeFile(t, dir, "dqmon.yaml", fmt.Sprintf(`artifacts:
  dir: %q
rate_limit:
  store: memory
quality:
  methods: [zscore, iqr]
`, filepath.Join(dir, "reports")))
}

// ordersCSV has 20 complete rows and one outlier in amount.
func ordersCSV() string {
	var b strings.Builder
	b.WriteString("id,amount,status\n")
	for i := 1; i <= 20; i++ {
		amount := 100 + i
		if i == 20 {
			amount = 100000
		}
		fmt.Fprintf(&b, "%d,%d,active\n", i, amount)
	}
	return b.String()
}

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestCheckCmd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := testConfig(t, dir)
	data := writeFile(t, dir, "orders.csv", ordersCSV())

	out, err := execute(t, "check", data, "--config", cfgPath, "-f", "json")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}

	var doc report.JSONReport
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not a JSON report: %v\n%s", err, out)
	}
	rep := doc.Report
	if rep == nil || rep.DatasetName != "orders" {
		t.Fatalf("expected a report for orders, got %+v", rep)
	}
	if rep.Quality == nil || rep.Quality.Completeness != 100 {
		t.Errorf("expected full completeness, got %+v", rep.Quality)
	}
	if rep.Anomaly == nil || rep.Anomaly.TotalAnomalies == 0 {
		t.Errorf("expected the outlier to be flagged, got %+v", rep.Anomaly)
	}

	stored, err := report.ListFinalReports(filepath.Join(dir, "reports"))
	if err != nil {
		t.Fatalf("ListFinalReports: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored report, got %d", len(stored))
	}
}

func TestCheckCmd_NoPersistAndGate(t *testing.T) {
	dir := t.TempDir()
	cfgPath := testConfig(t, dir)

	// Half of the status cells are empty.
	var b strings.Builder
	b.WriteString("id,amount,status\n")
	for i := 1; i <= 10; i++ {
		status := "active"
		if i%2 == 0 {
			status = ""
		}
		fmt.Fprintf(&b, "%d,%d,%s\n", i, i*10, status)
	}
	data := writeFile(t, dir, "sparse.csv", b.String())

	_, err := execute(t, "check", data, "--config", cfgPath, "--no-persist")
	if !errors.Is(err, ErrQualityGate) {
		t.Fatalf("expected ErrQualityGate, got %v", err)
	}

	if _, err := execute(t, "check", data, "--config", cfgPath, "--no-persist", "--no-gate"); err != nil {
		t.Fatalf("expected --no-gate to pass, got %v", err)
	}

	stored, err := report.ListFinalReports(filepath.Join(dir, "reports"))
	if err != nil {
		t.Fatalf("ListFinalReports: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("expected no stored reports with --no-persist, got %d", len(stored))
	}
}

func TestCheckCmd_MissingFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := testConfig(t, dir)

	_, err := execute(t, "check", filepath.Join(dir, "missing.csv"), "--config", cfgPath, "--no-persist")
	if err == nil || !strings.Contains(err.Error(), "monitoring run failed") {
		t.Fatalf("expected a run failure, got %v", err)
	}
}

func TestDriftCmd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := testConfig(t, dir)
	reference := writeFile(t, dir, "ref.csv", "value\n10\n11\n12\n13\n14\n")
	same := writeFile(t, dir, "same.csv", "value\n10\n11\n12\n13\n14\n")
	shifted := writeFile(t, dir, "shifted.csv", "value\n50\n55\n60\n65\n70\n")

	tests := []struct {
		name    string
		current string
		wantErr error
	}{
		{name: "no drift", current: same},
		{name: "drift", current: shifted, wantErr: ErrDriftDetected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "drift", tt.current, reference, "--config", cfgPath, "--fail-on-drift", "-f", "json")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			var doc report.JSONReport
			if err := json.Unmarshal([]byte(out), &doc); err != nil {
				t.Fatalf("output is not a JSON report: %v", err)
			}
			if doc.Report.Drift == nil {
				t.Fatal("expected a drift section")
			}
			if doc.Report.Drift.DriftDetected != (tt.wantErr != nil) {
				t.Errorf("DriftDetected = %v", doc.Report.Drift.DriftDetected)
			}
		})
	}
}

// storeRun writes a final report for dataset at ts into dir.
func storeRun(t *testing.T, dir, dataset string, score float64, ts time.Time) {
	t.Helper()
	rep := model.NewRunReport(dataset + ".csv")
	rep.DatasetName = dataset
	rep.StartedAt = ts
	rep.FinishedAt = ts
	rep.Severity = "info"
	rep.Quality = &model.QualityReport{DatasetName: dataset, QualityScore: score, Completeness: score}
	if _, err := report.WriteArtifacts(t.Context(), report.NewDirSink(dir), rep, ts); err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}
}

func TestReportCmd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	storeRun(t, dir, "orders", 80, base)
	storeRun(t, dir, "users", 99, base.Add(time.Minute))
	storeRun(t, dir, "orders", 95, base.Add(2*time.Minute))

	t.Run("list", func(t *testing.T) {
		t.Parallel()
		out, err := execute(t, "report", "list", "--dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 4 {
			t.Fatalf("expected header and 3 runs, got %q", out)
		}
		if !strings.Contains(lines[1], "orders") || !strings.Contains(lines[1], "95.00%") {
			t.Errorf("expected newest run first, got %q", lines[1])
		}
	})

	t.Run("list filtered and limited", func(t *testing.T) {
		t.Parallel()
		out, err := execute(t, "report", "list", "--dir", dir, "-d", "orders", "-l", "1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n := len(strings.Split(strings.TrimSpace(out), "\n")); n != 2 {
			t.Errorf("expected header and 1 run, got %q", out)
		}
	})

	t.Run("show latest as json", func(t *testing.T) {
		t.Parallel()
		out, err := execute(t, "report", "show", "--dir", dir, "-d", "users", "-f", "json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var doc report.JSONReport
		if err := json.Unmarshal([]byte(out), &doc); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if doc.Report.DatasetName != "users" {
			t.Errorf("expected users, got %s", doc.Report.DatasetName)
		}
	})

	t.Run("compare", func(t *testing.T) {
		t.Parallel()
		out, err := execute(t, "report", "compare", "--dir", dir, "-d", "orders", "-f", "json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var c report.Comparison
		if err := json.Unmarshal([]byte(out), &c); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, out)
		}
		if c.ScoreDelta != 15 {
			t.Errorf("expected score delta 15, got %v", c.ScoreDelta)
		}
	})

	t.Run("compare needs two runs", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, "report", "compare", "--dir", dir, "-d", "users")
		if err == nil || !strings.Contains(err.Error(), "two stored runs") {
			t.Errorf("expected a two runs error, got %v", err)
		}
	})

	t.Run("empty directory", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, "report", "list", "--dir", t.TempDir())
		if !errors.Is(err, ErrNoStoredReports) {
			t.Errorf("expected ErrNoStoredReports, got %v", err)
		}
	})
}

func TestConfigCmd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "dqmon.yaml", `slack:
  enabled: true
  webhook_url: https://hooks.slack.com/services/T000/B000/XXXX
rate_limit:
  max_alerts_per_hour: 5
`)

	t.Run("show masks secrets", func(t *testing.T) {
		t.Parallel()
		out, err := execute(t, "config", "show", "--config", cfgPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(out, "hooks.slack.com") {
			t.Errorf("webhook leaked: %s", out)
		}
		if !strings.Contains(out, config.MaskedValue) {
			t.Errorf("expected masked value, got %s", out)
		}
	})

	t.Run("validate", func(t *testing.T) {
		t.Parallel()
		out, err := execute(t, "config", "validate", "--config", cfgPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "valid") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("keys", func(t *testing.T) {
		t.Parallel()
		out, err := execute(t, "config", "keys")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "rate_limit.max_alerts_per_hour") {
			t.Errorf("expected rate_limit.max_alerts_per_hour in %q", out)
		}
	})
}

func TestConfigSetCmd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "dqmon.yaml", "rate_limit:\n  max_alerts_per_hour: 5\n")

	if _, err := execute(t, "config", "set", "rate_limit.max_alerts_per_hour", "12", "--config", cfgPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RateLimit.MaxAlertsPerHour != 12 {
		t.Errorf("expected 12, got %d", cfg.RateLimit.MaxAlertsPerHour)
	}

	_, err = execute(t, "config", "set", "no.such.key", "1", "--config", cfgPath)
	if !errors.Is(err, config.ErrUnknownKey) {
		t.Errorf("expected ErrUnknownKey, got %v", err)
	}
}

func TestQualityGate(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.Quality.MinCompleteness = 0.95
	cfg.Quality.MinUniqueness = 0.90

	tests := []struct {
		name    string
		q       *model.QualityReport
		wantErr bool
	}{
		{name: "no quality section", q: nil},
		{name: "above both", q: &model.QualityReport{Completeness: 99, Uniqueness: 100}},
		{name: "at the minimum", q: &model.QualityReport{Completeness: 95, Uniqueness: 90}},
		{name: "low completeness", q: &model.QualityReport{Completeness: 80, Uniqueness: 100}, wantErr: true},
		{name: "low uniqueness", q: &model.QualityReport{Completeness: 100, Uniqueness: 50}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := qualityGate(cfg, tt.q)
			if tt.wantErr != errors.Is(err, ErrQualityGate) {
				t.Errorf("qualityGate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
