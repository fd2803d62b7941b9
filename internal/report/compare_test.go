package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/dqmon/internal/model"
)

func compareFixture(score float64, anomalyPct float64, alerts ...model.AlertRecord) *model.RunReport {
	return &model.RunReport{
		ID:          "run",
		DatasetName: "orders",
		StartedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Quality: &model.QualityReport{
			QualityScore: score,
			Completeness: score,
			Uniqueness:   100,
			Validity:     100,
			Consistency:  100,
		},
		Anomaly: &model.AnomalyReport{AnomalyPercentage: anomalyPct},
		Alerts:  alerts,
	}
}

func TestCompareRuns(t *testing.T) {
	t.Parallel()

	completeness := model.AlertRecord{Severity: "error", Title: "Quality below expected: completeness", Source: "data_quality"}
	validity := model.AlertRecord{Severity: "warning", Title: "Quality below expected: validity", Source: "data_quality"}
	runAlert := model.AlertRecord{Severity: "info", Title: "Monitoring report: orders", Source: "dqmon"}

	tests := []struct {
		name          string
		previous      *model.RunReport
		current       *model.RunReport
		wantDirection string
		wantNew       int
		wantResolved  int
		wantUnchanged int
	}{
		{
			name:          "resolved alert improves",
			previous:      compareFixture(80, 2, completeness, validity, runAlert),
			current:       compareFixture(80, 2, validity, runAlert),
			wantDirection: DirectionImproved,
			wantResolved:  1,
			wantUnchanged: 1,
		},
		{
			name:          "new alert worsens",
			previous:      compareFixture(90, 1, runAlert),
			current:       compareFixture(90, 1, completeness, runAlert),
			wantDirection: DirectionWorsened,
			wantNew:       1,
		},
		{
			name:          "score decides a tie",
			previous:      compareFixture(90, 1, runAlert),
			current:       compareFixture(95, 1, runAlert),
			wantDirection: DirectionImproved,
		},
		{
			name:          "identical runs",
			previous:      compareFixture(90, 1, validity),
			current:       compareFixture(90, 1, validity),
			wantDirection: DirectionUnchanged,
			wantUnchanged: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := CompareRuns(tt.previous, tt.current)
			if c.Direction != tt.wantDirection {
				t.Errorf("Direction = %s, want %s", c.Direction, tt.wantDirection)
			}
			if len(c.NewAlerts) != tt.wantNew || len(c.ResolvedAlerts) != tt.wantResolved || c.UnchangedCount != tt.wantUnchanged {
				t.Errorf("new/resolved/unchanged = %d/%d/%d, want %d/%d/%d",
					len(c.NewAlerts), len(c.ResolvedAlerts), c.UnchangedCount,
					tt.wantNew, tt.wantResolved, tt.wantUnchanged)
			}
		})
	}
}

func TestCompareRuns_Deltas(t *testing.T) {
	t.Parallel()

	c := CompareRuns(compareFixture(80, 4), compareFixture(85.5, 1))
	if c.ScoreDelta != 5.5 {
		t.Errorf("ScoreDelta = %v", c.ScoreDelta)
	}
	if c.AnomalyDelta != -3 {
		t.Errorf("AnomalyDelta = %v", c.AnomalyDelta)
	}
	if c.DimensionDelta[model.MetricCompleteness] != 5.5 {
		t.Errorf("DimensionDelta = %v", c.DimensionDelta)
	}
	if c.DatasetName != "orders" {
		t.Errorf("DatasetName = %q", c.DatasetName)
	}
}

func TestWriteComparison(t *testing.T) {
	t.Parallel()

	newAlert := model.AlertRecord{Severity: "error", Title: "Quality below expected: completeness", Source: "data_quality"}
	c := CompareRuns(compareFixture(90, 1), compareFixture(80, 3, newAlert))

	t.Run("text", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		if err := WriteComparison(&buf, c, FormatText); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		for _, want := range []string{"Run Comparison: orders", "WORSENED", "-10.00", "[+] [ERROR] Quality below expected: completeness"} {
			if !strings.Contains(out, want) {
				t.Errorf("text output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		if err := WriteComparison(&buf, c, FormatJSON); err != nil {
			t.Fatal(err)
		}
		var got Comparison
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if got.Direction != DirectionWorsened || len(got.NewAlerts) != 1 {
			t.Errorf("decoded = %+v", got)
		}
	})

	t.Run("markdown", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		if err := WriteComparison(&buf, c, FormatMarkdown); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		if !strings.Contains(out, "# Run Comparison: orders") || !strings.Contains(out, "New Alerts (1)") {
			t.Errorf("markdown output:\n%s", out)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()
		if err := WriteComparison(&bytes.Buffer{}, c, "xml"); !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("expected ErrUnknownFormat, got %v", err)
		}
	})
}
