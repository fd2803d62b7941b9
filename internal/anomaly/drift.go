package anomaly

import (
	"math"
	"sort"

	"github.com/nao1215/dqmon/internal/dataset"
	"github.com/nao1215/dqmon/internal/model"
	"github.com/nao1215/dqmon/internal/stats"
)

// DetectDrift compares each numeric column of current against the same
// column of reference. The drift score is the mean of the relative changes
// of the mean and the standard deviation; a column drifts when its score is
// above threshold. Columns missing from reference, not numeric there, or
// without any values are skipped.
func (d *Detector) DetectDrift(current, reference *dataset.Dataset, threshold float64) (*model.DriftReport, error) {
	if current.Empty() || reference.Empty() {
		return nil, ErrEmptyDataset
	}

	report := &model.DriftReport{
		Timestamp:        d.clock().UTC(),
		DatasetName:      current.Name(),
		ReferenceName:    reference.Name(),
		Threshold:        threshold,
		ColumnsWithDrift: []model.ColumnDrift{},
		DriftScores:      make(map[string]float64),
	}

	for _, c := range current.NumericColumns() {
		ref, err := reference.Column(c.Name())
		if err != nil || ref.Type() != dataset.TypeNumeric {
			continue
		}

		meanC, stdC := stats.MeanStdDev(c.Floats())
		meanR, stdR := stats.MeanStdDev(ref.Floats())
		if math.IsNaN(meanC) || math.IsNaN(meanR) {
			continue
		}

		meanChange := math.Abs(meanC-meanR) / (math.Abs(meanR) + stats.Epsilon)
		stdChange := math.Abs(stdC-stdR) / (stdR + stats.Epsilon)
		score := (meanChange + stdChange) / 2

		report.DriftScores[c.Name()] = stats.Round(score, 4)
		if score > threshold {
			report.ColumnsWithDrift = append(report.ColumnsWithDrift, model.ColumnDrift{
				Column:     c.Name(),
				DriftScore: stats.Round(score, 4),
				MeanChange: stats.Round(meanChange*100, 2),
				StdChange:  stats.Round(stdChange*100, 2),
			})
		}
	}

	sort.Slice(report.ColumnsWithDrift, func(i, j int) bool {
		return report.ColumnsWithDrift[i].DriftScore > report.ColumnsWithDrift[j].DriftScore
	})
	report.DriftDetected = len(report.ColumnsWithDrift) > 0

	d.logger.Info("drift detection complete",
		"dataset", current.Name(),
		"reference", reference.Name(),
		"drift_detected", report.DriftDetected,
		"columns_with_drift", len(report.ColumnsWithDrift),
	)

	return report, nil
}
