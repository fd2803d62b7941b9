package quality

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/nao1215/dqmon/internal/model"
)

const summaryWidth = 55

// Summary renders a boxed, human-readable view of a report.
func Summary(r *model.QualityReport) string {
	var sb strings.Builder

	border := strings.Repeat("=", summaryWidth)
	line := func(format string, args ...any) {
		text := fmt.Sprintf(format, args...)
		if len(text) > summaryWidth-2 {
			text = text[:summaryWidth-2]
		}
		fmt.Fprintf(&sb, "| %-*s |\n", summaryWidth-2, text)
	}

	sb.WriteString("+" + border + "+\n")
	line("%s", centered("DATA QUALITY REPORT", summaryWidth-2))
	sb.WriteString("+" + border + "+\n")
	line("Dataset:    %s", r.DatasetName)
	line("Timestamp:  %s", r.Timestamp.Format(time.RFC3339))
	line("Dimensions: %d rows x %d columns", r.RowCount, r.ColumnCount)
	sb.WriteString("+" + border + "+\n")
	line("Quality score: %7.2f%%", r.QualityScore)
	line("Completeness:  %7.2f%%", r.Completeness)
	line("Uniqueness:    %7.2f%%", r.Uniqueness)
	line("Validity:      %7.2f%%", r.Validity)
	line("Consistency:   %7.2f%%", r.Consistency)
	if n := r.Details.Uniqueness.DuplicateCount; n > 0 {
		line("Duplicates:    %d", n)
	}
	failed := make([]string, 0, len(r.Details.Validity.Errors))
	for rule := range r.Details.Validity.Errors {
		failed = append(failed, rule)
	}
	sort.Strings(failed)
	for _, rule := range failed {
		line("Rule error: %s (%s)", rule, r.Details.Validity.Errors[rule])
	}
	sb.WriteString("+" + border + "+\n")

	return sb.String()
}

func centered(s string, width int) string {
	if len(s) >= width {
		return s
	}
	pad := (width - len(s)) / 2
	return strings.Repeat(" ", pad) + s
}

// SaveHistory writes the engine history as a JSON array.
func (e *Engine) SaveHistory(w io.Writer) error {
	return e.history.Save(w)
}

// LoadHistory appends the reports of a JSON array written by SaveHistory.
func (e *Engine) LoadHistory(r io.Reader) error {
	return e.history.Load(r)
}
