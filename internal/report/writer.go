package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/dqmon/internal/model"
)

// Output formats.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// ErrUnknownFormat is returned by NewWriter for an unsupported format.
var ErrUnknownFormat = errors.New("unknown report format")

// Writer defines the interface for report output.
//
// Design decision: an interface lets the same run be written to a file,
// stdout or an HTTP response in any format.
type Writer interface {
	// Write outputs the full run report.
	Write(report *model.RunReport) (int, error)

	// WriteSummary outputs only the flattened summary.
	WriteSummary(summary *model.RunSummary) (int, error)
}

// NewWriter returns the writer for format. color only affects text output.
func NewWriter(format string, output io.Writer, version string, color bool) (Writer, error) {
	switch strings.ToLower(format) {
	case FormatText, "":
		return NewSimpleWriter(output, WithColor(color)), nil
	case FormatJSON:
		return NewFullJSONWriter(output, version, WithPrettyPrint()), nil
	case FormatMarkdown, "md":
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q (use text, json or markdown)", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to multiple Writers.
//
// Design decision: a separate type rather than io.MultiWriter because
// Writer writes reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all Writers, stopping on the first error.
func (m *MultiWriter) Write(report *model.RunReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteSummary outputs the summary to all Writers.
func (m *MultiWriter) WriteSummary(summary *model.RunSummary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSummary(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
