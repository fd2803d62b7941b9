package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/dqmon/internal/model"
)

// JSONWriter outputs reports in JSON format.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the run report as JSON.
func (w *JSONWriter) Write(report *model.RunReport) (int, error) {
	return w.writeJSON(report)
}

// WriteSummary outputs the summary as JSON.
func (w *JSONWriter) WriteSummary(summary *model.RunSummary) (int, error) {
	return w.writeJSON(summary)
}

// Marshal encodes v the way the writer would, without the trailing newline.
func (w *JSONWriter) Marshal(v any) ([]byte, error) {
	if w.indent {
		return json.MarshalIndent(v, w.indentPrefix, w.indentString)
	}
	return json.Marshal(v)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	data, err := w.Marshal(v)
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}

// JSONReport wraps a run report with the producing version and its summary.
type JSONReport struct {
	Version string            `json:"version"`
	Report  *model.RunReport  `json:"report"`
	Summary *model.RunSummary `json:"summary,omitempty"`
}

// NewJSONReport creates a JSONReport.
func NewJSONReport(report *model.RunReport, version string) *JSONReport {
	return &JSONReport{
		Version: version,
		Report:  report,
		Summary: model.NewRunSummary(report),
	}
}

// FullJSONWriter outputs run reports inside a JSONReport wrapper.
type FullJSONWriter struct {
	*JSONWriter
	version string
}

// NewFullJSONWriter creates a FullJSONWriter.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the wrapped report.
func (w *FullJSONWriter) Write(report *model.RunReport) (int, error) {
	return w.writeJSON(NewJSONReport(report, w.version))
}
