// Package report renders run reports and stores report artifacts.
//
// Writers:
//   - SimpleWriter: human-readable text for the terminal, optionally colored
//   - JSONWriter: structured JSON for tool integration
//   - MarkdownWriter: Markdown with a mermaid chart for sharing
//
// Sinks store the JSON documents a run produces. DirSink writes them to a
// local directory and MinioSink uploads them to an S3-compatible bucket.
//
// Design decision: report data structures live in the model package so
// writers and sinks can be added without touching them.
package report
