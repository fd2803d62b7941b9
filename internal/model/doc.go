// Package model defines the report documents produced by a monitoring run:
//   - QualityReport: the four quality dimensions and the weighted score
//   - AnomalyReport: flagged rows per detection method and their severity
//   - DriftReport: per-column distribution shift against a reference dataset
//   - RunReport: everything one run produced, including alert outcomes
//   - RunSummary: a flattened view of a RunReport for human-readable output
//
// Design decision: reports live in their own package so the analysis
// packages (quality, anomaly), the decision layer and the writers can share
// them without import cycles.
//
// Every report serializes to JSON and decodes back to identical field values.
// Row indices and method lists are kept as sorted/ordered slices so the
// encoded form is deterministic.
package model
