// Package pipeline runs one monitoring pass over a dataset as a sequence of
// steps.
//
// A run loads the dataset, measures quality, detects anomalies, compares
// against an optional reference, gates and delivers alerts, and writes the
// report artifacts. Each stage is a Step that receives the shared Run and
// fills in its part of the RunReport.
//
// Design decision: steps rather than one function so the CLI can assemble
// shorter pipelines (drift only, no persistence) from the same parts, and
// so logging and cancellation are handled in one place.
//
// BatchProcessor runs many data sources concurrently with errgroup.
package pipeline
