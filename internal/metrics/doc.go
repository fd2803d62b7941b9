// Package metrics exposes monitoring results as Prometheus collectors.
//
// Every run updates the per-dataset quality and anomaly gauges, and every
// alert passing through the decision layer increments the outcome counter.
// The watch command serves the registry on /metrics.
package metrics
