// Package main provides the entry point for the dqmon CLI.
//
// dqmon measures the quality of tabular datasets, detects anomalous rows
// and distribution drift, and routes alerts to Slack, Kafka or MQTT under
// a per-alert rate limit.
//
// Usage:
//
//	dqmon check data/orders.csv
//	dqmon check data/orders.csv --reference data/orders_last_week.csv
//	dqmon watch
//
// See --help for all available options.
package main

// main is the entry point for dqmon.
func main() {
	Execute()
}
