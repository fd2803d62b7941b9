// Package decision turns quality scores, anomaly results and pipeline
// failures into severity-classified alerts and dispatches them.
//
// Every alert goes through the same gate: it is recorded by the alert
// manager, checked against the rate limiter (critical alerts always pass),
// routed to a channel and mention list chosen by severity alone, and handed
// to the notifier. A delivery failure is reported in the returned Dispatch
// and never stops the remaining alerts.
package decision
