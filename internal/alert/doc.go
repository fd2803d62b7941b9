// Package alert defines alert severities, the Alert value and the Manager
// that keeps alert history and gates emission through a rate limiter.
package alert
