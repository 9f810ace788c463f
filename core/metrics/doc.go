// Package metrics defines the observability contract of scheduling runs.
// Sinks record one RunEvent per solve and, when they implement
// StartRecorder, one StartEvent per scheduled observation. Sinks are built
// from configuration through a factory registry and combined with
// NewMultiSink when several are configured.
package metrics
