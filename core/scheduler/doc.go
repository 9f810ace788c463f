// Package scheduler runs the scheduling pipeline: it refreshes observation
// priorities, formulates the integer program, hands it to the configured
// solver, decodes the answer into a plan and records the run in the run log
// and metric sinks.
package scheduler
