package metrics

import (
	"errors"
	"time"
)

// RunEvent summarises one scheduling run.
type RunEvent struct {
	RunID        string
	Solver       string
	Status       string
	Proven       bool
	Score        float64
	Observations int
	Scheduled    int
	Variables    int
	Constraints  int
	Nodes        int
	SolveTime    time.Duration
	// Usage maps each resource name to its busy fraction in [0,1].
	Usage map[string]float64
	Time  time.Time
}

// Unscheduled is the number of observations left out of the plan.
func (e RunEvent) Unscheduled() int { return e.Observations - e.Scheduled }

// StartEvent describes one scheduled observation.
type StartEvent struct {
	RunID       string
	Observation string
	Band        int
	Resource    string
	Slot        int
	Slots       int
	Priority    float64
	Quality     float64
	Time        time.Time
}

// MetricsSink records scheduling runs for observability purposes.
type MetricsSink interface {
	RecordRun(ev RunEvent) error
}

// StartRecorder is implemented by sinks that record individual starts.
type StartRecorder interface {
	RecordStarts(starts []StartEvent) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordRun(RunEvent) error        { return nil }
func (NopSink) RecordStarts([]StartEvent) error { return nil }

// MultiSink fans events out to several sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// Close closes the sinks that hold resources.
func (m *MultiSink) Close() { closeAll(m.Sinks) }

// RecordRun forwards the event to every sink. All sinks are tried; their
// errors are joined.
func (m *MultiSink) RecordRun(ev RunEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordRun(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordStarts forwards starts to the sinks that support them.
func (m *MultiSink) RecordStarts(starts []StartEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(StartRecorder); ok {
			if err := rec.RecordStarts(starts); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
