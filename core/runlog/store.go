// Package runlog persists a record of every scheduling run and supports
// querying past runs by time, status and observation.
package runlog

import (
	"context"
	"time"
)

// RunRecord captures one scheduling run and its plan.
type RunRecord struct {
	RunID        string        `json:"run_id"`
	Timestamp    time.Time     `json:"timestamp"`
	Solver       string        `json:"solver"`
	Status       string        `json:"status"`
	Proven       bool          `json:"proven"`
	Score        float64       `json:"score"`
	SolveTime    time.Duration `json:"solve_time"`
	Grid         GridInfo      `json:"grid"`
	Observations int           `json:"observations"`
	Starts       []StartEntry  `json:"starts"`
	Unscheduled  []string      `json:"unscheduled"`
	// Dropped lists candidates discarded in lenient mode, as "name@slot: reason".
	Dropped []string `json:"dropped,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// GridInfo describes the grid a run was solved on.
type GridInfo struct {
	SlotLength       time.Duration `json:"slot_length"`
	SlotsPerResource int           `json:"slots_per_resource"`
	Resources        []string      `json:"resources"`
}

// StartEntry is one scheduled observation.
type StartEntry struct {
	Observation string  `json:"observation"`
	Resource    string  `json:"resource"`
	Slot        int     `json:"slot"`
	Slots       int     `json:"slots"`
	Priority    float64 `json:"priority"`
	Quality     float64 `json:"quality"`
}

// RunQuery defines filters for retrieving records. Zero fields match all.
type RunQuery struct {
	Start  time.Time
	End    time.Time
	Status string
	// Observation matches runs that scheduled or left out the named observation.
	Observation string
}

// Match reports whether r passes every filter of q.
func (q RunQuery) Match(r RunRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	if q.Observation == "" {
		return true
	}
	for _, s := range r.Starts {
		if s.Observation == q.Observation {
			return true
		}
	}
	for _, name := range r.Unscheduled {
		if name == q.Observation {
			return true
		}
	}
	return false
}

// Store persists RunRecords and supports querying.
type Store interface {
	Append(ctx context.Context, rec RunRecord) error
	Query(ctx context.Context, q RunQuery) ([]RunRecord, error)
	Close() error
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, RunRecord) error              { return nil }
func (NopStore) Query(context.Context, RunQuery) ([]RunRecord, error) { return nil, nil }
func (NopStore) Close() error                                         { return nil }
