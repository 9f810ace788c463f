// Package observation holds the append-only collection of candidate
// observations together with their completion-derived priorities.
package observation

import (
	"errors"
	"math"
	"time"

	"github.com/kilianp07/obsched/core/priority"
	"github.com/kilianp07/obsched/core/timegrid"
)

var (
	// ErrZeroAllocation is returned when an observation is added with a zero
	// allocated duration.
	ErrZeroAllocation = errors.New("allocated duration must not be zero")
	// ErrInvalidObservation is returned for malformed observation input.
	ErrInvalidObservation = errors.New("invalid observation")
	// ErrUnknownObservation is returned for ids outside the set.
	ErrUnknownObservation = errors.New("unknown observation")
)

// DefaultQuality is the quality weight of a start candidate when none is given.
const DefaultQuality = 1.0

// StartCandidate is a global slot index at which an observation may begin,
// with a multiplicative quality weight for that start.
type StartCandidate struct {
	Slot    int     `json:"slot" yaml:"slot"`
	Quality float64 `json:"quality" yaml:"quality"`
}

// TS builds a StartCandidate with the default quality.
func TS(slot int) StartCandidate { return StartCandidate{Slot: slot, Quality: DefaultQuality} }

// Observation is a single schedulable request.
type Observation struct {
	Name       string
	Band       priority.Band
	Required   time.Duration
	Allocated  time.Duration
	Used       time.Duration
	Candidates []StartCandidate
	Affinity   timegrid.Resource

	// Completion and Priority are derived by Set.RecomputePriorities.
	Completion float64
	Priority   float64
}

// NeededSlots is the number of contiguous slots the observation occupies.
func (o Observation) NeededSlots(slotLength time.Duration) int {
	n := int(math.Ceil(float64(o.Required) / float64(slotLength)))
	if n < 1 {
		return 1
	}
	return n
}

// completion returns min(1, (used+required)/allocated), clamped at 0.
func (o Observation) completion() float64 {
	c := float64(o.Used+o.Required) / float64(o.Allocated)
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
