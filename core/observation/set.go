package observation

import (
	"fmt"
	"time"

	"github.com/kilianp07/obsched/core/priority"
	"github.com/kilianp07/obsched/core/timegrid"
)

// AddOption customises an observation passed to Set.Add.
type AddOption func(*addConfig)

type addConfig struct {
	name         string
	allocated    time.Duration
	hasAllocated bool
	used         time.Duration
	affinity     timegrid.Resource
}

// WithAllocated sets the allocated duration. Without it the allocation
// defaults to the required duration.
func WithAllocated(d time.Duration) AddOption {
	return func(c *addConfig) {
		c.allocated = d
		c.hasAllocated = true
	}
}

// WithUsed records time already spent on the observation.
func WithUsed(d time.Duration) AddOption {
	return func(c *addConfig) { c.used = d }
}

// WithName labels the observation for reports.
func WithName(name string) AddOption {
	return func(c *addConfig) { c.name = name }
}

// WithAffinity restricts the observation to the slots of one resource.
func WithAffinity(r timegrid.Resource) AddOption {
	return func(c *addConfig) { c.affinity = r }
}

// Set is the append-only collection of observations of a scheduling run.
// It is not safe for concurrent mutation.
type Set struct {
	model *priority.Model
	obs   []Observation
}

// NewSet returns an empty set evaluating priorities with model.
func NewSet(model *priority.Model) *Set {
	return &Set{model: model}
}

// Add appends an observation and returns its id.
func (s *Set) Add(band priority.Band, candidates []StartCandidate, required time.Duration, opts ...AddOption) (int, error) {
	cfg := addConfig{affinity: timegrid.Both}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.hasAllocated && cfg.allocated == 0 {
		return 0, ErrZeroAllocation
	}
	if !cfg.hasAllocated {
		cfg.allocated = required
	}
	if !band.Valid() {
		return 0, fmt.Errorf("%w: %w: %d", ErrInvalidObservation, priority.ErrUnknownBand, int(band))
	}
	if required <= 0 {
		return 0, fmt.Errorf("%w: required duration must be positive, got %v", ErrInvalidObservation, required)
	}
	if cfg.allocated < 0 {
		return 0, fmt.Errorf("%w: negative allocation %v", ErrInvalidObservation, cfg.allocated)
	}
	if cfg.used < 0 || cfg.used > required {
		return 0, fmt.Errorf("%w: used %v not in [0, %v]", ErrInvalidObservation, cfg.used, required)
	}
	if cfg.affinity < timegrid.GN || cfg.affinity > timegrid.Both {
		return 0, fmt.Errorf("%w: affinity %v", ErrInvalidObservation, cfg.affinity)
	}
	cands := make([]StartCandidate, len(candidates))
	for i, c := range candidates {
		if c.Quality < 0 {
			return 0, fmt.Errorf("%w: negative quality %v at slot %d", ErrInvalidObservation, c.Quality, c.Slot)
		}
		cands[i] = c
	}
	id := len(s.obs)
	name := cfg.name
	if name == "" {
		name = fmt.Sprintf("obs%d", id)
	}
	s.obs = append(s.obs, Observation{
		Name:       name,
		Band:       band,
		Required:   required,
		Allocated:  cfg.allocated,
		Used:       cfg.used,
		Candidates: cands,
		Affinity:   cfg.affinity,
	})
	return id, nil
}

// Len returns the number of observations.
func (s *Set) Len() int { return len(s.obs) }

// At returns a copy of the observation with the given id.
func (s *Set) At(id int) (Observation, error) {
	if err := s.check(id); err != nil {
		return Observation{}, err
	}
	o := s.obs[id]
	o.Candidates = append([]StartCandidate(nil), o.Candidates...)
	return o, nil
}

// All returns a copy of every observation in id order.
func (s *Set) All() []Observation {
	out := make([]Observation, len(s.obs))
	for i := range s.obs {
		out[i], _ = s.At(i)
	}
	return out
}

// Done reports whether the observation has used its full required time.
func (s *Set) Done(id int) (bool, error) {
	if err := s.check(id); err != nil {
		return false, err
	}
	return s.obs[id].Used >= s.obs[id].Required, nil
}

// RecordUsage adds d to the time used by an observation, capped at the
// required duration. Priorities must be recomputed afterwards.
func (s *Set) RecordUsage(id int, d time.Duration) error {
	if err := s.check(id); err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("%w: negative usage %v", ErrInvalidObservation, d)
	}
	o := &s.obs[id]
	o.Used += d
	if o.Used > o.Required {
		o.Used = o.Required
	}
	return nil
}

// SetAllocated changes the allocated duration of an observation.
// Priorities must be recomputed afterwards.
func (s *Set) SetAllocated(id int, d time.Duration) error {
	if err := s.check(id); err != nil {
		return err
	}
	if d == 0 {
		return ErrZeroAllocation
	}
	if d < 0 {
		return fmt.Errorf("%w: negative allocation %v", ErrInvalidObservation, d)
	}
	s.obs[id].Allocated = d
	return nil
}

// RecomputePriorities refreshes the completion and priority of every
// observation. It must run after any mutation and before a model is built;
// stale priorities are not detected.
func (s *Set) RecomputePriorities() error {
	for i := range s.obs {
		o := &s.obs[i]
		o.Completion = o.completion()
		p, err := s.model.Priority(o.Band, o.Completion)
		if err != nil {
			return fmt.Errorf("observation %d: %w", i, err)
		}
		o.Priority = p
	}
	return nil
}

// Model returns the priority model used by the set.
func (s *Set) Model() *priority.Model { return s.model }

func (s *Set) check(id int) error {
	if id < 0 || id >= len(s.obs) {
		return fmt.Errorf("%w: %d", ErrUnknownObservation, id)
	}
	return nil
}
