package formulation

import (
	"errors"
	"fmt"

	"github.com/kilianp07/obsched/core/ilp"
	"github.com/kilianp07/obsched/core/observation"
	"github.com/kilianp07/obsched/core/timegrid"
)

var (
	// ErrCandidateOutOfGrid is returned for start slots outside the grid.
	ErrCandidateOutOfGrid = errors.New("start candidate outside grid")
	// ErrCandidateOverrun is returned when a start leaves too few slots on its
	// resource for the observation to complete.
	ErrCandidateOverrun = errors.New("start candidate runs past end of resource")
	// ErrDuplicateCandidate is returned when an observation lists a start slot twice.
	ErrDuplicateCandidate = errors.New("duplicate start candidate")
)

// Variable ties a binary decision variable to the start it represents.
type Variable struct {
	Obs       int     `json:"obs"`
	Candidate int     `json:"candidate"`
	Slot      int     `json:"slot"`
	Needed    int     `json:"needed"`
	Quality   float64 `json:"quality"`
	Priority  float64 `json:"priority"`
}

// Dropped records a start candidate discarded in lenient mode.
type Dropped struct {
	Obs    int
	Slot   int
	Reason error
}

// Model is the solver-ready formulation of one scheduling run.
type Model struct {
	Problem ilp.Problem
	Vars    []Variable
	// Dropped lists candidates rejected in lenient mode.
	Dropped []Dropped
	// Skipped counts candidates ignored because of resource affinity.
	Skipped int

	grid   *timegrid.Grid
	numObs int
	names  []string
	// Rows split the constraints into families.
	startRows int
}

// BuildOption customises Build.
type BuildOption func(*buildConfig)

type buildConfig struct {
	lenient bool
}

// WithLenientCandidates drops invalid start candidates instead of failing.
func WithLenientCandidates() BuildOption {
	return func(c *buildConfig) { c.lenient = true }
}

// Build formulates the scheduling problem. Priorities of set must be current
// (see observation.Set.RecomputePriorities). Start candidates must fit
// within their resource; offending candidates are rejected unless
// WithLenientCandidates is given.
func Build(grid *timegrid.Grid, set *observation.Set, opts ...BuildOption) (*Model, error) {
	var cfg buildConfig
	for _, o := range opts {
		o(&cfg)
	}
	all := set.All()
	m := &Model{grid: grid, numObs: len(all), names: make([]string, len(all))}
	// cover[t] lists the variables whose occupancy window contains slot t.
	cover := make([][]int, grid.Len())

	for i, o := range all {
		m.names[i] = o.Name
		needed := o.NeededSlots(grid.SlotLength())
		seen := make(map[int]bool, len(o.Candidates))
		var terms []ilp.Term
		for ci, c := range o.Candidates {
			skip, err := m.checkCandidate(o, c, needed, seen)
			if err != nil {
				if !cfg.lenient {
					return nil, fmt.Errorf("observation %d (%s): %w", i, o.Name, err)
				}
				m.Dropped = append(m.Dropped, Dropped{Obs: i, Slot: c.Slot, Reason: err})
				continue
			}
			if skip {
				m.Skipped++
				continue
			}
			v := m.Problem.AddVar(fmt.Sprintf("y_%d_%d", i, c.Slot), o.Priority*c.Quality)
			m.Vars = append(m.Vars, Variable{
				Obs:       i,
				Candidate: ci,
				Slot:      c.Slot,
				Needed:    needed,
				Quality:   c.Quality,
				Priority:  o.Priority,
			})
			terms = append(terms, ilp.Term{Var: v, Coef: 1})
			for t := c.Slot; t < c.Slot+needed; t++ {
				cover[t] = append(cover[t], v)
			}
		}
		if len(terms) > 0 {
			m.Problem.AddConstraint(fmt.Sprintf("start_%d", i), 1, terms...)
			m.startRows++
		}
	}

	for t, vars := range cover {
		if len(vars) == 0 {
			continue
		}
		terms := make([]ilp.Term, len(vars))
		for k, v := range vars {
			terms[k] = ilp.Term{Var: v, Coef: 1}
		}
		m.Problem.AddConstraint(fmt.Sprintf("slot_%d", t), 1, terms...)
	}
	return m, nil
}

// checkCandidate validates one start and marks its slot as seen. It returns
// skip=true when the start is on a resource the observation is not allowed to
// use.
func (m *Model) checkCandidate(o observation.Observation, c observation.StartCandidate, needed int, seen map[int]bool) (bool, error) {
	res, _, err := m.grid.Locate(c.Slot)
	if err != nil {
		return false, fmt.Errorf("%w: slot %d", ErrCandidateOutOfGrid, c.Slot)
	}
	if seen[c.Slot] {
		return false, fmt.Errorf("%w: slot %d", ErrDuplicateCandidate, c.Slot)
	}
	seen[c.Slot] = true
	if !o.Affinity.Accepts(res) {
		return true, nil
	}
	end, err := m.grid.BlockEnd(c.Slot)
	if err != nil {
		return false, err
	}
	if c.Slot+needed > end {
		return false, fmt.Errorf("%w: slot %d needs %d slots, %d left on %v", ErrCandidateOverrun, c.Slot, needed, end-c.Slot, res)
	}
	return false, nil
}

// Grid returns the grid the model was built on.
func (m *Model) Grid() *timegrid.Grid { return m.grid }

// NumObservations returns the number of observations in the run, including
// those without variables.
func (m *Model) NumObservations() int { return m.numObs }

// StartConstraints returns the single-start family.
func (m *Model) StartConstraints() []ilp.Constraint {
	return m.Problem.Constraints[:m.startRows]
}

// SlotConstraints returns the no-double-booking family.
func (m *Model) SlotConstraints() []ilp.Constraint {
	return m.Problem.Constraints[m.startRows:]
}

// Empty reports whether the model has no decision variables.
func (m *Model) Empty() bool { return len(m.Vars) == 0 }
