package formulation

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/obsched/core/ilp"
)

// Unassigned marks a slot with no observation running.
const Unassigned = -1

var (
	// ErrNoFeasibleSchedule is returned when the solver found no assignment.
	ErrNoFeasibleSchedule = errors.New("no feasible schedule")
	// ErrMultipleStarts is returned when an observation starts twice.
	ErrMultipleStarts = errors.New("observation started more than once")
	// ErrOverlap is returned when two observations occupy the same slot.
	ErrOverlap = errors.New("overlapping observations")
	// ErrSolutionShape is returned when the solution does not match the model.
	ErrSolutionShape = errors.New("solution does not match model")
)

// Schedule maps each global slot to the observation occupying it.
type Schedule []int

// Occupant returns the observation in slot t and whether one is present.
func (s Schedule) Occupant(t int) (int, bool) {
	if t < 0 || t >= len(s) || s[t] == Unassigned {
		return Unassigned, false
	}
	return s[t], true
}

// Busy counts occupied slots in [from, to).
func (s Schedule) Busy(from, to int) int {
	n := 0
	for t := from; t < to && t < len(s); t++ {
		if s[t] != Unassigned {
			n++
		}
	}
	return n
}

// Start is one scheduled observation.
type Start struct {
	Obs      int     `json:"obs"`
	Name     string  `json:"name"`
	Slot     int     `json:"slot"`
	Slots    int     `json:"slots"`
	Quality  float64 `json:"quality"`
	Priority float64 `json:"priority"`
}

// Value is the objective contribution of the start.
func (s Start) Value() float64 { return s.Priority * s.Quality }

// Plan is a decoded schedule.
type Plan struct {
	Schedule    Schedule   `json:"schedule"`
	Score       float64    `json:"score"`
	Starts      []Start    `json:"starts"`
	Unscheduled []int      `json:"unscheduled"`
	Status      ilp.Status `json:"status"`
	Nodes       int        `json:"nodes"`
}

// Recompute returns Σ priority × quality over the starts.
func (p *Plan) Recompute() float64 {
	if len(p.Starts) == 0 {
		return 0
	}
	vals := make([]float64, len(p.Starts))
	for i, s := range p.Starts {
		vals[i] = s.Value()
	}
	return floats.Sum(vals)
}

// Proven reports whether the score is known to be optimal. Otherwise it is
// only a lower bound.
func (p *Plan) Proven() bool { return p.Status == ilp.StatusOptimal }

// StartOf returns the start of observation obs, if scheduled.
func (p *Plan) StartOf(obs int) (Start, bool) {
	for _, s := range p.Starts {
		if s.Obs == obs {
			return s, true
		}
	}
	return Start{}, false
}

// EmptyPlan is the plan of a model with no variables.
func (m *Model) EmptyPlan() *Plan {
	plan := &Plan{Schedule: m.emptySchedule(), Status: ilp.StatusOptimal}
	for i := 0; i < m.numObs; i++ {
		plan.Unscheduled = append(plan.Unscheduled, i)
	}
	return plan
}

func (m *Model) emptySchedule() Schedule {
	s := make(Schedule, m.grid.Len())
	for t := range s {
		s[t] = Unassigned
	}
	return s
}

// Decode turns a solver assignment into a plan. Corrupt assignments that
// start an observation twice or double-book a slot are rejected.
func (m *Model) Decode(sol ilp.Solution) (*Plan, error) {
	if sol.Status == ilp.StatusInfeasible {
		return nil, ErrNoFeasibleSchedule
	}
	if len(sol.Values) != len(m.Vars) {
		return nil, fmt.Errorf("%w: %d values for %d variables", ErrSolutionShape, len(sol.Values), len(m.Vars))
	}

	plan := &Plan{
		Schedule: m.emptySchedule(),
		Score:    sol.Objective,
		Status:   sol.Status,
		Nodes:    sol.Nodes,
	}
	started := make([]bool, m.numObs)
	for v, vr := range m.Vars {
		if !sol.Chosen(v) {
			continue
		}
		if started[vr.Obs] {
			return nil, fmt.Errorf("%w: observation %d", ErrMultipleStarts, vr.Obs)
		}
		started[vr.Obs] = true
		for t := vr.Slot; t < vr.Slot+vr.Needed; t++ {
			if plan.Schedule[t] != Unassigned {
				return nil, fmt.Errorf("%w: slot %d holds %d and %d", ErrOverlap, t, plan.Schedule[t], vr.Obs)
			}
			plan.Schedule[t] = vr.Obs
		}
		plan.Starts = append(plan.Starts, Start{
			Obs:      vr.Obs,
			Name:     m.names[vr.Obs],
			Slot:     vr.Slot,
			Slots:    vr.Needed,
			Quality:  vr.Quality,
			Priority: vr.Priority,
		})
	}
	sort.Slice(plan.Starts, func(i, j int) bool { return plan.Starts[i].Slot < plan.Starts[j].Slot })
	for i, ok := range started {
		if !ok {
			plan.Unscheduled = append(plan.Unscheduled, i)
		}
	}
	return plan, nil
}
