package solver

import (
	"context"
	"sort"

	"github.com/kilianp07/obsched/core/ilp"
)

// Greedy takes variables by decreasing objective while they fit. It never
// proves optimality.
type Greedy struct {
	Options
}

// NewGreedy returns the greedy heuristic.
func NewGreedy(opts Options) *Greedy { return &Greedy{Options: opts} }

// Solve implements ilp.Solver.
func (s *Greedy) Solve(_ context.Context, p *ilp.Problem) (ilp.Solution, error) {
	if err := p.Validate(); err != nil {
		return ilp.Solution{}, err
	}
	if p.NumVars() == 0 {
		return ilp.Solution{Values: []float64{}, Status: ilp.StatusOptimal}, nil
	}
	values, obj, ok := compile(p).greedy(nil, s.tol())
	if !ok {
		return ilp.Solution{Status: ilp.StatusInfeasible}, nil
	}
	return ilp.Solution{Values: values, Objective: obj, Status: ilp.StatusFeasible}, nil
}

// Relaxation solves the root LP once and rounds it: variables are tried in
// order of decreasing LP value, then greedily by objective. An integral LP
// optimum is returned as optimal. When the time limit or ctx ends the LP
// first, the plain greedy assignment is returned with StatusTimeout.
type Relaxation struct {
	Options
}

// NewRelaxation returns the LP rounding heuristic.
func NewRelaxation(opts Options) *Relaxation { return &Relaxation{Options: opts} }

// Solve implements ilp.Solver.
func (s *Relaxation) Solve(ctx context.Context, p *ilp.Problem) (ilp.Solution, error) {
	if err := p.Validate(); err != nil {
		return ilp.Solution{}, err
	}
	if p.NumVars() == 0 {
		return ilp.Solution{Values: []float64{}, Status: ilp.StatusOptimal}, nil
	}
	if s.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.TimeLimit)
		defer cancel()
	}
	tol := s.tol()
	c := compile(p)
	root := make([]int8, c.n)
	for i := range root {
		root[i] = free
	}
	r, err := c.relax(ctx, root, tol)
	if err != nil && ctx.Err() != nil {
		values, obj, ok := c.greedy(nil, tol)
		if !ok {
			return ilp.Solution{Status: ilp.StatusTimeout}, ErrNoIncumbent
		}
		return ilp.Solution{Values: values, Objective: obj, Status: ilp.StatusTimeout}, nil
	}
	if r.infeasible {
		return ilp.Solution{Status: ilp.StatusInfeasible, Nodes: 1}, nil
	}
	if err == nil && r.integral && p.Feasible(r.values, feasTol) {
		return ilp.Solution{Values: r.values, Objective: p.Evaluate(r.values), Status: ilp.StatusOptimal, Nodes: 1}, nil
	}

	var prefer []int
	if err == nil {
		for v, x := range r.values {
			if x > intTol {
				prefer = append(prefer, v)
			}
		}
		sort.SliceStable(prefer, func(i, j int) bool { return r.values[prefer[i]] > r.values[prefer[j]] })
	}
	values, obj, ok := c.greedy(prefer, tol)
	if !ok {
		return ilp.Solution{Status: ilp.StatusInfeasible, Nodes: 1}, nil
	}
	return ilp.Solution{Values: values, Objective: obj, Status: ilp.StatusFeasible, Nodes: 1}, nil
}
