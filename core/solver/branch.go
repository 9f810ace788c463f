package solver

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/obsched/core/ilp"
)

// ErrNoIncumbent is returned when the search stops early before any feasible
// assignment was found.
var ErrNoIncumbent = errors.New("search stopped without a feasible assignment")

const (
	// DefaultTolerance is the feasibility and pruning tolerance.
	DefaultTolerance = 1e-9
	feasTol          = 1e-6
)

// Options tune the solvers. Zero values mean no limit and default tolerance.
type Options struct {
	TimeLimit time.Duration `json:"time_limit"`
	MaxNodes  int           `json:"max_nodes"`
	Tolerance float64       `json:"tolerance"`
}

func (o Options) tol() float64 {
	if o.Tolerance <= 0 {
		return DefaultTolerance
	}
	return o.Tolerance
}

// BranchAndBound solves the 0/1 program exactly by depth-first
// branch-and-bound over LP relaxations. A greedy assignment seeds the
// incumbent. When the time limit, node limit or context stops the search
// early the best assignment found so far is returned with StatusTimeout.
type BranchAndBound struct {
	Options
}

// NewBranchAndBound returns an exact solver.
func NewBranchAndBound(opts Options) *BranchAndBound {
	return &BranchAndBound{Options: opts}
}

// Solve implements ilp.Solver.
func (s *BranchAndBound) Solve(ctx context.Context, p *ilp.Problem) (ilp.Solution, error) {
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
	best, bestObj, found := c.greedy(nil, tol)

	root := make([]int8, c.n)
	for i := range root {
		root[i] = free
	}
	stack := [][]int8{root}
	nodes := 0
	stopped := false
	for len(stack) > 0 {
		if ctx.Err() != nil || (s.MaxNodes > 0 && nodes >= s.MaxNodes) {
			stopped = true
			break
		}
		fix := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		// A numeric failure still yields a valid, if loose, bound.
		r, err := c.relax(ctx, fix, tol)
		if err != nil && ctx.Err() != nil {
			stopped = true
			break
		}
		if r.infeasible {
			continue
		}
		if found && r.bound <= bestObj+feasTol {
			continue
		}
		if r.integral {
			if p.Feasible(r.values, feasTol) {
				if obj := p.Evaluate(r.values); !found || obj > bestObj {
					best, bestObj, found = r.values, obj, true
				}
			}
			continue
		}
		zero := make([]int8, len(fix))
		copy(zero, fix)
		zero[r.branch] = 0
		one := make([]int8, len(fix))
		copy(one, fix)
		one[r.branch] = 1
		stack = append(stack, zero, one)
	}

	switch {
	case stopped && !found:
		return ilp.Solution{Status: ilp.StatusTimeout, Nodes: nodes}, ErrNoIncumbent
	case stopped:
		return ilp.Solution{Values: best, Objective: bestObj, Status: ilp.StatusTimeout, Nodes: nodes}, nil
	case !found:
		return ilp.Solution{Status: ilp.StatusInfeasible, Nodes: nodes}, nil
	}
	return ilp.Solution{Values: best, Objective: bestObj, Status: ilp.StatusOptimal, Nodes: nodes}, nil
}
