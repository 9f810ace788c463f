// Package ilp describes 0/1 integer linear programs and the contract of the
// solvers that optimise them.
//
// A Problem has binary variables, a linear objective to maximise and a list of
// "less than or equal" constraints. Any back-end able to honour Solver can be
// plugged into the scheduling pipeline.
package ilp

import (
	"context"
	"errors"
	"fmt"
)

// ErrMalformedProblem is returned when a problem references unknown variables
// or has mismatched dimensions.
var ErrMalformedProblem = errors.New("malformed problem")

// Status is the outcome of a solve.
type Status int

const (
	// StatusOptimal means the returned assignment is proven optimal.
	StatusOptimal Status = iota
	// StatusFeasible means the assignment is feasible but optimality was not
	// proven, for instance by a heuristic solver.
	StatusFeasible
	// StatusTimeout means the solver stopped on its time or node budget and
	// returned the best assignment found so far.
	StatusTimeout
	// StatusInfeasible means no assignment satisfies the constraints.
	StatusInfeasible
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusTimeout:
		return "timeout"
	case StatusInfeasible:
		return "infeasible"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	for _, st := range []Status{StatusOptimal, StatusFeasible, StatusTimeout, StatusInfeasible} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", string(b))
}

// Term is coef * x[Var].
type Term struct {
	Var  int
	Coef float64
}

// Constraint is Σ Terms <= Bound.
type Constraint struct {
	Name  string
	Terms []Term
	Bound float64
}

// Problem is a maximisation over binary variables.
type Problem struct {
	// Names holds one label per variable; its length is the variable count.
	Names       []string
	Objective   []float64
	Constraints []Constraint
}

// NumVars returns the number of binary variables.
func (p *Problem) NumVars() int { return len(p.Names) }

// AddVar appends a binary variable with objective coefficient obj and returns its index.
func (p *Problem) AddVar(name string, obj float64) int {
	p.Names = append(p.Names, name)
	p.Objective = append(p.Objective, obj)
	return len(p.Names) - 1
}

// AddConstraint appends Σ terms <= bound.
func (p *Problem) AddConstraint(name string, bound float64, terms ...Term) {
	p.Constraints = append(p.Constraints, Constraint{Name: name, Terms: terms, Bound: bound})
}

// Validate checks variable references and dimensions.
func (p *Problem) Validate() error {
	if len(p.Objective) != len(p.Names) {
		return fmt.Errorf("%w: %d objective coefficients for %d variables", ErrMalformedProblem, len(p.Objective), len(p.Names))
	}
	for _, c := range p.Constraints {
		for _, t := range c.Terms {
			if t.Var < 0 || t.Var >= len(p.Names) {
				return fmt.Errorf("%w: constraint %s references variable %d", ErrMalformedProblem, c.Name, t.Var)
			}
		}
	}
	return nil
}

// Evaluate returns the objective value of a 0/1 assignment.
func (p *Problem) Evaluate(values []float64) float64 {
	var sum float64
	for i, v := range values {
		sum += p.Objective[i] * v
	}
	return sum
}

// Feasible reports whether a 0/1 assignment satisfies every constraint
// within tol.
func (p *Problem) Feasible(values []float64, tol float64) bool {
	if len(values) != len(p.Names) {
		return false
	}
	for _, c := range p.Constraints {
		var lhs float64
		for _, t := range c.Terms {
			lhs += t.Coef * values[t.Var]
		}
		if lhs > c.Bound+tol {
			return false
		}
	}
	return true
}

// Solution is a solver's answer. Values holds 0 or 1 per variable.
type Solution struct {
	Values    []float64
	Objective float64
	Status    Status
	// Nodes counts the subproblems explored, when meaningful for the solver.
	Nodes int
}

// Chosen reports whether variable v is set to 1.
func (s Solution) Chosen(v int) bool {
	return v >= 0 && v < len(s.Values) && s.Values[v] > 0.5
}

// Solver optimises a Problem. Implementations must not modify p.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (Solution, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, p *Problem) (Solution, error)

// Solve implements Solver.
func (f SolverFunc) Solve(ctx context.Context, p *Problem) (Solution, error) { return f(ctx, p) }
