package solver

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// intTol is how far an LP value may sit from 0 or 1 and still count as integral.
const intTol = 1e-6

const free int8 = -1

// solveLP runs gonum's simplex on min cᵀx s.t. Ax = b, x >= 0.
func solveLP(c []float64, A mat.Matrix, b []float64, tol float64, basis []int) (float64, []float64, error) {
	return lp.Simplex(c, A, b, tol, basis)
}

// lpSolve points to the function used to solve relaxations. Tests override it
// to simulate solver failures.
var lpSolve = solveLP

type lpResult struct {
	opt float64
	x   []float64
	err error
}

// solveLPContext runs lpSolve until it returns or ctx is done. The simplex
// cannot be interrupted, so an abandoned call finishes in the background and
// its result is dropped.
func solveLPContext(ctx context.Context, c []float64, A mat.Matrix, b []float64, tol float64, basis []int) (float64, []float64, error) {
	solve := lpSolve
	done := make(chan lpResult, 1)
	go func() {
		opt, x, err := solve(c, A, b, tol, basis)
		done <- lpResult{opt: opt, x: x, err: err}
	}()
	select {
	case r := <-done:
		return r.opt, r.x, r.err
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// relaxation is the LP bound of a node.
type relaxation struct {
	infeasible bool
	// bound is an upper bound on every completion of the node.
	bound float64
	// values is a full assignment; free variables hold their LP values.
	values   []float64
	integral bool
	// branch is the most fractional variable, or -1.
	branch int
}

// relax solves the LP relaxation of the node described by fix (free, 0 or 1
// per variable). Rows are kept in inequality form with one slack each so the
// slack basis is feasible from the start. On numeric failure the returned
// relaxation is a trivial bound and the error is reported alongside it. When
// ctx ends first the context error is returned with an empty relaxation.
func (c *compiled) relax(ctx context.Context, fix []int8, tol float64) (relaxation, error) {
	p := c.p
	fixed := make([]int8, len(fix))
	copy(fixed, fix)

	resid := make([]float64, len(p.Constraints))
	for i, con := range p.Constraints {
		resid[i] = con.Bound
		minFree := 0.0
		for _, t := range con.Terms {
			switch fixed[t.Var] {
			case 1:
				resid[i] -= t.Coef
			case free:
				minFree += math.Min(0, t.Coef)
			}
		}
		if resid[i] < minFree-tol {
			return relaxation{infeasible: true}, nil
		}
	}
	// A free variable that alone overflows a nonneg row can only be 0.
	for i, con := range p.Constraints {
		if !c.nonneg[i] {
			continue
		}
		for _, t := range con.Terms {
			if fixed[t.Var] == free && t.Coef > resid[i]+tol {
				fixed[t.Var] = 0
			}
		}
	}

	values := make([]float64, c.n)
	var constant float64
	pos := make([]int, c.n)
	var freeVars []int
	for v, f := range fixed {
		pos[v] = -1
		switch f {
		case 1:
			values[v] = 1
			constant += p.Objective[v]
		case free:
			pos[v] = len(freeVars)
			freeVars = append(freeVars, v)
		}
	}
	if len(freeVars) == 0 {
		return relaxation{bound: constant, values: values, integral: true, branch: -1}, nil
	}

	var rows []int
	for i, con := range p.Constraints {
		for _, t := range con.Terms {
			if fixed[t.Var] == free && t.Coef != 0 {
				rows = append(rows, i)
				break
			}
		}
	}
	var ub []int
	for _, v := range freeVars {
		if !c.bounded[v] {
			ub = append(ub, v)
		}
	}

	nf := len(freeVars)
	m := len(rows) + len(ub)
	A := mat.NewDense(m, nf+m, nil)
	b := make([]float64, m)
	obj := make([]float64, nf+m)
	basis := make([]int, m)
	for k, i := range rows {
		for _, t := range p.Constraints[i].Terms {
			if j := pos[t.Var]; j >= 0 {
				A.Set(k, j, A.At(k, j)+t.Coef)
			}
		}
		b[k] = resid[i]
	}
	for k, v := range ub {
		A.Set(len(rows)+k, pos[v], 1)
		b[len(rows)+k] = 1
	}
	slackFeasible := true
	for k := 0; k < m; k++ {
		A.Set(k, nf+k, 1)
		basis[k] = nf + k
		if b[k] < 0 {
			if b[k] > -tol {
				b[k] = 0
			} else {
				slackFeasible = false
			}
		}
	}
	if !slackFeasible {
		// Let the simplex find its own starting basis.
		basis = nil
	}
	for j, v := range freeVars {
		obj[j] = -p.Objective[v]
	}

	optF, x, err := solveLPContext(ctx, obj, A, b, tol, basis)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return relaxation{}, err
	}
	if errors.Is(err, lp.ErrInfeasible) {
		return relaxation{infeasible: true}, nil
	}
	if err != nil {
		// Fall back to the trivial bound and branch on the first free variable.
		bound := constant
		for _, v := range freeVars {
			bound += math.Max(0, p.Objective[v])
			values[v] = 0.5
		}
		return relaxation{bound: bound, values: values, branch: freeVars[0]}, err
	}

	r := relaxation{bound: constant - optF, values: values, branch: -1}
	worst := intTol
	for j, v := range freeVars {
		xv := math.Min(1, math.Max(0, x[j]))
		values[v] = xv
		if frac := math.Min(xv, 1-xv); frac > worst {
			worst = frac
			r.branch = v
		}
	}
	if r.branch == -1 {
		r.integral = true
		for _, v := range freeVars {
			values[v] = math.Round(values[v])
		}
	}
	return r, nil
}
