package solver

import (
	"sort"

	"github.com/kilianp07/obsched/core/ilp"
)

type rowRef struct {
	row  int
	coef float64
}

// compiled indexes a problem for repeated relaxations.
type compiled struct {
	p       *ilp.Problem
	n       int
	varRows [][]rowRef
	// nonneg marks rows whose coefficients are all >= 0.
	nonneg []bool
	// bounded marks variables whose <= 1 bound is implied by a nonneg row.
	bounded []bool
}

func compile(p *ilp.Problem) *compiled {
	n := p.NumVars()
	c := &compiled{
		p:       p,
		n:       n,
		varRows: make([][]rowRef, n),
		nonneg:  make([]bool, len(p.Constraints)),
		bounded: make([]bool, n),
	}
	for i, con := range p.Constraints {
		c.nonneg[i] = true
		for _, t := range con.Terms {
			if t.Coef < 0 {
				c.nonneg[i] = false
			}
			c.varRows[t.Var] = append(c.varRows[t.Var], rowRef{row: i, coef: t.Coef})
		}
	}
	for i, con := range p.Constraints {
		if !c.nonneg[i] {
			continue
		}
		for _, t := range con.Terms {
			if t.Coef > 0 && con.Bound/t.Coef <= 1 {
				c.bounded[t.Var] = true
			}
		}
	}
	return c
}

func (c *compiled) fits(v int, lhs []float64, tol float64) bool {
	for _, r := range c.varRows[v] {
		if lhs[r.row]+r.coef > c.p.Constraints[r.row].Bound+tol {
			return false
		}
	}
	return true
}

func (c *compiled) take(v int, lhs []float64) {
	for _, r := range c.varRows[v] {
		lhs[r.row] += r.coef
	}
}

// greedy sets variables to 1 while they fit, trying prefer first and then
// the rest by decreasing objective (ties by index). Only variables with a
// positive objective are taken. ok is false when the all-zero assignment
// already violates a constraint.
func (c *compiled) greedy(prefer []int, tol float64) (values []float64, obj float64, ok bool) {
	for _, con := range c.p.Constraints {
		if con.Bound < -tol {
			return nil, 0, false
		}
	}
	lhs := make([]float64, len(c.p.Constraints))
	values = make([]float64, c.n)
	try := func(v int) {
		if values[v] == 1 || c.p.Objective[v] <= 0 || !c.fits(v, lhs, tol) {
			return
		}
		c.take(v, lhs)
		values[v] = 1
	}
	for _, v := range prefer {
		try(v)
	}
	for _, v := range c.byObjective() {
		try(v)
	}
	return values, c.p.Evaluate(values), true
}

func (c *compiled) byObjective() []int {
	order := make([]int, c.n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return c.p.Objective[order[i]] > c.p.Objective[order[j]]
	})
	return order
}
