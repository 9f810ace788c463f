// Package solver provides ilp.Solver implementations: an exact
// branch-and-bound over gonum's simplex, a single LP relaxation with
// rounding, and a greedy heuristic. Solvers are registered by type name so
// the configuration can select one without the caller knowing which.
package solver
