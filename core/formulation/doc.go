// Package formulation turns a time grid and an observation set into a 0/1
// integer program and decodes solver assignments back into slot schedules.
//
// Variables y[i][s] exist only for the permitted starts of each observation.
// Two constraint families keep the schedule valid: every observation starts
// at most once, and every slot is covered by at most one running
// observation. The objective maximises priority times start quality.
package formulation
