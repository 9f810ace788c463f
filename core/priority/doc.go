// Package priority maps an observation's completion fraction to a scalar
// priority using one piecewise curve per band.
//
// Each curve is zero at zero completion, quadratic up to its breakpoint,
// linear up to full completion and constant at completion 1. Curves are
// stacked so that band 1 outranks band 2, which outranks band 3, for every
// non-zero completion. Band 4 carries no priority.
package priority
