package priority

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnknownBand is returned for bands outside 1..4.
	ErrUnknownBand = errors.New("unknown band")
	// ErrCompletionRange is returned when completion is not in [0, 1].
	ErrCompletionRange = errors.New("completion outside [0, 1]")
	// ErrInvalidParams is returned when the curve parameters cannot produce
	// monotone, non-crossing curves.
	ErrInvalidParams = errors.New("invalid priority parameters")
)

// Band is an observation's priority class, 1 being the most urgent.
type Band int

const (
	Band1 Band = iota + 1
	Band2
	Band3
	Band4
)

// Valid reports whether b is one of the four known bands.
func (b Band) Valid() bool { return b >= Band1 && b <= Band4 }

func (b Band) String() string { return fmt.Sprintf("band%d", int(b)) }

// Band3Breakpoint is the breakpoint always used for band 3, regardless of
// the configured breakpoint.
const Band3Breakpoint = 0.8

// Coefficients describes one band curve.
//
//	c == 0        -> 0
//	0 < c < XB    -> M1*c² + B1
//	XB <= c < 1   -> M2*c + B1 + B2
//	c == 1        -> M2 + B1 + B2 + XC0
type Coefficients struct {
	M1  float64 `json:"m1"`
	B1  float64 `json:"b1"`
	M2  float64 `json:"m2"`
	B2  float64 `json:"b2"`
	XB  float64 `json:"xb"`
	XC0 float64 `json:"xc0"`
}

// Eval evaluates the curve at completion x. The caller guarantees x ∈ [0, 1].
func (c Coefficients) Eval(x float64) float64 {
	switch {
	case x == 0:
		return 0
	case x < c.XB:
		return c.M1*x*x + c.B1
	case x < 1:
		return c.M2*x + c.B1 + c.B2
	default:
		return c.M2 + c.B1 + c.B2 + c.XC0
	}
}

// Max is the value of the curve at full completion.
func (c Coefficients) Max() float64 { return c.Eval(1) }

// Params drives the band ranking. Order lists the ranked bands from lowest
// to highest priority; each one receives a jump constant used as the slope of
// its linear segment.
type Params struct {
	Order      []Band           `json:"order"`
	Jumps      map[Band]float64 `json:"jumps"`
	Breakpoint float64          `json:"breakpoint"`
	Offset     float64          `json:"offset"`
	Spread     float64          `json:"spread"`
}

// DefaultParams returns the standard ranking: bands 3, 2, 1 with jumps 1, 6
// and 20, breakpoint 0.8, initial offset 0.2 and spread 5.
func DefaultParams() Params {
	return Params{
		Order:      []Band{Band3, Band2, Band1},
		Jumps:      map[Band]float64{Band3: 1, Band2: 6, Band1: 20},
		Breakpoint: 0.8,
		Offset:     0.2,
		Spread:     5,
	}
}

// BandCoefficients derives the curve of every band from p. Bands are walked
// in p.Order with a running offset b1: each band starts where the previous
// one ended, so curves never cross. Bands absent from the order get the zero
// curve. The result is a fresh map; p is not modified.
func BandCoefficients(p Params) (map[Band]Coefficients, error) {
	if p.Breakpoint <= 0 || p.Breakpoint >= 1 {
		return nil, fmt.Errorf("%w: breakpoint %v not in (0, 1)", ErrInvalidParams, p.Breakpoint)
	}
	if p.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset %v", ErrInvalidParams, p.Offset)
	}
	out := make(map[Band]Coefficients, 4)
	for b := Band1; b <= Band4; b++ {
		out[b] = Coefficients{XB: p.Breakpoint}
	}
	seen := make(map[Band]bool, len(p.Order))
	b1 := p.Offset
	for _, band := range p.Order {
		if !band.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrUnknownBand, int(band))
		}
		if seen[band] {
			return nil, fmt.Errorf("%w: band %d ranked twice", ErrInvalidParams, int(band))
		}
		seen[band] = true
		m2, ok := p.Jumps[band]
		if !ok || m2 <= 0 {
			return nil, fmt.Errorf("%w: band %d needs a positive jump", ErrInvalidParams, int(band))
		}
		xb := p.Breakpoint
		if band == Band3 {
			xb = Band3Breakpoint
		}
		b2 := b1 + p.Spread - m2
		m1 := (m2*xb + b2) / (xb * xb)
		if m1 < 0 {
			return nil, fmt.Errorf("%w: band %d curve would decrease (m1=%v)", ErrInvalidParams, int(band), m1)
		}
		out[band] = Coefficients{M1: m1, B1: b1, M2: m2, B2: b2, XB: xb}
		b1 += m2 + b2
	}
	return out, nil
}

// Model evaluates priorities from an immutable coefficient table.
type Model struct {
	coeffs map[Band]Coefficients
}

// New computes the band table once from p.
func New(p Params) (*Model, error) {
	c, err := BandCoefficients(p)
	if err != nil {
		return nil, err
	}
	return &Model{coeffs: c}, nil
}

// NewDefault returns a Model built from DefaultParams.
func NewDefault() *Model {
	m, err := New(DefaultParams())
	if err != nil {
		panic(err)
	}
	return m
}

// Coefficients returns the curve constants of a band.
func (m *Model) Coefficients(b Band) (Coefficients, error) {
	c, ok := m.coeffs[b]
	if !ok {
		return Coefficients{}, fmt.Errorf("%w: %d", ErrUnknownBand, int(b))
	}
	return c, nil
}

// Priority returns the priority of an observation of band b at the given
// completion. Completion must already be clamped to [0, 1].
func (m *Model) Priority(b Band, completion float64) (float64, error) {
	if math.IsNaN(completion) || completion < 0 || completion > 1 {
		return 0, fmt.Errorf("%w: %v", ErrCompletionRange, completion)
	}
	c, err := m.Coefficients(b)
	if err != nil {
		return 0, err
	}
	return c.Eval(completion), nil
}
