package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"
)

// ErrInvalidOptions is returned by Generate for unusable options.
var ErrInvalidOptions = errors.New("invalid generator options")

// GenerateOptions drives the synthetic workload generator.
type GenerateOptions struct {
	Seed             int64         `json:"seed"`
	Observations     int           `json:"observations"`
	SlotsPerResource int           `json:"slots_per_resource"`
	SlotLength       time.Duration `json:"slot_length"`
	// Required lengths are drawn uniformly from [MinSlots, MaxSlots) slots.
	MinSlots int `json:"min_slots"`
	MaxSlots int `json:"max_slots"`
	// Each observation gets between AllowanceMin and AllowanceMax of the
	// whole grid as start candidates.
	AllowanceMin float64 `json:"allowance_min"`
	AllowanceMax float64 `json:"allowance_max"`
	// RandomAffinity pins observations to GN, GS or Both at random.
	RandomAffinity bool `json:"random_affinity"`
	// WindowProbability is the chance of each bound of a time window being
	// drawn. Zero disables windows.
	WindowProbability float64 `json:"window_probability"`
}

// DefaultGenerateOptions describes ten nights of 10 hours in 5-minute slots
// with 100 observations lasting between 30 minutes and 3 hours.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Observations:     100,
		SlotsPerResource: 12 * 10 * 10,
		SlotLength:       5 * time.Minute,
		MinSlots:         6,
		MaxSlots:         36,
		AllowanceMin:     0.01,
		AllowanceMax:     0.03,
	}
}

func (o GenerateOptions) validate() error {
	switch {
	case o.Observations < 0:
		return fmt.Errorf("%w: negative observation count", ErrInvalidOptions)
	case o.SlotsPerResource <= 0:
		return fmt.Errorf("%w: slots_per_resource must be positive", ErrInvalidOptions)
	case o.SlotLength <= 0:
		return fmt.Errorf("%w: slot_length must be positive", ErrInvalidOptions)
	case o.MinSlots < 1 || o.MaxSlots <= o.MinSlots:
		return fmt.Errorf("%w: need 1 <= min_slots < max_slots, got %d and %d", ErrInvalidOptions, o.MinSlots, o.MaxSlots)
	case o.AllowanceMin < 0 || o.AllowanceMax > 1 || o.AllowanceMin > o.AllowanceMax:
		return fmt.Errorf("%w: allowance range [%v, %v]", ErrInvalidOptions, o.AllowanceMin, o.AllowanceMax)
	case o.WindowProbability < 0 || o.WindowProbability > 1:
		return fmt.Errorf("%w: window_probability %v", ErrInvalidOptions, o.WindowProbability)
	}
	return nil
}

var affinities = []string{"GN", "GS", "Both"}

// Generate builds a random dataset on a GN+GS grid. The same options and
// seed always produce the same file. Candidates are drawn only among starts
// whose run stays inside its site block and time window, so every generated
// file loads without lenient mode.
func Generate(o GenerateOptions) (*File, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(o.Seed))
	per := o.SlotsPerResource
	f := &File{
		Name:        fmt.Sprintf("generated-%d", o.Seed),
		Description: fmt.Sprintf("%d random observations on %d slots per site", o.Observations, per),
		Grid:        GridSpec{SlotLength: Duration(o.SlotLength), SlotsPerResource: per},
	}
	for i := 0; i < o.Observations; i++ {
		band := 1 + rng.Intn(3)
		slots := o.MinSlots + rng.Intn(o.MaxSlots-o.MinSlots)
		affinity := "Both"
		if o.RandomAffinity {
			affinity = affinities[rng.Intn(len(affinities))]
		}
		lo, hi := 0, per
		if o.WindowProbability > 0 {
			lo, hi = window(rng, per, o.WindowProbability)
		}

		pool := startPool(per, slots, lo, hi, affinity)
		want := int(uniform(rng, o.AllowanceMin, o.AllowanceMax) * float64(2*per))
		if want > len(pool) {
			want = len(pool)
		}
		if want == 0 && len(pool) > 0 {
			want = 1
		}
		picked := rng.Perm(len(pool))[:want]
		sort.Ints(picked)
		cands := make([]CandidateSpec, want)
		for k, idx := range picked {
			cands[k] = Candidate(pool[idx], math.Round(rng.Float64()*1000)/1000)
		}

		f.Observations = append(f.Observations, ObservationSpec{
			Name:       fmt.Sprintf("gen%03d", i),
			Band:       band,
			Required:   Duration(time.Duration(slots) * o.SlotLength),
			Affinity:   affinity,
			Candidates: cands,
		})
	}
	return f, nil
}

// window draws an optional lower and upper slot bound; an inverted pair is
// redrawn.
func window(rng *rand.Rand, per int, p float64) (int, int) {
	for {
		lo, hi := 0, per
		hasLo, hasHi := rng.Float64() < p, rng.Float64() < p
		if hasLo {
			lo = rng.Intn(per)
		}
		if hasHi {
			hi = rng.Intn(per) + 1
		}
		if lo < hi {
			return lo, hi
		}
	}
}

// startPool lists the global start slots of a run of length slots lying in
// [lo, hi) on every site accepted by affinity. GN occupies the first block.
func startPool(per, slots, lo, hi int, affinity string) []int {
	var pool []int
	for block, site := range []string{"GN", "GS"} {
		if affinity != "Both" && affinity != site {
			continue
		}
		for off := lo; off+slots <= hi; off++ {
			pool = append(pool, block*per+off)
		}
	}
	return pool
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
