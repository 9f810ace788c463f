package dataset

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnknownExample is returned by Example for unregistered names.
var ErrUnknownExample = errors.New("unknown example")

// Every built-in example uses six 5-minute slots per site:
//
//	GN: 0 1 2 3  4  5
//	GS: 6 7 8 9 10 11
const (
	exampleSlots      = 6
	exampleSlotLength = Duration(300 * time.Second)
)

func exampleGrid() GridSpec {
	return GridSpec{SlotLength: exampleSlotLength, SlotsPerResource: exampleSlots}
}

func obs(band int, seconds int, starts ...int) ObservationSpec {
	return ObservationSpec{
		Band:     band,
		Required: Duration(time.Duration(seconds) * time.Second),
		Starts:   starts,
	}
}

func graded(band int, seconds int, cands ...CandidateSpec) ObservationSpec {
	return ObservationSpec{
		Band:       band,
		Required:   Duration(time.Duration(seconds) * time.Second),
		Candidates: cands,
	}
}

var examples = map[string]func() *File{
	"fully-scheduled": func() *File {
		return &File{
			Name:        "fully-scheduled",
			Description: "Every observation fits.",
			Grid:        exampleGrid(),
			Observations: []ObservationSpec{
				obs(3, 300, 0, 1, 2, 5, 6, 9),
				obs(2, 900, 0, 3, 8),
				obs(3, 600, 1, 3, 4, 8, 10),
				obs(1, 300, 0, 3, 6, 9, 11),
				obs(2, 900, 1, 3, 7, 9),
				obs(1, 600, 3, 8, 10),
			},
			Expect: &Expectation{Score: 115.6},
		}
	},
	"under-scheduled": func() *File {
		return &File{
			Name:        "under-scheduled",
			Description: "Every observation fits with time left over.",
			Grid:        exampleGrid(),
			Observations: []ObservationSpec{
				obs(2, 800, 0, 7, 9),
				obs(1, 600, 0, 2, 4),
				obs(1, 900, 3),
				obs(3, 300, 2, 5, 6, 10),
				obs(3, 300, 1, 3, 5, 6, 10),
			},
			Expect: &Expectation{Score: 99.8},
		}
	},
	"over-scheduled": func() *File {
		return &File{
			Name:        "over-scheduled",
			Description: "More requested time than the sites offer; the band 3 observations lose.",
			Grid:        exampleGrid(),
			Observations: []ObservationSpec{
				obs(1, 900, 0, 1, 3, 6, 7, 8, 9),
				obs(2, 900, 1, 3, 7, 8),
				obs(2, 600, 1, 2, 3, 4, 6, 8, 9, 10),
				obs(1, 1200, 0, 2, 6, 7, 8),
				obs(3, 300, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11),
				obs(3, 300, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11),
			},
			Expect: &Expectation{Score: 104.8, Unscheduled: []string{"obs4", "obs5"}},
		}
	},
	"do-not-fit": func() *File {
		return &File{
			Name:        "do-not-fit",
			Description: "Enough total time, but the start slots leave no room for obs2.",
			Grid:        exampleGrid(),
			Observations: []ObservationSpec{
				obs(1, 600, 0, 7, 10),
				obs(2, 900, 3, 8),
				obs(3, 600, 0, 1, 2, 3, 4, 6, 7, 8, 9, 10),
				obs(1, 600, 0, 7, 10),
				obs(2, 300, 0, 3, 4, 7, 9, 10, 11),
				obs(2, 600, 0, 7, 10),
			},
			Expect: &Expectation{Score: 120.6, Unscheduled: []string{"obs2"}},
		}
	},
	"metric": func() *File {
		c := Candidate
		return &File{
			Name:        "metric",
			Description: "Start qualities pick a unique arrangement. Two starts overrun the GN block and are dropped.",
			// obs3 and obs4 list slot 4, which cannot hold 15 minutes.
			LenientCandidates: true,
			Grid:              exampleGrid(),
			Observations: []ObservationSpec{
				graded(3, 600, c(0, 1), c(1, .9), c(2, .6), c(3, .1), c(4, .1),
					c(6, .1), c(7, .1), c(8, .1), c(9, .1), c(10, .1)),
				graded(1, 600, c(0, .6), c(1, .9), c(2, 1), c(3, .9), c(4, .6),
					c(6, .1), c(7, .1), c(8, .1), c(9, .1), c(10, .1)),
				graded(2, 600, c(0, .1), c(1, .1), c(2, .6), c(3, .9), c(4, 1),
					c(6, .1), c(7, .1), c(8, .1), c(9, .1), c(10, .1)),
				graded(1, 900, c(0, .1), c(1, .1), c(2, .1), c(3, .1), c(4, .1),
					c(6, 1), c(7, .9), c(8, .6), c(9, .1)),
				graded(2, 900, c(0, .1), c(1, .1), c(2, .1), c(3, .1), c(4, .1),
					c(6, .1), c(7, .6), c(8, .9), c(9, 1)),
			},
			Expect: &Expectation{Score: 110.2},
		}
	},
	"nometric": func() *File {
		return &File{
			Name:        "nometric",
			Description: "The metric example with uniform quality; any packing is optimal.",
			Grid:        exampleGrid(),
			Observations: []ObservationSpec{
				obs(3, 600, 0, 1, 2, 3, 4, 6, 7, 8, 9, 10),
				obs(1, 600, 0, 1, 2, 3, 4, 6, 7, 8, 9, 10),
				obs(2, 600, 0, 1, 2, 3, 4, 6, 7, 8, 9, 10),
				obs(1, 900, 0, 1, 2, 3, 6, 7, 8, 9),
				obs(2, 900, 0, 1, 2, 3, 6, 7, 8, 9),
			},
			Expect: &Expectation{Score: 110.2},
		}
	},
	"quality-tiebreak": func() *File {
		return &File{
			Name:        "quality-tiebreak",
			Description: "Two band 2 observations want the whole GN block; the better start wins.",
			Grid:        exampleGrid(),
			Observations: []ObservationSpec{
				{Name: "dim", Band: 2, Required: Duration(30 * time.Minute), Candidates: []CandidateSpec{Candidate(0, 0.4)}},
				{Name: "sharp", Band: 2, Required: Duration(30 * time.Minute), Candidates: []CandidateSpec{Candidate(0, 1)}},
			},
			Expect: &Expectation{Score: 15.8, Unscheduled: []string{"dim"}},
		}
	},
}

// ExampleNames lists the built-in examples in alphabetical order.
func ExampleNames() []string {
	out := make([]string, 0, len(examples))
	for name := range examples {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Example returns a fresh copy of a built-in example.
func Example(name string) (*File, error) {
	mk, ok := examples[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExample, name)
	}
	return mk(), nil
}

// Examples returns every built-in example, ordered by name.
func Examples() []*File {
	names := ExampleNames()
	out := make([]*File, len(names))
	for i, n := range names {
		out[i] = examples[n]()
	}
	return out
}
