package formulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/obsched/core/ilp"
	"github.com/kilianp07/obsched/core/observation"
	"github.com/kilianp07/obsched/core/priority"
	"github.com/kilianp07/obsched/core/timegrid"
)

const slot = 300 * time.Second

func testGrid(t *testing.T) *timegrid.Grid {
	t.Helper()
	g, err := timegrid.Build(slot, 6, timegrid.GN, timegrid.GS)
	require.NoError(t, err)
	return g
}

func candidates(slots ...int) []observation.StartCandidate {
	out := make([]observation.StartCandidate, len(slots))
	for i, s := range slots {
		out[i] = observation.TS(s)
	}
	return out
}

func newSet(t *testing.T) *observation.Set {
	t.Helper()
	return observation.NewSet(priority.NewDefault())
}

func mustAdd(t *testing.T, s *observation.Set, band priority.Band, cands []observation.StartCandidate, required time.Duration, opts ...observation.AddOption) int {
	t.Helper()
	id, err := s.Add(band, cands, required, opts...)
	require.NoError(t, err)
	return id
}

func TestBuildVariablesAndFamilies(t *testing.T) {
	g := testGrid(t)
	s := newSet(t)
	mustAdd(t, s, priority.Band1, candidates(0, 3), 2*slot)
	mustAdd(t, s, priority.Band2, candidates(1, 7), slot)
	mustAdd(t, s, priority.Band3, nil, slot)
	require.NoError(t, s.RecomputePriorities())

	m, err := Build(g, s)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Problem.NumVars())
	assert.Len(t, m.Vars, 4)
	assert.Equal(t, 3, m.NumObservations())

	// Observation 2 has no candidates and no start row.
	require.Len(t, m.StartConstraints(), 2)
	for _, c := range m.StartConstraints() {
		assert.Len(t, c.Terms, 2)
		assert.Equal(t, 1.0, c.Bound)
	}

	// Covered slots: 0,1 (obs0@0 and obs1@1), 3,4 (obs0@3), 7 (obs1@7).
	rows := map[string]int{}
	for _, c := range m.SlotConstraints() {
		rows[c.Name] = len(c.Terms)
	}
	assert.Equal(t, map[string]int{"slot_0": 1, "slot_1": 2, "slot_3": 1, "slot_4": 1, "slot_7": 1}, rows)

	// Objective is priority times quality.
	assert.InDelta(t, 36.6, m.Problem.Objective[0], 1e-9)
	assert.InDelta(t, 15.8, m.Problem.Objective[2], 1e-9)
	require.NoError(t, m.Problem.Validate())
}

func TestBuildQualityInObjective(t *testing.T) {
	g := testGrid(t)
	s := newSet(t)
	mustAdd(t, s, priority.Band1, []observation.StartCandidate{{Slot: 0, Quality: 0.5}, {Slot: 2, Quality: 0}}, slot)
	require.NoError(t, s.RecomputePriorities())

	m, err := Build(g, s)
	require.NoError(t, err)
	assert.InDelta(t, 18.3, m.Problem.Objective[0], 1e-9)
	assert.Zero(t, m.Problem.Objective[1])
}

func TestBuildRejectsInvalidCandidates(t *testing.T) {
	cases := []struct {
		name  string
		cands []observation.StartCandidate
		req   time.Duration
		err   error
	}{
		{"out of grid", candidates(12), slot, ErrCandidateOutOfGrid},
		{"negative", candidates(-1), slot, ErrCandidateOutOfGrid},
		{"overrun GN", candidates(4), 3 * slot, ErrCandidateOverrun},
		{"overrun GS", candidates(11), 2 * slot, ErrCandidateOverrun},
		{"duplicate", candidates(1, 1), slot, ErrDuplicateCandidate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSet(t)
			mustAdd(t, s, priority.Band2, tc.cands, tc.req)
			require.NoError(t, s.RecomputePriorities())
			_, err := Build(testGrid(t), s)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestBuildLenientDropsCandidates(t *testing.T) {
	s := newSet(t)
	mustAdd(t, s, priority.Band2, candidates(0, 4, 4, 20), 3*slot)
	require.NoError(t, s.RecomputePriorities())

	m, err := Build(testGrid(t), s, WithLenientCandidates())
	require.NoError(t, err)
	require.Len(t, m.Vars, 1)
	assert.Equal(t, 0, m.Vars[0].Slot)
	require.Len(t, m.Dropped, 3)
	assert.ErrorIs(t, m.Dropped[0].Reason, ErrCandidateOverrun)
	assert.ErrorIs(t, m.Dropped[2].Reason, ErrCandidateOutOfGrid)
}

func TestBuildAffinity(t *testing.T) {
	s := newSet(t)
	mustAdd(t, s, priority.Band2, candidates(0, 6, 8), slot, observation.WithAffinity(timegrid.GS))
	require.NoError(t, s.RecomputePriorities())

	m, err := Build(testGrid(t), s)
	require.NoError(t, err)
	require.Len(t, m.Vars, 2)
	assert.Equal(t, 6, m.Vars[0].Slot)
	assert.Equal(t, 8, m.Vars[1].Slot)
	assert.Equal(t, 1, m.Skipped)
}

func TestBuildDuplicateOnExcludedResource(t *testing.T) {
	s := newSet(t)
	mustAdd(t, s, priority.Band2, candidates(2, 2, 7), slot, observation.WithAffinity(timegrid.GS))
	require.NoError(t, s.RecomputePriorities())

	_, err := Build(testGrid(t), s)
	require.ErrorIs(t, err, ErrDuplicateCandidate)

	m, err := Build(testGrid(t), s, WithLenientCandidates())
	require.NoError(t, err)
	require.Len(t, m.Vars, 1)
	assert.Equal(t, 7, m.Vars[0].Slot)
	assert.Equal(t, 1, m.Skipped)
	require.Len(t, m.Dropped, 1)
	assert.ErrorIs(t, m.Dropped[0].Reason, ErrDuplicateCandidate)
}

func TestBuildEmpty(t *testing.T) {
	s := newSet(t)
	m, err := Build(testGrid(t), s)
	require.NoError(t, err)
	assert.True(t, m.Empty())
	plan := m.EmptyPlan()
	assert.Len(t, plan.Schedule, 12)
	assert.Zero(t, plan.Score)
	assert.True(t, plan.Proven())
}

func buildSample(t *testing.T) *Model {
	t.Helper()
	s := newSet(t)
	mustAdd(t, s, priority.Band1, candidates(0, 3), 2*slot)
	mustAdd(t, s, priority.Band2, []observation.StartCandidate{{Slot: 1, Quality: 0.5}, {Slot: 7, Quality: 1}}, slot)
	mustAdd(t, s, priority.Band3, candidates(6), 3*slot)
	require.NoError(t, s.RecomputePriorities())
	m, err := Build(testGrid(t), s)
	require.NoError(t, err)
	return m
}

func TestDecode(t *testing.T) {
	m := buildSample(t)
	// vars: 0 obs0@0, 1 obs0@3, 2 obs1@1, 3 obs1@7, 4 obs2@6
	values := []float64{1, 0, 0, 1, 0}
	sol := ilp.Solution{Values: values, Objective: m.Problem.Evaluate(values), Status: ilp.StatusOptimal}

	plan, err := m.Decode(sol)
	require.NoError(t, err)
	assert.Equal(t, Schedule{0, 0, -1, -1, -1, -1, -1, 1, -1, -1, -1, -1}, plan.Schedule)
	assert.Equal(t, []int{2}, plan.Unscheduled)
	require.Len(t, plan.Starts, 2)
	assert.Equal(t, 0, plan.Starts[0].Slot)
	assert.Equal(t, 7, plan.Starts[1].Slot)
	assert.Equal(t, "obs1", plan.Starts[1].Name)
	assert.InDelta(t, plan.Score, plan.Recompute(), 1e-9)
	assert.InDelta(t, 36.6+15.8, plan.Recompute(), 1e-9)
	assert.True(t, plan.Proven())

	st, ok := plan.StartOf(1)
	require.True(t, ok)
	assert.Equal(t, 7, st.Slot)
	_, ok = plan.StartOf(2)
	assert.False(t, ok)

	occ, ok := plan.Schedule.Occupant(1)
	assert.True(t, ok)
	assert.Equal(t, 0, occ)
	assert.Equal(t, 3, plan.Schedule.Busy(0, 12))
}

func TestDecodeRejectsCorruptSolutions(t *testing.T) {
	m := buildSample(t)

	_, err := m.Decode(ilp.Solution{Values: []float64{1, 1, 0, 0, 0}, Status: ilp.StatusFeasible})
	require.ErrorIs(t, err, ErrMultipleStarts)

	// obs0@0 occupies slots 0-1, obs1@1 overlaps at 1.
	_, err = m.Decode(ilp.Solution{Values: []float64{1, 0, 1, 0, 0}, Status: ilp.StatusFeasible})
	require.ErrorIs(t, err, ErrOverlap)

	_, err = m.Decode(ilp.Solution{Values: []float64{1}, Status: ilp.StatusOptimal})
	require.ErrorIs(t, err, ErrSolutionShape)

	_, err = m.Decode(ilp.Solution{Status: ilp.StatusInfeasible})
	require.ErrorIs(t, err, ErrNoFeasibleSchedule)
}

func TestDecodeTimeoutIsNotProven(t *testing.T) {
	m := buildSample(t)
	plan, err := m.Decode(ilp.Solution{Values: []float64{0, 0, 0, 0, 1}, Status: ilp.StatusTimeout})
	require.NoError(t, err)
	assert.False(t, plan.Proven())
	assert.Equal(t, []int{0, 1}, plan.Unscheduled)
	assert.Equal(t, Schedule{-1, -1, -1, -1, -1, -1, 2, 2, 2, -1, -1, -1}, plan.Schedule)
}
