package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/obsched/core/formulation"
	"github.com/kilianp07/obsched/core/ilp"
	"github.com/kilianp07/obsched/core/observation"
	"github.com/kilianp07/obsched/core/priority"
	"github.com/kilianp07/obsched/core/timegrid"
)

const slot = 5 * time.Minute

func fixture(t *testing.T) (*timegrid.Grid, *observation.Set, *formulation.Plan) {
	t.Helper()
	grid, err := timegrid.Build(slot, 6, timegrid.GN, timegrid.GS)
	require.NoError(t, err)
	set := observation.NewSet(priority.NewDefault())
	add := func(band priority.Band, req time.Duration, name string, cands ...observation.StartCandidate) {
		_, err := set.Add(band, cands, req, observation.WithName(name))
		require.NoError(t, err)
	}
	add(priority.Band1, 2*slot, "alpha", observation.TS(1), observation.TS(7))
	add(priority.Band3, 3*slot, "beta", observation.StartCandidate{Slot: 8, Quality: 0.5})
	add(priority.Band2, slot, "gamma", observation.TS(0))
	require.NoError(t, set.RecomputePriorities())

	model, err := formulation.Build(grid, set)
	require.NoError(t, err)
	values := make([]float64, model.Problem.NumVars())
	var obj float64
	for v, vr := range model.Vars {
		// alpha on GN slot 1, beta on GS slot 8.
		if (vr.Obs == 0 && vr.Slot == 1) || vr.Obs == 1 {
			values[v] = 1
			obj += model.Problem.Objective[v]
		}
	}
	plan, err := model.Decode(ilp.Solution{Values: values, Objective: obj, Status: ilp.StatusOptimal})
	require.NoError(t, err)
	return grid, set, plan
}

func TestSummarize(t *testing.T) {
	grid, set, plan := fixture(t)
	s, err := Summarize(grid, set, plan)
	require.NoError(t, err)
	assert.True(t, s.Proven)
	assert.Equal(t, []string{"gamma"}, s.Unscheduled)
	require.Len(t, s.Sites, 2)

	gn := s.Sites[0]
	assert.Equal(t, timegrid.GN, gn.Resource)
	require.Len(t, gn.Timeline, 3)
	assert.Equal(t, Entry{Gap: true, Start: 0, Length: slot, Obs: -1}, gn.Timeline[0])
	assert.Equal(t, "alpha", gn.Timeline[1].Name)
	assert.Equal(t, slot, gn.Timeline[1].Start)
	assert.Equal(t, Entry{Gap: true, Start: 3 * slot, Length: 3 * slot, Obs: -1}, gn.Timeline[2])
	assert.Equal(t, 10*time.Minute, gn.Used)
	assert.Equal(t, 30*time.Minute, gn.Capacity)
	assert.InDelta(t, 1.0/3, gn.Usage, 1e-9)
	assert.InDelta(t, 36.6/3, gn.Fitness, 1e-9)

	gs := s.Sites[1]
	require.Len(t, gs.Timeline, 3)
	assert.Equal(t, 2*slot, gs.Timeline[0].Length)
	assert.Equal(t, slot, gs.Timeline[2].Length)
	assert.Equal(t, "beta", gs.Timeline[1].Name)
	assert.Equal(t, 0.5, gs.Timeline[1].Quality)
	assert.InDelta(t, 0.5, gs.Usage, 1e-9)
	assert.InDelta(t, 5.4/2, gs.Fitness, 1e-9)
}

func TestSummarizeEmptySite(t *testing.T) {
	grid, set, _ := fixture(t)
	plan := &formulation.Plan{Status: ilp.StatusTimeout, Unscheduled: []int{0, 1, 2}}
	s, err := Summarize(grid, set, plan)
	require.NoError(t, err)
	assert.False(t, s.Proven)
	for _, site := range s.Sites {
		assert.Equal(t, []Entry{{Gap: true, Length: 30 * time.Minute, Obs: -1}}, site.Timeline)
		assert.Zero(t, site.Fitness)
	}
	assert.Len(t, s.Unscheduled, 3)
}

func TestSummarizeRejectsForeignPlan(t *testing.T) {
	grid, set, _ := fixture(t)
	_, err := Summarize(grid, set, &formulation.Plan{Starts: []formulation.Start{{Obs: 9}}})
	assert.ErrorIs(t, err, observation.ErrUnknownObservation)
	_, err = Summarize(grid, set, &formulation.Plan{Unscheduled: []int{5}})
	assert.ErrorIs(t, err, observation.ErrUnknownObservation)
	_, err = Summarize(grid, set, &formulation.Plan{Starts: []formulation.Start{{Obs: 0, Slot: 99}}})
	assert.ErrorIs(t, err, timegrid.ErrIndexOutOfRange)
}

func TestWrite(t *testing.T) {
	grid, set, plan := fixture(t)
	s, err := Summarize(grid, set, plan)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s))
	out := buf.String()
	assert.Contains(t, out, "Final score: 39.300 (optimal)")
	assert.Contains(t, out, "Gemini North:")
	assert.Contains(t, out, "Gemini South:")
	assert.Contains(t, out, "\tGap of 5m0s")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "Usage: 10m0s of 30m0s (33.3%)")
	assert.Contains(t, out, "Unscheduled: gamma")
	assert.NotContains(t, out, "lower bound")
	assert.NotContains(t, out, "\x1b[", "no escape codes outside a terminal")

	s.Proven = false
	buf.Reset()
	require.NoError(t, Write(&buf, s))
	assert.Contains(t, buf.String(), "lower bound")
}

func TestWriteObservations(t *testing.T) {
	grid, set, _ := fixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteObservations(&buf, grid, set))
	out := buf.String()
	assert.Contains(t, out, "PRIORITY")
	assert.Contains(t, out, "GN1(1) | GS1(1)")
	assert.Contains(t, out, "GS2(0.5)")
	assert.Contains(t, out, "36.600")
}
