package scenarios

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/obsched/core/factory"
	"github.com/kilianp07/obsched/core/priority"
	"github.com/kilianp07/obsched/core/scheduler"
	"github.com/kilianp07/obsched/core/solver"
	"github.com/kilianp07/obsched/infra/logger"
	"github.com/kilianp07/obsched/infra/metrics"
)

const tolerance = 1e-6

// RunScenario solves sc once per solver and checks the plan against the
// expectation.
func RunScenario(t *testing.T, sc *Scenario) {
	f, err := sc.File()
	require.NoError(t, err)
	for _, name := range sc.Solvers {
		t.Run(name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			sink, err := metrics.NewPromSinkWithRegistry(reg)
			require.NoError(t, err)
			slv, err := solver.New(factory.ModuleConfig{Type: name})
			require.NoError(t, err)

			grid, set, err := f.Build(priority.NewDefault())
			require.NoError(t, err)
			opts := []scheduler.Option{
				scheduler.WithSink(sink),
				scheduler.WithLogger(logger.NopLogger{}),
				scheduler.WithSolverName(name),
			}
			if f.LenientCandidates {
				opts = append(opts, scheduler.WithLenientCandidates())
			}
			res, err := scheduler.New(slv, opts...).Run(context.Background(), grid, set)
			require.NoError(t, err)

			n, err := testutil.GatherAndCount(reg, "obsched_runs_total")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			var unscheduled []string
			for _, id := range res.Plan.Unscheduled {
				o, err := set.At(id)
				require.NoError(t, err)
				unscheduled = append(unscheduled, o.Name)
			}
			if name != solver.TypeBranchAndBound {
				assert.LessOrEqual(t, res.Plan.Score, f.Expect.Score+tolerance)
				return
			}
			assert.True(t, res.Plan.Proven())
			assert.InDelta(t, f.Expect.Score, res.Plan.Score, tolerance)
			assert.ElementsMatch(t, f.Expect.Unscheduled, unscheduled)
		})
	}
}
