package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/obsched/core/formulation"
	"github.com/kilianp07/obsched/core/ilp"
	"github.com/kilianp07/obsched/core/logger"
	"github.com/kilianp07/obsched/core/metrics"
	"github.com/kilianp07/obsched/core/observation"
	"github.com/kilianp07/obsched/core/runlog"
	"github.com/kilianp07/obsched/core/timegrid"
)

// ErrInfeasible indicates the solver found no feasible schedule. With only
// packing constraints the empty schedule is always feasible, so this points
// at a solver anomaly.
var ErrInfeasible = errors.New("solver reported the schedule infeasible")

// scoreTol is the accepted gap between the solver objective and the
// recomputed plan score.
const scoreTol = 1e-6

// Scheduler wires a solver to the formulation and the observability stack.
type Scheduler struct {
	solver     ilp.Solver
	solverName string
	store      runlog.Store
	sink       metrics.MetricsSink
	log        logger.Logger
	lenient    bool

	now   func() time.Time
	newID func() string
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithStore records every run in s.
func WithStore(s runlog.Store) Option { return func(sc *Scheduler) { sc.store = s } }

// WithSink reports every run to s.
func WithSink(s metrics.MetricsSink) Option { return func(sc *Scheduler) { sc.sink = s } }

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(sc *Scheduler) { sc.log = l } }

// WithSolverName labels runs in records and metrics.
func WithSolverName(name string) Option { return func(sc *Scheduler) { sc.solverName = name } }

// WithLenientCandidates drops invalid start candidates instead of failing.
func WithLenientCandidates() Option { return func(sc *Scheduler) { sc.lenient = true } }

// New returns a Scheduler using solver.
func New(solver ilp.Solver, opts ...Option) *Scheduler {
	s := &Scheduler{
		solver:     solver,
		solverName: fmt.Sprintf("%T", solver),
		store:      runlog.NopStore{},
		sink:       metrics.NopSink{},
		log:        logger.NopLogger{},
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = logger.OrNop(s.log)
	return s
}

// Result is the outcome of one run.
type Result struct {
	RunID     string
	Plan      *formulation.Plan
	Model     *formulation.Model
	SolveTime time.Duration
	Record    runlog.RunRecord
}

// Run schedules set on grid. Priorities are recomputed first. The run is
// recorded even when it fails after formulation.
func (s *Scheduler) Run(ctx context.Context, grid *timegrid.Grid, set *observation.Set) (*Result, error) {
	runID := s.newID()
	if err := set.RecomputePriorities(); err != nil {
		return nil, fmt.Errorf("recompute priorities: %w", err)
	}
	var buildOpts []formulation.BuildOption
	if s.lenient {
		buildOpts = append(buildOpts, formulation.WithLenientCandidates())
	}
	model, err := formulation.Build(grid, set, buildOpts...)
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	all := set.All()
	for _, d := range model.Dropped {
		s.log.Warnf("run %s: dropped start %d of %s: %v", runID, d.Slot, all[d.Obs].Name, d.Reason)
	}
	s.log.Debugw("model built", map[string]any{
		"run_id":       runID,
		"observations": model.NumObservations(),
		"variables":    model.Problem.NumVars(),
		"constraints":  len(model.Problem.Constraints),
		"skipped":      model.Skipped,
	})

	res := &Result{RunID: runID, Model: model}
	started := s.now()
	var plan *formulation.Plan
	if model.Empty() {
		plan = model.EmptyPlan()
	} else {
		sol, err := s.solver.Solve(ctx, &model.Problem)
		res.SolveTime = s.now().Sub(started)
		if err != nil {
			err = fmt.Errorf("solve: %w", err)
			s.fail(ctx, res, grid, all, "error", err)
			return nil, err
		}
		if sol.Status == ilp.StatusInfeasible {
			err := fmt.Errorf("%w: %w", ErrInfeasible, formulation.ErrNoFeasibleSchedule)
			s.fail(ctx, res, grid, all, sol.Status.String(), err)
			return nil, err
		}
		plan, err = model.Decode(sol)
		if err != nil {
			err = fmt.Errorf("decode solution: %w", err)
			s.fail(ctx, res, grid, all, sol.Status.String(), err)
			return nil, err
		}
	}
	res.Plan = plan

	if got := plan.Recompute(); math.Abs(got-plan.Score) > scoreTol {
		s.log.Warnf("run %s: solver objective %.6f differs from plan score %.6f", runID, plan.Score, got)
	}
	if plan.Status == ilp.StatusTimeout {
		s.log.Warnf("run %s: solver stopped early, score %.3f is a lower bound", runID, plan.Score)
	}
	for _, id := range plan.Unscheduled {
		s.log.Debugf("run %s: %s not scheduled", runID, all[id].Name)
	}
	s.log.Infow("schedule ready", map[string]any{
		"run_id":      runID,
		"status":      plan.Status.String(),
		"score":       plan.Score,
		"scheduled":   len(plan.Starts),
		"unscheduled": len(plan.Unscheduled),
		"solve_ms":    res.SolveTime.Milliseconds(),
	})

	res.Record = s.record(res, grid, all)
	s.persist(ctx, res, grid, all)
	return res, nil
}

func (s *Scheduler) fail(ctx context.Context, res *Result, grid *timegrid.Grid, all []observation.Observation, status string, err error) {
	s.log.Errorf("run %s: %v", res.RunID, err)
	rec := s.record(res, grid, all)
	rec.Status = status
	rec.Error = err.Error()
	res.Record = rec
	if aerr := s.store.Append(ctx, rec); aerr != nil {
		s.log.Errorf("run %s: append run log: %v", res.RunID, aerr)
	}
}

func (s *Scheduler) record(res *Result, grid *timegrid.Grid, all []observation.Observation) runlog.RunRecord {
	rec := runlog.RunRecord{
		RunID:        res.RunID,
		Timestamp:    s.now(),
		Solver:       s.solverName,
		SolveTime:    res.SolveTime,
		Observations: len(all),
		Grid: runlog.GridInfo{
			SlotLength:       grid.SlotLength(),
			SlotsPerResource: grid.SlotsPerResource(),
		},
	}
	for _, r := range grid.Resources() {
		rec.Grid.Resources = append(rec.Grid.Resources, r.String())
	}
	for _, d := range res.Model.Dropped {
		rec.Dropped = append(rec.Dropped, fmt.Sprintf("%s@%d: %v", all[d.Obs].Name, d.Slot, d.Reason))
	}
	plan := res.Plan
	if plan == nil {
		return rec
	}
	rec.Status = plan.Status.String()
	rec.Proven = plan.Proven()
	rec.Score = plan.Score
	for _, st := range plan.Starts {
		site, _, _ := grid.Locate(st.Slot)
		rec.Starts = append(rec.Starts, runlog.StartEntry{
			Observation: st.Name,
			Resource:    site.String(),
			Slot:        st.Slot,
			Slots:       st.Slots,
			Priority:    st.Priority,
			Quality:     st.Quality,
		})
	}
	for _, id := range plan.Unscheduled {
		rec.Unscheduled = append(rec.Unscheduled, all[id].Name)
	}
	return rec
}

func (s *Scheduler) persist(ctx context.Context, res *Result, grid *timegrid.Grid, all []observation.Observation) {
	if err := s.store.Append(ctx, res.Record); err != nil {
		s.log.Errorf("run %s: append run log: %v", res.RunID, err)
	}
	ev := metrics.RunEvent{
		RunID:        res.RunID,
		Solver:       s.solverName,
		Status:       res.Record.Status,
		Proven:       res.Record.Proven,
		Score:        res.Record.Score,
		Observations: len(all),
		Scheduled:    len(res.Plan.Starts),
		Variables:    res.Model.Problem.NumVars(),
		Constraints:  len(res.Model.Problem.Constraints),
		Nodes:        res.Plan.Nodes,
		SolveTime:    res.SolveTime,
		Usage:        Usage(grid, res.Plan.Schedule),
		Time:         res.Record.Timestamp,
	}
	if err := s.sink.RecordRun(ev); err != nil {
		s.log.Errorf("run %s: record metrics: %v", res.RunID, err)
	}
	rec, ok := s.sink.(metrics.StartRecorder)
	if !ok {
		return
	}
	starts := make([]metrics.StartEvent, len(res.Plan.Starts))
	for i, st := range res.Plan.Starts {
		starts[i] = metrics.StartEvent{
			RunID:       res.RunID,
			Observation: st.Name,
			Band:        int(all[st.Obs].Band),
			Resource:    res.Record.Starts[i].Resource,
			Slot:        st.Slot,
			Slots:       st.Slots,
			Priority:    st.Priority,
			Quality:     st.Quality,
			Time:        ev.Time,
		}
	}
	if err := rec.RecordStarts(starts); err != nil {
		s.log.Errorf("run %s: record starts: %v", res.RunID, err)
	}
}

// Usage returns the busy fraction of each resource in sched.
func Usage(grid *timegrid.Grid, sched formulation.Schedule) map[string]float64 {
	per := grid.SlotsPerResource()
	out := make(map[string]float64, len(grid.Resources()))
	for _, r := range grid.Resources() {
		if per == 0 {
			out[r.String()] = 0
			continue
		}
		from, _ := grid.GlobalIndex(r, 0)
		out[r.String()] = float64(sched.Busy(from, from+per)) / float64(per)
	}
	return out
}
