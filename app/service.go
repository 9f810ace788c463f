package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/kilianp07/obsched/config"
	"github.com/kilianp07/obsched/core/ilp"
	coremetrics "github.com/kilianp07/obsched/core/metrics"
	"github.com/kilianp07/obsched/core/observation"
	"github.com/kilianp07/obsched/core/priority"
	"github.com/kilianp07/obsched/core/report"
	"github.com/kilianp07/obsched/core/runlog"
	"github.com/kilianp07/obsched/core/scheduler"
	"github.com/kilianp07/obsched/core/solver"
	"github.com/kilianp07/obsched/core/timegrid"
	"github.com/kilianp07/obsched/infra/logger"
	"github.com/kilianp07/obsched/infra/metrics"
	"github.com/kilianp07/obsched/infra/mqtt"
	"github.com/kilianp07/obsched/internal/dataset"
	"github.com/kilianp07/obsched/pkg/export"
)

// Publisher delivers plans to the sites.
type Publisher interface {
	PublishRun(rec runlog.RunRecord) (string, error)
	WaitForAck(runID string, timeout time.Duration) (bool, error)
	Disconnect()
}

var newPublisher = func(cfg mqtt.Config) (Publisher, error) { return mqtt.NewPublisher(cfg) }

// Service wires the scheduler to the configured solver, run log, metric
// sinks and plan publisher.
type Service struct {
	cfg        *config.Config
	model      *priority.Model
	solver     ilp.Solver
	solverName string
	store      runlog.Store
	sink       coremetrics.MetricsSink
	publisher  Publisher
	log        logger.Logger
}

// Outcome is the result of one Solve call.
type Outcome struct {
	Result  *scheduler.Result
	Grid    *timegrid.Grid
	Set     *observation.Set
	Summary *report.Summary
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	model, err := cfg.Priority.Model()
	if err != nil {
		return nil, fmt.Errorf("priority model: %w", err)
	}
	slv, err := solver.New(cfg.Solver)
	if err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}
	store, err := runlog.New(cfg.RunLog)
	if err != nil {
		return nil, fmt.Errorf("run log: %w", err)
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	svc := &Service{
		cfg:        cfg,
		model:      model,
		solver:     slv,
		solverName: cfg.Solver.Type,
		store:      store,
		sink:       sink,
		log:        logg,
	}
	if cfg.MQTT.Enabled() {
		pub, err := newPublisher(cfg.MQTT)
		if err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.publisher = pub
	}
	return svc, nil
}

// Solve schedules the observations of f, then exports and publishes the plan
// as configured. Export and publish failures are returned after the plan is
// recorded.
func (s *Service) Solve(ctx context.Context, f *dataset.File) (*Outcome, error) {
	grid, set, err := f.Build(s.model)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", f.Name, err)
	}
	opts := []scheduler.Option{
		scheduler.WithStore(s.store),
		scheduler.WithSink(s.sink),
		scheduler.WithLogger(logger.New("scheduler")),
		scheduler.WithSolverName(s.solverName),
	}
	if s.cfg.Schedule.LenientCandidates || f.LenientCandidates {
		opts = append(opts, scheduler.WithLenientCandidates())
	}
	res, err := scheduler.New(s.solver, opts...).Run(ctx, grid, set)
	if err != nil {
		return nil, err
	}
	summary, err := report.Summarize(grid, set, res.Plan)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Result: res, Grid: grid, Set: set, Summary: summary}
	if f.Expect != nil && res.Plan.Proven() && !approx(f.Expect.Score, res.Plan.Score) {
		s.log.Warnf("dataset %s expects score %.3f, got %.3f", f.Name, f.Expect.Score, res.Plan.Score)
	}
	return out, errors.Join(s.export(res.Record), s.publish(res.Record))
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func (s *Service) export(rec runlog.RunRecord) error {
	entries := export.Entries(rec)
	var errs []error
	if p := s.cfg.Report.CSVPath; p != "" {
		errs = append(errs, writeFile(p, func(f *os.File) error { return export.WriteCSV(f, entries) }))
	}
	if p := s.cfg.Report.JSONPath; p != "" {
		errs = append(errs, writeFile(p, func(f *os.File) error { return export.WriteJSON(f, entries) }))
	}
	return errors.Join(errs...)
}

func writeFile(path string, write func(*os.File) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	return f.Close()
}

func (s *Service) publish(rec runlog.RunRecord) error {
	if s.publisher == nil {
		return nil
	}
	runID, err := s.publisher.PublishRun(rec)
	if err != nil {
		return fmt.Errorf("publish plan: %w", err)
	}
	timeout := time.Duration(s.cfg.Schedule.AckTimeoutSeconds) * time.Second
	if timeout <= 0 {
		return nil
	}
	if ok, err := s.publisher.WaitForAck(runID, timeout); !ok {
		s.log.Warnf("run %s not acknowledged: %v", runID, err)
	}
	return nil
}

// History returns past runs from the run log.
func (s *Service) History(ctx context.Context, q runlog.RunQuery) ([]runlog.RunRecord, error) {
	return s.store.Query(ctx, q)
}

// ServeMetrics exposes Prometheus metrics until ctx is cancelled. It returns
// immediately when no address is configured.
func (s *Service) ServeMetrics(ctx context.Context) error {
	addr := s.cfg.Metrics.PrometheusAddr
	if addr == "" {
		return nil
	}
	return metrics.StartPromServer(ctx, addr)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	return s.store.Close()
}
