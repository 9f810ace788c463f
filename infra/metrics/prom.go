package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/obsched/core/metrics"
)

// PromSink records scheduling runs in Prometheus metrics.
type PromSink struct {
	runs        *prometheus.CounterVec
	score       prometheus.Gauge
	solveTime   *prometheus.HistogramVec
	nodes       prometheus.Gauge
	observation *prometheus.GaugeVec
	usage       *prometheus.GaugeVec
	starts      *prometheus.CounterVec
}

// NewPromSink registers scheduling metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "obsched_runs_total",
			Help: "Total number of scheduling runs",
		}, []string{"solver", "status"}),
		score: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "obsched_score",
			Help: "Objective value of the last plan",
		}),
		solveTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "obsched_solve_duration_seconds",
			Help:    "Time spent in the solver",
			Buckets: prometheus.DefBuckets,
		}, []string{"solver"}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "obsched_solver_nodes",
			Help: "Subproblems explored by the last solve",
		}),
		observation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "obsched_observations",
			Help: "Observations of the last run by outcome",
		}, []string{"state"}),
		usage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "obsched_site_usage_ratio",
			Help: "Fraction of slots occupied per site in the last plan",
		}, []string{"resource"}),
		starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "obsched_starts_total",
			Help: "Scheduled observation starts",
		}, []string{"band", "resource"}),
	}
	var err error
	if s.runs, err = register(reg, s.runs); err != nil {
		return nil, err
	}
	if s.score, err = register(reg, s.score); err != nil {
		return nil, err
	}
	if s.solveTime, err = register(reg, s.solveTime); err != nil {
		return nil, err
	}
	if s.nodes, err = register(reg, s.nodes); err != nil {
		return nil, err
	}
	if s.observation, err = register(reg, s.observation); err != nil {
		return nil, err
	}
	if s.usage, err = register(reg, s.usage); err != nil {
		return nil, err
	}
	if s.starts, err = register(reg, s.starts); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds c to reg, reusing an identical collector registered earlier.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordRun updates run counters and last-run gauges.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	s.runs.WithLabelValues(ev.Solver, ev.Status).Inc()
	s.score.Set(ev.Score)
	s.solveTime.WithLabelValues(ev.Solver).Observe(ev.SolveTime.Seconds())
	s.nodes.Set(float64(ev.Nodes))
	s.observation.WithLabelValues("scheduled").Set(float64(ev.Scheduled))
	s.observation.WithLabelValues("unscheduled").Set(float64(ev.Unscheduled()))
	for res, u := range ev.Usage {
		s.usage.WithLabelValues(res).Set(u)
	}
	return nil
}

// RecordStarts counts starts by band and resource.
func (s *PromSink) RecordStarts(starts []coremetrics.StartEvent) error {
	for _, st := range starts {
		s.starts.WithLabelValues(strconv.Itoa(st.Band), st.Resource).Inc()
	}
	return nil
}
