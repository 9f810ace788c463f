package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/obsched/core/priority"
	"github.com/kilianp07/obsched/core/solver"
	"github.com/kilianp07/obsched/internal/dataset"
)

func write(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := write(t, "config.yaml", `schedule:
  lenient_candidates: true
  ack_timeout_seconds: 3
solver:
  type: branch_and_bound
  conf:
    time_limit: 30s
    max_nodes: 5000
run_log:
  type: sqlite
  conf:
    path: runs.db
metrics:
  prometheus_addr: ":9100"
  sinks:
    - type: nop
mqtt:
  broker: "tcp://localhost:1883"
  topic_prefix: "obs"
report:
  format: json
  csv_path: starts.csv
log:
  level: debug
generator:
  observations: 10
  slots_per_resource: 120
  slot_length: 5m
  min_slots: 2
  max_slots: 8
  allowance_max: 0.1
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"lenient", cfg.Schedule.LenientCandidates, true},
		{"ack", cfg.Schedule.AckTimeoutSeconds, 3},
		{"solver", cfg.Solver.Type, "branch_and_bound"},
		{"run_log", cfg.RunLog.Type, "sqlite"},
		{"run_log.path", cfg.RunLog.Conf["path"], "runs.db"},
		{"prometheus_addr", cfg.Metrics.PrometheusAddr, ":9100"},
		{"sinks", len(cfg.Metrics.Sinks), 1},
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"prefix", cfg.MQTT.TopicPrefix, "obs"},
		{"report.format", cfg.Report.Format, "json"},
		{"report.csv", cfg.Report.CSVPath, "starts.csv"},
		{"log.level", cfg.Log.Level, "debug"},
		{"generator.observations", cfg.Generator.Observations, 10},
		{"generator.slot_length", cfg.Generator.SlotLength, 5 * time.Minute},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}

	s, err := solver.New(cfg.Solver)
	require.NoError(t, err)
	bnb, ok := s.(*solver.BranchAndBound)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, bnb.TimeLimit)
	assert.Equal(t, 5000, bnb.MaxNodes)
}

func TestLoadJSONDefaults(t *testing.T) {
	cfg, err := Load(write(t, "config.json", `{"mqtt":{"broker":""}}`))
	require.NoError(t, err)
	assert.Equal(t, solver.TypeBranchAndBound, cfg.Solver.Type)
	assert.Equal(t, "text", cfg.Report.Format)
	assert.Equal(t, dataset.DefaultGenerateOptions(), cfg.Generator)
	assert.False(t, cfg.MQTT.Enabled())

	s, err := solver.New(cfg.Solver)
	require.NoError(t, err)
	bnb, ok := s.(*solver.BranchAndBound)
	require.True(t, ok)
	assert.Equal(t, solver.DefaultTimeLimit, bnb.TimeLimit)

	cfg, err = Load(write(t, "unlimited.yaml", "solver:\n  conf:\n    time_limit: 0\n"))
	require.NoError(t, err)
	s, err = solver.New(cfg.Solver)
	require.NoError(t, err)
	assert.Zero(t, s.(*solver.BranchAndBound).TimeLimit)

	p, err := cfg.Priority.Params()
	require.NoError(t, err)
	assert.Equal(t, priority.DefaultParams(), p)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OBSCHED_SOLVER__TYPE", "greedy")
	t.Setenv("OBSCHED_LOG__LEVEL", "warn")
	cfg, err := Load(write(t, "config.yaml", "solver:\n  type: relaxation\n"))
	require.NoError(t, err)
	assert.Equal(t, "greedy", cfg.Solver.Type)
	assert.Equal(t, "warn", cfg.Log.Level)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "greedy", cfg.Solver.Type)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"solver":   "solver:\n  type: simplex\n",
		"run_log":  "run_log:\n  type: tape\n",
		"report":   "report:\n  format: pdf\n",
		"log":      "log:\n  level: loud\n",
		"ack":      "schedule:\n  ack_timeout_seconds: -1\n",
		"priority": "priority:\n  order: [3, 3]\n  jumps: {\"3\": 1}\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(write(t, "config.yaml", data))
			assert.Error(t, err)
		})
	}
	_, err := Load(write(t, "config.toml", ""))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPriorityConfigCustom(t *testing.T) {
	c := PriorityConfig{Order: []int{2, 1}, Jumps: map[string]float64{"1": 10, "2": 3}, Offset: 0.5, Spread: 4}
	c.SetDefaults()
	assert.Equal(t, 0.8, c.Breakpoint)
	m, err := c.Model()
	require.NoError(t, err)
	b3, err := m.Priority(priority.Band3, 1)
	require.NoError(t, err)
	assert.Zero(t, b3)
	b1, err := m.Priority(priority.Band1, 1)
	require.NoError(t, err)
	b2, err := m.Priority(priority.Band2, 1)
	require.NoError(t, err)
	assert.Greater(t, b1, b2)

	_, err = PriorityConfig{Order: []int{1}, Jumps: map[string]float64{"one": 1}}.Params()
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	_, err := cfg.Priority.Model()
	assert.NoError(t, err)
}
