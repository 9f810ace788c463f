package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/obsched/config"
	"github.com/kilianp07/obsched/core/factory"
	"github.com/kilianp07/obsched/core/runlog"
	"github.com/kilianp07/obsched/infra/mqtt"
	"github.com/kilianp07/obsched/internal/dataset"
)

type fakePublisher struct {
	published  []runlog.RunRecord
	err        error
	acked      bool
	waited     time.Duration
	disconnect bool
}

func (p *fakePublisher) PublishRun(rec runlog.RunRecord) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, rec)
	return rec.RunID, nil
}

func (p *fakePublisher) WaitForAck(runID string, timeout time.Duration) (bool, error) {
	p.waited = timeout
	if p.acked {
		return true, nil
	}
	return false, errors.New("timeout")
}

func (p *fakePublisher) Disconnect() { p.disconnect = true }

func withPublisher(t *testing.T, pub *fakePublisher) {
	t.Helper()
	orig := newPublisher
	newPublisher = func(mqtt.Config) (Publisher, error) { return pub, nil }
	t.Cleanup(func() { newPublisher = orig })
}

func example(t *testing.T, name string) *dataset.File {
	t.Helper()
	f, err := dataset.Example(name)
	require.NoError(t, err)
	return f
}

func TestSolveRecordsAndExports(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.RunLog = factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": filepath.Join(dir, "runs.db")}}
	cfg.Report.CSVPath = filepath.Join(dir, "out", "plan.csv")
	cfg.Report.JSONPath = filepath.Join(dir, "out", "plan.json")

	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()

	out, err := svc.Solve(context.Background(), example(t, "over-scheduled"))
	require.NoError(t, err)
	assert.InDelta(t, 104.8, out.Result.Plan.Score, 1e-6)
	assert.ElementsMatch(t, []string{"obs4", "obs5"}, out.Summary.Unscheduled)
	assert.Equal(t, "branch_and_bound", out.Result.Record.Solver)

	csv, err := os.ReadFile(cfg.Report.CSVPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csv)), "\n")
	assert.Equal(t, "run_id,observation,resource,offset,start_s,duration_s,priority,quality", lines[0])
	assert.Len(t, lines, 1+len(out.Result.Plan.Starts))
	_, err = os.Stat(cfg.Report.JSONPath)
	assert.NoError(t, err)

	recs, err := svc.History(context.Background(), runlog.RunQuery{Observation: "obs4"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, out.Result.RunID, recs[0].RunID)

	recs, err = svc.History(context.Background(), runlog.RunQuery{Status: "infeasible"})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSolveLenientFromDataset(t *testing.T) {
	svc, err := New(config.Default())
	require.NoError(t, err)
	defer svc.Close()

	out, err := svc.Solve(context.Background(), example(t, "metric"))
	require.NoError(t, err)
	assert.InDelta(t, 110.2, out.Result.Plan.Score, 1e-6)
	assert.Len(t, out.Result.Record.Dropped, 2)
}

func TestSolveRejectsBadDataset(t *testing.T) {
	svc, err := New(config.Default())
	require.NoError(t, err)
	defer svc.Close()

	f := example(t, "fully-scheduled")
	f.Observations[0].Band = 9
	out, err := svc.Solve(context.Background(), f)
	assert.Error(t, err)
	assert.Nil(t, out)
}

func TestSolvePublishes(t *testing.T) {
	pub := &fakePublisher{}
	withPublisher(t, pub)
	cfg := config.Default()
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.Schedule.AckTimeoutSeconds = 2

	svc, err := New(cfg)
	require.NoError(t, err)
	out, err := svc.Solve(context.Background(), example(t, "fully-scheduled"))
	require.NoError(t, err, "a missing ack is only logged")
	require.Len(t, pub.published, 1)
	assert.Equal(t, out.Result.RunID, pub.published[0].RunID)
	assert.Equal(t, 2*time.Second, pub.waited)

	require.NoError(t, svc.Close())
	assert.True(t, pub.disconnect)
}

func TestSolvePublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	withPublisher(t, pub)
	cfg := config.Default()
	cfg.MQTT.Broker = "tcp://localhost:1883"

	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()

	out, err := svc.Solve(context.Background(), example(t, "fully-scheduled"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	require.NotNil(t, out, "the plan is returned even when delivery fails")
	assert.Zero(t, pub.waited)
}

func TestNewErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Solver.Type = "nope"
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.RunLog.Type = "nope"
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.MQTT.Broker = "tcp://localhost:1883"
	orig := newPublisher
	newPublisher = func(mqtt.Config) (Publisher, error) { return nil, errors.New("refused") }
	defer func() { newPublisher = orig }()
	_, err = New(cfg)
	assert.ErrorContains(t, err, "refused")
}

func TestServeMetricsWithoutAddress(t *testing.T) {
	svc, err := New(config.Default())
	require.NoError(t, err)
	defer svc.Close()
	assert.NoError(t, svc.ServeMetrics(context.Background()))
}
