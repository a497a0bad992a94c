package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridinertia/config"
	"github.com/kilianp07/gridinertia/core/dispatch"
	coremetrics "github.com/kilianp07/gridinertia/core/metrics"
	"github.com/kilianp07/gridinertia/core/solver"
	"github.com/kilianp07/gridinertia/infra/mqtt"
)

type fakePublisher struct {
	schedules    int
	statuses     []mqtt.StatusMessage
	scheduleErr  error
	disconnected bool
}

func (f *fakePublisher) PublishSchedule(_ context.Context, _, _ string, res dispatch.Results) (int, error) {
	if f.scheduleErr != nil {
		return 0, f.scheduleErr
	}
	f.schedules = len(res.Keys())
	return f.schedules, nil
}

func (f *fakePublisher) PublishStatus(_ context.Context, msg mqtt.StatusMessage) error {
	f.statuses = append(f.statuses, msg)
	return nil
}

func (f *fakePublisher) Disconnect() { f.disconnected = true }

type captureSink struct {
	solves  []coremetrics.SolveEvent
	inertia int
}

func (c *captureSink) RecordSolve(ev coremetrics.SolveEvent) error {
	c.solves = append(c.solves, ev)
	return nil
}

func (c *captureSink) RecordInertia(steps []coremetrics.InertiaStep) error {
	c.inertia += len(steps)
	return nil
}

func testConfig(t *testing.T, formats ...string) *config.Config {
	cfg := config.Default()
	cfg.Export.Dir = t.TempDir()
	if len(formats) > 0 {
		cfg.Export.Formats = formats
	}
	return cfg
}

func newService(t *testing.T, cfg *config.Config) (*Service, *fakePublisher, *captureSink) {
	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	pub, sink := &fakePublisher{}, &captureSink{}
	svc.WithPublisher(pub).WithMetrics(sink)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, pub, sink
}

func TestRun_ExportsAndPublishes(t *testing.T) {
	cfg := testConfig(t, config.FormatCSV, config.FormatInertiaCSV, config.FormatJSON, config.FormatChart)
	svc, pub, sink := newService(t, cfg)

	rep, err := svc.Run(context.Background(), "testdata/merit.yaml")
	require.NoError(t, err)

	assert.Equal(t, "merit", rep.Scenario)
	assert.Equal(t, "optimal", rep.Status)
	assert.NotEmpty(t, rep.RunID)
	// coal runs at its minimum stable output, grid covers the rest
	assert.InDelta(t, 2*2*20+(2+4)*10, rep.Objective, 1e-6)
	assert.Equal(t, 2, rep.Stats.Integers)

	require.Len(t, rep.Files, 4)
	for _, f := range rep.Files {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
		assert.Equal(t, filepath.Join(cfg.Export.Dir, "merit"), filepath.Dir(f))
	}
	raw, err := os.ReadFile(filepath.Join(cfg.Export.Dir, "merit", "dispatch.json"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, rep.RunID, doc["run_id"])

	assert.Equal(t, 4, pub.schedules)
	assert.Equal(t, rep.Published, pub.schedules)
	require.Len(t, pub.statuses, 1)
	assert.Equal(t, "optimal", pub.statuses[0].Status)
	assert.Equal(t, rep.RunID, pub.statuses[0].RunID)

	require.Len(t, sink.solves, 1)
	assert.Equal(t, rep.RunID, sink.solves[0].RunID)
	assert.Equal(t, solver.DefaultName(), sink.solves[0].Solver)
	assert.Equal(t, 2, sink.inertia)
}

func TestRun_InfeasibleReportsStatus(t *testing.T) {
	svc, pub, _ := newService(t, testConfig(t))

	rep, err := svc.Run(context.Background(), "testdata/blackout.yaml")
	var ierr *dispatch.InfeasibleError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, dispatch.ConstraintSynchronousInertia, ierr.Constraint)
	assert.Equal(t, "infeasible", rep.Status)
	assert.Empty(t, rep.Files)

	require.Len(t, pub.statuses, 1)
	assert.Equal(t, "infeasible", pub.statuses[0].Status)
	assert.NotEmpty(t, pub.statuses[0].Error)
}

func TestRun_RelaxedCommitment(t *testing.T) {
	cfg := testConfig(t)
	cfg.Solver.RelaxCommitment = true
	cfg.Solver.Type = "simplex"
	svc, _, _ := newService(t, cfg)

	rep, err := svc.Run(context.Background(), "testdata/merit.yaml")
	require.NoError(t, err)
	assert.Zero(t, rep.Stats.Integers)
	assert.Equal(t, "optimal", rep.Status)
}

func TestRun_PublishFailure(t *testing.T) {
	svc, pub, _ := newService(t, testConfig(t))
	pub.scheduleErr = errors.New("broker down")

	rep, err := svc.Run(context.Background(), "testdata/merit.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, rep.Files, 2)
	require.Len(t, pub.statuses, 1)
	assert.Equal(t, "optimal", pub.statuses[0].Status)
}

func TestRun_MissingScenario(t *testing.T) {
	svc, pub, _ := newService(t, testConfig(t))

	rep, err := svc.Run(context.Background(), "testdata/missing.yaml")
	require.Error(t, err)
	assert.Equal(t, "error", rep.Status)
	assert.Empty(t, pub.statuses)
}

func TestValidate(t *testing.T) {
	svc, pub, sink := newService(t, testConfig(t))

	rep, err := svc.Validate("testdata/merit.yaml")
	require.NoError(t, err)
	assert.Equal(t, "compiled", rep.Status)
	assert.Equal(t, 2, rep.Stats.Steps)
	assert.Positive(t, rep.Stats.Variables)
	assert.Empty(t, sink.solves)
	assert.Empty(t, pub.statuses)
}

func TestClose_Disconnects(t *testing.T) {
	svc, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	pub := &fakePublisher{}
	svc.WithPublisher(pub)
	require.NoError(t, svc.Close())
	assert.True(t, pub.disconnected)
}

func drain(ch <-chan RunEvent) []Stage {
	var stages []Stage
	for {
		select {
		case ev := <-ch:
			stages = append(stages, ev.Stage)
		default:
			return stages
		}
	}
}

func TestRun_Events(t *testing.T) {
	svc, _, _ := newService(t, testConfig(t))
	ch := svc.Events()

	rep, err := svc.Run(context.Background(), "testdata/merit.yaml")
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageCompiled, StageSolved, StageExported, StagePublished}, drain(ch))

	_, err = svc.Run(context.Background(), "testdata/blackout.yaml")
	require.Error(t, err)
	ev := []Stage{StageCompiled, StageFailed}
	assert.Equal(t, ev, drain(ch))
	assert.NotEmpty(t, rep.RunID)
}
