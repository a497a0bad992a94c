package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridinertia/core/dispatch"
	"github.com/kilianp07/gridinertia/core/model"
	coremon "github.com/kilianp07/gridinertia/core/monitoring"
	"github.com/kilianp07/gridinertia/core/solver"
)

func solvedResults(t *testing.T) dispatch.Results {
	t.Helper()
	idx, err := model.NewTimeIndex(time.Date(2020, 8, 20, 0, 0, 0, 0, time.UTC), time.Hour, 2)
	require.NoError(t, err)
	b := model.NewBuilder(idx, model.Params{})
	require.NoError(t, b.Add(
		model.NewBus("bus_el"),
		model.NewInertiaBus("bus_inertia"),
		model.NewSource("coal", []model.Port{{Bus: "bus_el", Flow: model.Flow{VariableCost: 20}}},
			model.WithInertia("bus_inertia", model.Inertia{Constant: model.Float64(5), ApparentPower: 10, Provision: model.ProvisionSynchronousGenerator})),
		model.NewSink("demand", model.Port{Bus: "bus_el", Flow: model.Flow{Fix: []float64{3, 4}}}),
	))
	es, err := b.Build()
	require.NoError(t, err)
	m, err := dispatch.NewModel(es, dispatch.Options{})
	require.NoError(t, err)
	require.NoError(t, m.Solve(context.Background(), solver.NewBranchAndBound(nil)))
	res, err := m.Results()
	require.NoError(t, err)
	return res
}

func TestPublishSchedule(t *testing.T) {
	mc := &mockClient{}
	useMockClient(t, mc)
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", ClientID: "id", TopicPrefix: "grid/", Retain: true,
		QoS: map[string]byte{"schedule": 1}})
	require.NoError(t, err)

	n, err := pub.PublishSchedule(context.Background(), "run-1", "demo", solvedResults(t))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, mc.published, 3)

	topics := map[string]publishedMsg{}
	for _, m := range mc.published {
		topics[m.topic] = m
		assert.Equal(t, byte(1), m.qos)
		assert.True(t, m.retained)
	}
	require.Contains(t, topics, "grid/demo/coal/bus_el")
	require.Contains(t, topics, "grid/demo/bus_el/demand")
	require.Contains(t, topics, "grid/demo/coal/bus_inertia")

	var msg ScheduleMessage
	require.NoError(t, json.Unmarshal(topics["grid/demo/coal/bus_el"].payload, &msg))
	assert.Equal(t, "run-1", msg.RunID)
	assert.Equal(t, dispatch.RoleOutput, msg.Role)
	assert.Len(t, msg.Timestamps, 2)
	assert.InDeltaSlice(t, []float64{3, 4}, msg.Series[dispatch.SeriesFlow], 1e-6)

	require.NoError(t, json.Unmarshal(topics["grid/demo/coal/bus_inertia"].payload, &msg))
	assert.Equal(t, "synchronous_generator", msg.Provision)
	assert.Equal(t, []float64{10, 10}, msg.Series[dispatch.SeriesApparentPower])
}

type recordMonitor struct {
	coremon.NopMonitor
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}

func TestPublishScheduleRetriesAndCaptures(t *testing.T) {
	fail := errors.New("net fail")
	mc := &mockClient{publishErrs: []error{fail, nil, fail, fail}}
	useMockClient(t, mc)
	mon := &recordMonitor{}
	coremon.Init(mon)
	t.Cleanup(coremon.Reset)

	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)
	n, err := pub.PublishSchedule(context.Background(), "run-2", "demo", solvedResults(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, 1, n)
	assert.Len(t, mc.published, 4)
	require.Error(t, mon.err)
	assert.Equal(t, "mqtt", mon.tags["module"])
	assert.Equal(t, "run-2", mon.tags["run_id"])
}

func TestPublishStatus(t *testing.T) {
	mc := &mockClient{}
	useMockClient(t, mc)
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", ClientID: "id", QoS: map[string]byte{"status": 2}})
	require.NoError(t, err)

	require.NoError(t, pub.PublishStatus(context.Background(), StatusMessage{RunID: "r", Scenario: "demo", Status: "infeasible", Error: "step 0"}))
	require.Len(t, mc.published, 1)
	assert.Equal(t, "gridinertia/demo/status", mc.published[0].topic)
	assert.Equal(t, byte(2), mc.published[0].qos)

	var msg StatusMessage
	require.NoError(t, json.Unmarshal(mc.published[0].payload, &msg))
	assert.Equal(t, "infeasible", msg.Status)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestPublishCanceledDuringBackoff(t *testing.T) {
	mc := &mockClient{publishErrs: []error{errors.New("down"), errors.New("down")}}
	useMockClient(t, mc)
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 3, BackoffMS: 1000})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = pub.PublishStatus(ctx, StatusMessage{Scenario: "demo", Status: "optimal"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, mc.published, 1)
}
