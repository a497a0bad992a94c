package monitoring

import (
	"errors"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridinertia/config"
	coremon "github.com/kilianp07/gridinertia/core/monitoring"
)

func TestNewSentryMonitor_Disabled(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestNewSentryMonitor_InvalidDSN(t *testing.T) {
	_, err := NewSentryMonitor(config.SentryConfig{DSN: "not a dsn"})
	assert.Error(t, err)
}

func TestSentryMonitor_Capture(t *testing.T) {
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	m, err := newSentryMonitor(config.SentryConfig{DSN: "https://public@o0.ingest.sentry.io/0", Environment: "test"},
		func(o *sentry.ClientOptions) {
			o.BeforeSend = func(ev *sentry.Event, _ *sentry.EventHint) *sentry.Event {
				mu.Lock()
				events = append(events, ev)
				mu.Unlock()
				return nil
			}
		})
	require.NoError(t, err)

	m.CaptureException(nil, nil)
	m.CaptureException(errors.New("solve failed"), map[string]string{"run_id": "r1", "scenario": "ccgt"})
	m.CapturePanic("boom", map[string]string{"run_id": "r2"})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, "r1", events[0].Tags["run_id"])
	assert.Equal(t, "ccgt", events[0].Tags["scenario"])
	assert.Equal(t, "test", events[0].Environment)
	assert.Equal(t, "r2", events[1].Tags["run_id"])
	assert.Equal(t, sentry.LevelFatal, events[1].Level)
}
