package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/gridinertia/core/metrics"
)

func TestInfluxSink_RecordSolve(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	ev := coremetrics.SolveEvent{
		RunID:       "run1",
		Scenario:    "ccgt",
		Solver:      "branch_and_bound",
		Status:      "optimal",
		Objective:   1110,
		Variables:   24,
		Constraints: 21,
		Integers:    3,
		Nodes:       3,
		Duration:    1500 * time.Microsecond,
		Time:        now,
	}
	if err := sink.RecordSolve(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("solve_event").
		AddTag("run_id", "run1").
		AddTag("scenario", "ccgt").
		AddTag("solver", "branch_and_bound").
		AddTag("status", "optimal").
		AddField("objective", 1110.0).
		AddField("variables", 24).
		AddField("constraints", 21).
		AddField("integers", 3).
		AddField("nodes", 3).
		AddField("duration_ms", 1.5).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if strings.TrimSpace(body) != expected {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestInfluxSink_RecordInertia(t *testing.T) {
	var body string
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		requests++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()
	start := time.Date(2020, 8, 20, 0, 0, 0, 0, time.UTC)
	steps := []coremetrics.InertiaStep{
		{RunID: "r", Scenario: "s", Time: start, ApparentPower: 20, SynchronousEnergy: 80, SynchronousThreshold: 49.3480},
		{RunID: "r", Scenario: "s", Time: start.Add(time.Hour), ApparentPower: 10, SyntheticEnergy: 20.00049},
	}
	if err := sink.RecordInertia(steps); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if requests != 1 {
		t.Fatalf("expected one batched write, got %d", requests)
	}
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", body)
	}
	for i, st := range steps {
		want := strings.TrimSpace(write.PointToLineProtocol(inertiaPoint(st), time.Nanosecond))
		if lines[i] != want {
			t.Errorf("line %d: got %s want %s", i, lines[i], want)
		}
	}
	if err := sink.RecordInertia(nil); err != nil || requests != 1 {
		t.Fatalf("empty batch should not write: %v, %d", err, requests)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}

func TestNewInfluxSinkWithFallback_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"influxdb","message":"ready for queries and writes","status":"pass","checks":[]}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL, "tok", "org", "bucket")
	is, ok := sink.(*InfluxSink)
	if !ok {
		t.Fatalf("expected InfluxSink, got %T", sink)
	}
	is.Close()
}
