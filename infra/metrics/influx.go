package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/gridinertia/core/metrics"
	"github.com/kilianp07/gridinertia/infra/logger"
)

// InfluxSink writes solve events and inertia steps to an InfluxDB instance
// using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordSolve writes one solve_event point.
func (s *InfluxSink) RecordSolve(ev coremetrics.SolveEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("solve_event").
		AddTag("run_id", ev.RunID).
		AddTag("scenario", ev.Scenario).
		AddTag("solver", ev.Solver).
		AddTag("status", ev.Status).
		AddField("objective", round3(ev.Objective)).
		AddField("variables", ev.Variables).
		AddField("constraints", ev.Constraints).
		AddField("integers", ev.Integers).
		AddField("nodes", ev.Nodes).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordInertia writes one inertia_step point per step.
func (s *InfluxSink) RecordInertia(steps []coremetrics.InertiaStep) error {
	if len(steps) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, len(steps))
	for i, st := range steps {
		points[i] = inertiaPoint(st)
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func inertiaPoint(st coremetrics.InertiaStep) *write.Point {
	return write.NewPointWithMeasurement("inertia_step").
		AddTag("run_id", st.RunID).
		AddTag("scenario", st.Scenario).
		AddField("apparent_power", round3(st.ApparentPower)).
		AddField("synchronous_energy", round3(st.SynchronousEnergy)).
		AddField("synthetic_energy", round3(st.SyntheticEnergy)).
		AddField("synchronous_threshold", round3(st.SynchronousThreshold)).
		AddField("total_threshold", round3(st.TotalThreshold)).
		SetTime(st.Time)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
