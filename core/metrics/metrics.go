package metrics

import "time"

// SolveEvent describes one compile-and-solve run of an energy system model.
type SolveEvent struct {
	RunID       string
	Scenario    string
	Solver      string
	Status      string
	Objective   float64
	Variables   int
	Constraints int
	Integers    int
	Nodes       int
	Duration    time.Duration
	Time        time.Time
}

// MetricsSink records solve outcomes for observability purposes.
type MetricsSink interface {
	RecordSolve(ev SolveEvent) error
}

// InertiaStep is the decoded inertia position of the system at one step.
type InertiaStep struct {
	RunID                string
	Scenario             string
	Time                 time.Time
	ApparentPower        float64
	SynchronousEnergy    float64
	SyntheticEnergy      float64
	SynchronousThreshold float64
	TotalThreshold       float64
}

// InertiaRecorder is implemented by sinks able to record per-step inertia.
type InertiaRecorder interface {
	RecordInertia(steps []InertiaStep) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordSolve(SolveEvent) error { return nil }

// RecordInertia discards the steps.
func (NopSink) RecordInertia([]InertiaStep) error { return nil }
