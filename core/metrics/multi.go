package metrics

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSolve forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordSolve(ev SolveEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordSolve(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordInertia forwards inertia steps to the sinks that support them.
func (m *MultiSink) RecordInertia(steps []InertiaStep) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(InertiaRecorder); ok {
			if err := rec.RecordInertia(steps); err != nil {
				return err
			}
		}
	}
	return nil
}
