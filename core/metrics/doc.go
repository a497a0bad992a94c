// Package metrics defines the interfaces through which solve runs are
// observed. A MetricsSink records one SolveEvent per run; sinks that also
// implement InertiaRecorder receive the decoded per-step inertia position.
// Implementations such as the Prometheus and InfluxDB sinks live in
// infra/metrics and register themselves by name, so NewMetricsSink can build
// them from configuration. Several configured sinks are combined in a
// MultiSink.
package metrics
