// Package infra holds the adapters behind the core interfaces: zerolog
// logging, the Prometheus and InfluxDB metrics sinks, the MQTT schedule
// publisher and Sentry monitoring. These packages depend only on the
// interfaces defined in the core packages.
package infra
