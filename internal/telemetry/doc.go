// Package telemetry defines the discrete event sink the processing core emits
// to. The core never depends on a sink for correctness: the default is a
// no-op, and a Prometheus-backed sink is provided for operators who want
// counters and an HTTP /metrics endpoint.
package telemetry
