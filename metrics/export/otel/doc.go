// Package otel provides OpenTelemetry metric exporter bindings for finguard
// counters and histograms.
//
// [NewOTelExporter] registers Int64ObservableCounter instruments for each
// guard metric and Int64ObservableGauge per histogram bucket. A single
// callback reads [finguard.Guard.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider — callers supply the Meter.
//   - Mutate guard state.
package otel
