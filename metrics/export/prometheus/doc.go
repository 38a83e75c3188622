// Package prometheus provides Prometheus collectors for finguard metrics.
//
// [NewPrometheusExporter] accepts a [finguard.Guard] and exposes an
// http.Handler that renders all guard counters and histograms in Prometheus
// text exposition format. Counter names are prefixed finguard_*_total; the
// single histogram is finguard_check_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate guard state.
package prometheus
