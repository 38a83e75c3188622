// Package internaldefs holds the shared metric naming tables used by the
// Prometheus and OpenTelemetry exporters so the two surfaces never drift.
package internaldefs

import (
	finguard "github.com/ledgerline/finguard"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   finguard.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   finguard.MetricID
	Name string
	Help string
}

// CounterDefs enumerates every guard counter in export order.
var CounterDefs = []CounterDef{
	{ID: finguard.MetricRateLimitAllowed, Name: "finguard_rate_limit_allowed_total", Help: "Admission checks that passed."},
	{ID: finguard.MetricRateLimitBlocked, Name: "finguard_rate_limit_blocked_total", Help: "Admission checks denied by budget or lockout."},
	{ID: finguard.MetricRateLimitLockout, Name: "finguard_rate_limit_lockout_total", Help: "Newly written rate-limit lockouts."},
	{ID: finguard.MetricLockoutRecorded, Name: "finguard_lockout_recorded_total", Help: "Failed-login attempts registered."},
	{ID: finguard.MetricLockoutTriggered, Name: "finguard_lockout_triggered_total", Help: "Account lockouts written."},
	{ID: finguard.MetricAccountSuspended, Name: "finguard_account_suspended_total", Help: "Identity suspensions made by the lockout tracker."},
	{ID: finguard.MetricSessionCreated, Name: "finguard_session_created_total", Help: "Session records created."},
	{ID: finguard.MetricSessionRefreshed, Name: "finguard_session_refreshed_total", Help: "Activity refreshes on live sessions."},
	{ID: finguard.MetricSessionExpiredAbsolute, Name: "finguard_session_expired_absolute_total", Help: "Sessions rejected at the absolute lifetime."},
	{ID: finguard.MetricSessionExpiredIdle, Name: "finguard_session_expired_idle_total", Help: "Sessions rejected for inactivity."},
	{ID: finguard.MetricSessionInvalidated, Name: "finguard_session_invalidated_total", Help: "Administrative session invalidations."},
	{ID: finguard.MetricStoreFailOpen, Name: "finguard_store_fail_open_total", Help: "Infrastructure failures resolved permissively."},
}

// HistogramDefs enumerates every guard histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: finguard.MetricCheckLatency, Name: "finguard_check_latency_seconds", Help: "Session check latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are the bucket bound spellings usable in metric names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
