package finguard

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one guard counter or histogram.
type MetricID uint16

const (
	// MetricRateLimitAllowed counts admission checks that passed.
	MetricRateLimitAllowed MetricID = iota
	// MetricRateLimitBlocked counts checks rejected by an existing lockout
	// or exhausted budget.
	MetricRateLimitBlocked
	// MetricRateLimitLockout counts newly written rate-limit lockouts.
	MetricRateLimitLockout
	// MetricLockoutRecorded counts failed-login attempts registered.
	MetricLockoutRecorded
	// MetricLockoutTriggered counts account lockouts written.
	MetricLockoutTriggered
	// MetricAccountSuspended counts identity suspensions made by the tracker.
	MetricAccountSuspended
	// MetricSessionCreated counts session records created.
	MetricSessionCreated
	// MetricSessionRefreshed counts activity refreshes on live sessions.
	MetricSessionRefreshed
	// MetricSessionExpiredAbsolute counts absolute-timeout rejections.
	MetricSessionExpiredAbsolute
	// MetricSessionExpiredIdle counts idle-timeout rejections.
	MetricSessionExpiredIdle
	// MetricSessionInvalidated counts administratively removed sessions.
	MetricSessionInvalidated
	// MetricStoreFailOpen counts infrastructure failures resolved permissively.
	MetricStoreFailOpen
	// MetricCheckLatency is the session-check latency histogram.
	MetricCheckLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed-size set of atomic counters plus one latency histogram.
// Counters are padded to a cache line each so concurrent guards do not false-
// share.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] set honoring the config toggles.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recording.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to a counter. No-op when disabled or out of range.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample into the check histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricCheckLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns one counter's current value.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and, when enabled, the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricCheckLatency].buckets[i])
		}
		s.Histograms[MetricCheckLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
