package magiccode

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram tracked by [Metrics].
type MetricID uint16

const (
	// MetricIssueRequest counts every Issue call.
	MetricIssueRequest MetricID = iota
	// MetricIssueSuccess counts codes that were delivered and persisted.
	MetricIssueSuccess
	// MetricDeliveryFailure counts issuances aborted by the delivery hook.
	MetricDeliveryFailure
	// MetricIssueMissingField counts issuances rejected for a missing or non-string identity.
	MetricIssueMissingField
	// MetricIssueStorageFailure counts issuances that could not persist the token.
	MetricIssueStorageFailure
	// MetricVerifyRequest counts every Verify call.
	MetricVerifyRequest
	// MetricVerifySuccess counts codes that were consumed and accepted by the verification hook.
	MetricVerifySuccess
	// MetricVerifyFailure counts invalid codes and verification hook rejections.
	MetricVerifyFailure
	// MetricVerifyMissingField counts verifications missing the code or identity field.
	MetricVerifyMissingField
	// MetricVerifyStorageFailure counts verifications that hit a storage error.
	MetricVerifyStorageFailure
	// MetricUnknownAction counts Authenticate calls with an unrecognized action.
	MetricUnknownAction
	// MetricIssueLatency is the Issue latency histogram.
	MetricIssueLatency
	// MetricVerifyLatency is the Verify latency histogram.
	MetricVerifyLatency
	metricIDCount
)

const cacheLineSize = 64

// latencyBounds are the inclusive upper bounds of every bucket but the last.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const histBucketCount = len(latencyBounds) + 1

// latencyIDs are the histogram-backed metric IDs, in slot order.
var latencyIDs = [...]MetricID{MetricIssueLatency, MetricVerifyLatency}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and optional latency histograms. All methods
// are safe on a nil receiver.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	latency       [len(latencyIDs)][histBucketCount]uint64
}

// MetricsSnapshot is a point-in-time copy of all metrics. Histograms hold
// per-bucket (not cumulative) counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] configured by cfg. When Enabled is false all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether latency histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments the counter for id. Latency IDs are ignored.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount || latencySlot(id) >= 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram for id. Only latency IDs carry histograms.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency {
		return
	}
	slot := latencySlot(id)
	if slot < 0 {
		return
	}
	atomic.AddUint64(&m.latency[slot][bucketIndex(d)], 1)
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and, when enabled, the latency histograms.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, len(latencyIDs)),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if latencySlot(id) < 0 {
			s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
		}
	}
	if !m.enableLatency {
		return s
	}
	for slot, id := range latencyIDs {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.latency[slot][i])
		}
		s.Histograms[id] = buckets
	}
	return s
}

func latencySlot(id MetricID) int {
	for i, l := range latencyIDs {
		if l == id {
			return i
		}
	}
	return -1
}

func bucketIndex(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
