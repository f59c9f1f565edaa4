package idpcore

import (
	"sort"
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	MetricAuthenticateSuccess MetricID = iota
	MetricAuthenticateFailure
	MetricAuthenticateMissingCredentials
	MetricAuthenticateRejectedLocked
	MetricAuthenticateRejectedDisabled
	MetricAuthenticatePasswordExpired
	MetricAccountAutoLocked
	MetricDirectorySync
	MetricRoleAddSuccess
	MetricRoleAddFailure
	MetricRoleRemoveSuccess
	MetricRoleRemoveFailure
	MetricNoRelationship
	MetricGroupAddSuccess
	MetricGroupAddFailure
	MetricGroupRemoveSuccess
	MetricGroupRemoveFailure
	MetricAccountEnabled
	MetricAccountDisabled
	MetricAccountLocked
	MetricAccountUnlocked
	MetricTokenCreated
	MetricTokenInvalid
	MetricTokenExpired
	MetricTokenConsumed
	MetricPasswordChangeSuccess
	MetricPasswordChangeReuseRejected
	MetricEmailVerified
	MetricNotificationSent
	MetricNotificationRetried
	MetricNotificationFailed
	// MetricAuthenticateLatency is the only histogram.
	MetricAuthenticateLatency
	metricIDCount
)

// LatencyBucketBounds are the upper bounds of the authentication latency
// histogram. A final overflow bucket catches everything slower. They are
// sized for bcrypt and argon2 verification, not for cache lookups.
var LatencyBucketBounds = [...]time.Duration{
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// LatencyBucketCount includes the overflow bucket.
const LatencyBucketCount = len(LatencyBucketBounds) + 1

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and the authentication latency histogram.
// A nil or disabled *Metrics is safe to use and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	latency       [LatencyBucketCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of every counter and, when
// latency histograms are enabled, the raw (non-cumulative) bucket counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount || id == MetricAuthenticateLatency {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d. Only MetricAuthenticateLatency carries a histogram;
// other IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricAuthenticateLatency {
		return
	}
	atomic.AddUint64(&m.latency[latencyBucket(d)].value, 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id != MetricAuthenticateLatency {
			s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
		}
	}
	if m.enableLatency {
		buckets := make([]uint64, LatencyBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.latency[i].value)
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
	}
	return s
}

// latencyBucket returns the first bucket whose bound is >= d.
func latencyBucket(d time.Duration) int {
	return sort.Search(len(LatencyBucketBounds), func(i int) bool {
		return d <= LatencyBucketBounds[i]
	})
}
