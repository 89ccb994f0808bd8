// Package metrics provides dependency-free atomic counters for the engine.
// Exporters render snapshots; the hot path is a single atomic add.
package metrics

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricAccountLocked
	MetricRegisterSuccess
	MetricRegisterDuplicate
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricSessionCreated
	MetricSessionRevoked
	MetricLogout
	MetricLogoutAll
	MetricOAuthLogin
	MetricOAuthCodeIssued
	MetricOAuthCodeRedeemed
	MetricOAuthCodeRejected
	MetricEmailVerified
	MetricPasswordResetRequest
	MetricPasswordResetConfirm
	MetricSweepDeleted
	metricIDCount
)

// IDCount reports the number of defined metric ids.
func IDCount() int { return int(metricIDCount) }

const cacheLineSize = 64

// Counters live on separate cache lines to avoid false sharing between
// concurrently incremented ids.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the engine's counter set. A nil or disabled Metrics is safe to
// use; all operations become no-ops.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Counters map[MetricID]uint64
}

// New creates a counter set. When enabled is false, Inc is a no-op and
// Snapshot returns empty maps.
func New(enabled bool) *Metrics {
	return &Metrics{enabled: enabled}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add adds n to the counter. Used by sweep reporting.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// SnapshotAll copies every counter.
func (m *Metrics) SnapshotAll() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{Counters: map[MetricID]uint64{}}
	}
	s := Snapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
