package authcore

import (
	"sync/atomic"
)

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	// MetricOTPIssued counts challenges created.
	MetricOTPIssued MetricID = iota
	// MetricOTPDeliveryFailed counts notification sends that errored.
	MetricOTPDeliveryFailed
	// MetricOTPVerified counts successful code verifications.
	MetricOTPVerified
	// MetricOTPFailure counts failed code verifications.
	MetricOTPFailure
	// MetricOTPRateLimited counts issue requests over budget.
	MetricOTPRateLimited
	// MetricLoginSuccess counts completed logins.
	MetricLoginSuccess
	// MetricLoginFailure counts rejected logins.
	MetricLoginFailure
	// MetricRefreshSuccess counts access tokens minted via refresh.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh calls.
	MetricRefreshFailure
	// MetricRefreshRateLimited counts refresh calls over budget.
	MetricRefreshRateLimited
	// MetricSessionCreated counts sessions materialized.
	MetricSessionCreated
	// MetricSessionRevoked counts sessions ended by logout or revocation.
	MetricSessionRevoked
	// MetricTokenRevoked counts denylist entries written.
	MetricTokenRevoked
	// MetricAccountLocked counts lockouts applied.
	MetricAccountLocked
	// MetricSuspiciousActivity counts suspicious-activity increments.
	MetricSuspiciousActivity
	// MetricCaptchaRequired counts captcha-gate triggers.
	MetricCaptchaRequired
	// MetricCancellationRecorded counts cancellation log rows.
	MetricCancellationRecorded
	// MetricSuspensionApplied counts suspensions applied by policy.
	MetricSuspensionApplied
	// MetricAccountActivated counts PendingEmail→Active transitions.
	MetricAccountActivated
	// MetricAccountReactivated counts Suspended→Active transitions.
	MetricAccountReactivated
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free in-process counters. Cheap enough to leave on in
// production; a disabled instance turns every Inc into a no-op.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics creates a metrics instance.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc bumps a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, int(metricIDCount)),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
