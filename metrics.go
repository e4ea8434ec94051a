package authkit

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts password logins that issued tokens.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected password logins.
	MetricLoginFailure
	// MetricLoginRateLimited counts logins denied by the attempt budget.
	MetricLoginRateLimited
	// MetricRefreshSuccess counts rotations that issued a new pair.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refusals other than reuse.
	MetricRefreshFailure
	// MetricRefreshReuseDetected counts stale-token presentations that
	// revoked a chain.
	MetricRefreshReuseDetected
	// MetricRefreshRateLimited counts refreshes denied by the window cap.
	MetricRefreshRateLimited
	// MetricSessionCreated counts opened refresh chains.
	MetricSessionCreated
	// MetricSessionRevoked counts chains terminated for any reason.
	MetricSessionRevoked
	// MetricLogout counts single-chain logouts.
	MetricLogout
	// MetricLogoutAll counts everywhere-logouts.
	MetricLogoutAll
	// MetricDeviceRevoked counts device removals.
	MetricDeviceRevoked
	// MetricDeviceTrusted counts devices marked trusted.
	MetricDeviceTrusted
	// MetricNewDeviceSeen counts logins from unseen fingerprints.
	MetricNewDeviceSeen
	// MetricImpersonationStarted counts issued impersonation sessions.
	MetricImpersonationStarted
	// MetricImpersonationBlocked counts restricted operations denied to
	// impersonated sessions.
	MetricImpersonationBlocked
	// MetricForbidden counts authorization denials.
	MetricForbidden
	// MetricRoleMaskUpdated counts applied role mask changes.
	MetricRoleMaskUpdated
	// MetricRoleConflict counts role updates lost to a concurrent writer.
	MetricRoleConflict
	// MetricAccountCreated counts successful registrations.
	MetricAccountCreated
	// MetricAccountDuplicate counts registrations rejected for an
	// existing email.
	MetricAccountDuplicate
	// MetricPasswordChangeSuccess counts applied password changes.
	MetricPasswordChangeSuccess
	// MetricPasswordChangeInvalidOld counts password changes with a
	// wrong current password.
	MetricPasswordChangeInvalidOld
	// MetricTicketIssued counts registration tickets issued by the
	// federation flow.
	MetricTicketIssued
	// MetricTicketRedeemed counts tickets turned into accounts.
	MetricTicketRedeemed
	// MetricTicketInvalid counts rejected ticket presentations.
	MetricTicketInvalid
	// MetricFederationFailure counts failed external-provider handshakes.
	MetricFederationFailure
	// MetricReauthRequired counts accounts flagged for forced re-login.
	MetricReauthRequired
	// MetricAuthenticateLatency is the access-token validation histogram.
	MetricAuthenticateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps each counter on its own cache line so hot
// counters do not false-share under concurrent load.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the engine's in-process metric registry: plain atomic
// counters plus one latency histogram. Exporters under metrics/export
// read it through Snapshot.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and buckets.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] registry from config.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether the registry records anything.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter. Safe on a nil or disabled registry.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample. Only the authenticate histogram is
// populated.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricAuthenticateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the current counter value.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and histogram bucket.
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
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAuthenticateLatency].buckets[i])
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
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
