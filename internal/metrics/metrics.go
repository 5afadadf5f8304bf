// Package metrics exposes Prometheus collectors for the session tracker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the tracker collectors. A nil *Metrics is valid and records
// nothing, so tests and embedders can skip instrumentation.
type Metrics struct {
	SessionsOpened    prometheus.Counter
	SessionsFinalized prometheus.Counter
	SessionsDiscarded prometheus.Counter
	Confirmations     *prometheus.CounterVec
	StoreErrors       *prometheus.CounterVec
	StorePending      prometheus.Gauge
	SnapshotsSkipped  *prometheus.CounterVec
	Tracking          prometheus.Gauge
}

// New registers the tracker collectors with reg. Pass a fresh
// [prometheus.NewRegistry] in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "timetrack_sessions_opened_total",
			Help: "Sessions opened after a window change.",
		}),
		SessionsFinalized: f.NewCounter(prometheus.CounterOpts{
			Name: "timetrack_sessions_finalized_total",
			Help: "Sessions closed and persisted.",
		}),
		SessionsDiscarded: f.NewCounter(prometheus.CounterOpts{
			Name: "timetrack_sessions_discarded_total",
			Help: "Sessions closed below the minimum duration and dropped.",
		}),
		Confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timetrack_confirmations_total",
			Help: "Project code confirmations by result.",
		}, []string{"result"}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timetrack_store_errors_total",
			Help: "Failed session store operations by operation.",
		}, []string{"op"}),
		StorePending: f.NewGauge(prometheus.GaugeOpts{
			Name: "timetrack_store_pending_retries",
			Help: "Failed store writes waiting to be retried.",
		}),
		SnapshotsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timetrack_snapshots_skipped_total",
			Help: "Poll cycles that produced no usable snapshot, by reason.",
		}, []string{"reason"}),
		Tracking: f.NewGauge(prometheus.GaugeOpts{
			Name: "timetrack_tracking",
			Help: "1 while tracking is enabled, 0 while paused.",
		}),
	}
}

// Opened counts a session opened for a new window.
func (m *Metrics) Opened() {
	if m != nil {
		m.SessionsOpened.Inc()
	}
}

// Finalized counts a session closed and kept.
func (m *Metrics) Finalized() {
	if m != nil {
		m.SessionsFinalized.Inc()
	}
}

// Discarded counts a session dropped for being shorter than the minimum.
func (m *Metrics) Discarded() {
	if m != nil {
		m.SessionsDiscarded.Inc()
	}
}

// Confirmed records a confirmation outcome: "applied", "unknown", or "invalid".
func (m *Metrics) Confirmed(result string) {
	if m != nil {
		m.Confirmations.WithLabelValues(result).Inc()
	}
}

// StoreError counts a failed store call by operation.
func (m *Metrics) StoreError(op string) {
	if m != nil {
		m.StoreErrors.WithLabelValues(op).Inc()
	}
}

// Pending sets the number of failed writes awaiting retry.
func (m *Metrics) Pending(n int) {
	if m != nil {
		m.StorePending.Set(float64(n))
	}
}

// Skipped records a poll cycle that yielded nothing, e.g. "no_window" or
// "source_error".
func (m *Metrics) Skipped(reason string) {
	if m != nil {
		m.SnapshotsSkipped.WithLabelValues(reason).Inc()
	}
}

// SetTracking mirrors the tracking switch.
func (m *Metrics) SetTracking(on bool) {
	if m == nil {
		return
	}
	if on {
		m.Tracking.Set(1)
	} else {
		m.Tracking.Set(0)
	}
}
