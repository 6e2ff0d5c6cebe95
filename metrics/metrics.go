// Package metrics exposes prometheus collectors for cross-isolate traffic.
//
// All methods are safe on a nil *Metrics, so components can record
// unconditionally and callers opt in by passing a collector set.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "isolates"

// Release modes recorded by ObserveRelease.
const (
	ReleaseInline   = "inline"   // nothing to destroy
	ReleaseSync     = "sync"     // destroyed on the owning isolate directly
	ReleaseDeferred = "deferred" // posted to the owner's pending-call queue
	ReleaseLeaked   = "leaked"   // owner gone
)

// Pending-call outcomes recorded by ObservePending.
const (
	PendingQueued   = "queued"
	PendingExecuted = "executed"
	PendingFailed   = "failed"
	PendingDropped  = "dropped"
)

// Metrics groups the collectors.
type Metrics struct {
	handles  *prometheus.CounterVec
	releases *prometheus.CounterVec
	pending  *prometheus.CounterVec
	sessions *prometheus.CounterVec
	isolates prometheus.Gauge
}

// New creates collectors and registers them with reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		handles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handles_produced_total",
			Help:      "Portable handles produced, by value kind.",
		}, []string{"kind"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handle_releases_total",
			Help:      "Handle releases, by mode.",
		}, []string{"mode"}),
		pending: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_calls_total",
			Help:      "Cross-isolate deferred calls, by outcome.",
		}, []string{"outcome"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Isolate sessions, by result.",
		}, []string{"result"}),
		isolates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "isolates",
			Help:      "Live isolates.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.handles, m.releases, m.pending, m.sessions, m.isolates)
	}
	return m
}

// ObserveProduced counts a produced handle.
func (m *Metrics) ObserveProduced(kind string) {
	if m == nil {
		return
	}
	m.handles.WithLabelValues(kind).Inc()
}

// ObserveRelease counts a release by mode.
func (m *Metrics) ObserveRelease(mode string) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(mode).Inc()
}

// ObservePending counts n pending calls with the given outcome.
func (m *Metrics) ObservePending(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pending.WithLabelValues(outcome).Add(float64(n))
}

// ObserveSession counts a session result ("entered", "failed", "already_running").
func (m *Metrics) ObserveSession(result string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(result).Inc()
}

// IsolateStarted increments the live isolate gauge.
func (m *Metrics) IsolateStarted() {
	if m == nil {
		return
	}
	m.isolates.Inc()
}

// IsolateStopped decrements the live isolate gauge.
func (m *Metrics) IsolateStopped() {
	if m == nil {
		return
	}
	m.isolates.Dec()
}

// Releases returns the release counter, for tests and exporters.
func (m *Metrics) Releases() *prometheus.CounterVec { return m.releases }

// Pending returns the pending-call counter.
func (m *Metrics) Pending() *prometheus.CounterVec { return m.pending }

// Handles returns the produced-handle counter.
func (m *Metrics) Handles() *prometheus.CounterVec { return m.handles }

// Sessions returns the session counter.
func (m *Metrics) Sessions() *prometheus.CounterVec { return m.sessions }

// Isolates returns the live isolate gauge.
func (m *Metrics) Isolates() prometheus.Gauge { return m.isolates }
