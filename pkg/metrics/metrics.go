// Package metrics provides Prometheus metrics for the lock coordinator.
//
// Each Registry owns its own prometheus.Registry so several coordinators
// (or tests) can coexist in one process. A nil *Registry is valid and
// records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "securelock"

// Unlock results.
const (
	ResultSuccess  = "success"
	ResultFail     = "fail"
	ResultRejected = "rejected" // submitted while locked out
	ResultInvalid  = "invalid"  // malformed input
)

// Branch outcomes of the intrusion responder.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeDenied    = "denied"
	OutcomeFailed    = "failed"
)

// Registry holds all coordinator metrics.
type Registry struct {
	reg *prometheus.Registry

	unlockAttempts  *prometheus.CounterVec
	lockouts        prometheus.Counter
	lockoutActive   prometheus.Gauge
	branchOutcomes  *prometheus.CounterVec
	responseSeconds prometheus.Histogram
	inPocket        prometheus.Gauge
	journalErrors   *prometheus.CounterVec
}

// NewRegistry creates a registry with process and Go collectors attached.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		unlockAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "unlock",
			Name:      "attempts_total",
			Help:      "PIN submissions against the lock screen by result.",
		}, []string{"result"}),
		lockouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lockout",
			Name:      "started_total",
			Help:      "Number of lockouts triggered by exhausting the attempt budget.",
		}),
		lockoutActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lockout",
			Name:      "active",
			Help:      "1 while a lockout is in effect.",
		}),
		branchOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intrusion",
			Name:      "branch_outcomes_total",
			Help:      "Intrusion responder branch results by branch and outcome.",
		}, []string{"branch", "outcome"}),
		responseSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "intrusion",
			Name:      "response_duration_seconds",
			Help:      "Time from lockout to the intruder attempt being recorded.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		inPocket: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "proximity",
			Name:      "in_pocket",
			Help:      "1 while the fused proximity signal reports the device is pocketed.",
		}),
		journalErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "write_errors_total",
			Help:      "Failed journal writes by sink.",
		}, []string{"sink"}),
	}
}

// RecordUnlock counts one PIN submission.
func (r *Registry) RecordUnlock(result string) {
	if r == nil {
		return
	}
	r.unlockAttempts.WithLabelValues(result).Inc()
}

// RecordLockout counts a lockout and marks it active.
func (r *Registry) RecordLockout() {
	if r == nil {
		return
	}
	r.lockouts.Inc()
	r.lockoutActive.Set(1)
}

// RecordLockoutExpired clears the active lockout gauge.
func (r *Registry) RecordLockoutExpired() {
	if r == nil {
		return
	}
	r.lockoutActive.Set(0)
}

// RecordBranch counts one intrusion responder branch result.
func (r *Registry) RecordBranch(branch, outcome string) {
	if r == nil {
		return
	}
	r.branchOutcomes.WithLabelValues(branch, outcome).Inc()
}

// ObserveResponse records how long the intrusion response took.
func (r *Registry) ObserveResponse(seconds float64) {
	if r == nil {
		return
	}
	r.responseSeconds.Observe(seconds)
}

// SetInPocket mirrors the fused proximity state.
func (r *Registry) SetInPocket(inPocket bool) {
	if r == nil {
		return
	}
	if inPocket {
		r.inPocket.Set(1)
	} else {
		r.inPocket.Set(0)
	}
}

// RecordJournalError counts a failed write to the named sink.
func (r *Registry) RecordJournalError(sink string) {
	if r == nil {
		return
	}
	r.journalErrors.WithLabelValues(sink).Inc()
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
