// Package metrics exposes Prometheus counters for credential checks and
// workflow activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives the events the server counts. Components depend on this
// interface so they can run without Prometheus.
type Recorder interface {
	CredentialRejected(kind, reason string)
	TransitionApplied(to string)
	ConcurrencyConflict()
	RefreshPurged(n int64)
}

// Nop discards everything.
type Nop struct{}

func (Nop) CredentialRejected(string, string) {}
func (Nop) TransitionApplied(string)          {}
func (Nop) ConcurrencyConflict()              {}
func (Nop) RefreshPurged(int64)               {}

// Metrics is a Recorder backed by its own Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	credentialRejections *prometheus.CounterVec
	transitions          *prometheus.CounterVec
	conflicts            prometheus.Counter
	purged               prometheus.Counter
}

// New creates the counters and registers them together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		credentialRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gradekeeper",
			Name:      "credential_rejections_total",
			Help:      "Rejected credentials by kind (access, refresh) and internal reason.",
		}, []string{"kind", "reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gradekeeper",
			Name:      "workflow_transitions_total",
			Help:      "Applied assignment transitions by target status.",
		}, []string{"to"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gradekeeper",
			Name:      "workflow_concurrency_conflicts_total",
			Help:      "Transitions rejected because the assignment changed concurrently.",
		}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gradekeeper",
			Name:      "refresh_tokens_purged_total",
			Help:      "Expired refresh credential records removed by the purge job.",
		}),
	}

	m.registry.MustRegister(
		m.credentialRejections,
		m.transitions,
		m.conflicts,
		m.purged,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) CredentialRejected(kind, reason string) {
	m.credentialRejections.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) TransitionApplied(to string) {
	m.transitions.WithLabelValues(to).Inc()
}

func (m *Metrics) ConcurrencyConflict() {
	m.conflicts.Inc()
}

func (m *Metrics) RefreshPurged(n int64) {
	m.purged.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
