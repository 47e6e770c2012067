// Package metrics exposes Prometheus instrumentation for the
// enrichment pipeline. A nil *Metrics is a valid no-op receiver so
// callers never have to branch on whether metrics are enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	lookups        *prometheus.CounterVec
	retries        *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
	candidates     *prometheus.CounterVec
}

// New registers pipeline metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadpipe",
			Name:      "lookups_total",
			Help:      "Source lookups by source kind and outcome status.",
		}, []string{"source", "status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadpipe",
			Name:      "lookup_retries_total",
			Help:      "Retries of transient lookup failures by source kind.",
		}, []string{"source"}),
		lookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadpipe",
			Name:      "lookup_duration_seconds",
			Help:      "Source lookup latency by source kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadpipe",
			Name:      "candidates_total",
			Help:      "Candidates processed by final status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.lookups, m.retries, m.lookupDuration, m.candidates)
	return m
}

func (m *Metrics) ObserveLookup(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(kind, status).Inc()
	m.lookupDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) IncRetry(kind string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncCandidate(status string) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues(status).Inc()
}
