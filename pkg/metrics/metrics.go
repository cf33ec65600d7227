// Package metrics exposes Prometheus collectors for the query gateway.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gateway"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Recorder owns the gateway's collectors.
type Recorder struct {
	queries         *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	acquireDuration *prometheus.HistogramVec
	inUse           *prometheus.GaugeVec
	discarded       *prometheus.CounterVec
	countProbes     *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries handled, by backend and outcome kind.",
		}, []string{"backend", "outcome"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end pipeline duration per backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		acquireDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_acquire_seconds",
			Help:      "Time spent waiting for a connection lease.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"backend", "outcome"}),
		inUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_in_use",
			Help:      "Connection leases currently held.",
		}, []string{"backend"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leases_discarded_total",
			Help:      "Connections destroyed instead of being reused.",
		}, []string{"backend"}),
		countProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "count_probes_total",
			Help:      "Row-count probes for pagination and schema summaries.",
		}, []string{"backend", "outcome"}),
	}

	reg.MustRegister(r.queries, r.queryDuration, r.acquireDuration, r.inUse, r.discarded, r.countProbes)
	return r
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveQuery(backend, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.queries.WithLabelValues(backend, outcome).Inc()
	r.queryDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func (r *Recorder) ObserveAcquire(backend, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.acquireDuration.WithLabelValues(backend, outcome).Observe(d.Seconds())
}

func (r *Recorder) LeaseOpened(backend string) {
	if r == nil {
		return
	}
	r.inUse.WithLabelValues(backend).Inc()
}

func (r *Recorder) LeaseClosed(backend string, discarded bool) {
	if r == nil {
		return
	}
	r.inUse.WithLabelValues(backend).Dec()
	if discarded {
		r.discarded.WithLabelValues(backend).Inc()
	}
}

// ConnectionDiscarded counts a connection destroyed before it was leased,
// such as one that failed its pre-handout ping.
func (r *Recorder) ConnectionDiscarded(backend string) {
	if r == nil {
		return
	}
	r.discarded.WithLabelValues(backend).Inc()
}

func (r *Recorder) ObserveCountProbe(backend, outcome string) {
	if r == nil {
		return
	}
	r.countProbes.WithLabelValues(backend, outcome).Inc()
}
