// Package metrics defines the Prometheus collectors of the saved query admin.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "qbe_admin"

// Metrics groups the collectors; build it once and pass it to the services.
type Metrics struct {
	QueryRuns       *prometheus.CounterVec
	QueriesSaved    *prometheus.CounterVec
	AddRedirects    prometheus.Counter
	PendingStored   prometheus.Counter
	RequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueryRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_runs_total",
			Help:      "Saved query run requests by outcome.",
		}, []string{"outcome"}),
		QueriesSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_saved_total",
			Help:      "Saved query writes by outcome.",
		}, []string{"outcome"}),
		AddRedirects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "add_redirects_total",
			Help:      "Add requests sent back to the QBE form for lack of a pending query.",
		}),
		PendingStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_queries_stored_total",
			Help:      "Query definitions written to a session.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	if reg != nil {
		reg.MustRegister(m.QueryRuns, m.QueriesSaved, m.AddRedirects, m.PendingStored, m.RequestDuration)
	}
	return m
}

// RegisterCacheSize exports size as a gauge of the entries held by the named
// cache.
func RegisterCacheSize(reg prometheus.Registerer, cache string, size func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "cache_entries",
		Help:        "Entries currently held by an in-memory cache.",
		ConstLabels: prometheus.Labels{"cache": cache},
	}, func() float64 { return float64(size()) }))
}
