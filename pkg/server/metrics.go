// Copyright 2025 Certen Protocol

package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus instrumentation surfaced at /metrics. No
// teacher file exercises prometheus/client_golang (go.mod lists it
// unused); this package is its first caller, following the library's
// own idiomatic NewRegistry/MustRegister pattern.
type Metrics struct {
	registry       *prometheus.Registry
	requestsTotal  prometheus.Counter
	dispatchLatency prometheus.Histogram
	asyncQueueDepth prometheus.GaugeFunc
}

// NewMetrics constructs a fresh registry with the server's base
// counters. AsyncQueueDepth is wired later via SetAsyncQueueGauge once
// the node's asynctoken.Table exists, since pkg/server is built before
// a caller has one to hand in.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "manynet",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Total number of RPC requests handled.",
		}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "manynet",
			Subsystem: "server",
			Name:      "dispatch_latency_seconds",
			Help:      "Latency of the full envelope decode/dispatch/encode cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	registry.MustRegister(m.requestsTotal, m.dispatchLatency)
	return m
}

// SetAsyncQueueGauge registers a gauge reporting the live size of an
// asynctoken.Table (or any len-like source), per SPEC_FULL.md §4.G.
func (m *Metrics) SetAsyncQueueGauge(name, help string, fn func() float64) {
	if m.asyncQueueDepth != nil {
		m.registry.Unregister(m.asyncQueueDepth)
	}
	m.asyncQueueDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "manynet",
		Subsystem: "server",
		Name:      name,
		Help:      help,
	}, fn)
	m.registry.MustRegister(m.asyncQueueDepth)
}

// ObserveRequest records one completed request's dispatch latency.
func (m *Metrics) ObserveRequest(d time.Duration) {
	m.requestsTotal.Inc()
	m.dispatchLatency.Observe(d.Seconds())
}

// Handler exposes the registry in the standard Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
