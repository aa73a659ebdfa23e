// Package metrics exposes the node's Prometheus registry. It is pure
// observability: nothing recorded here feeds back into the quorum
// decision or any client-visible response.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors a node registers.
type Metrics struct {
	Registry *prometheus.Registry

	WritesTotal        *prometheus.CounterVec
	ReplicationLatency prometheus.Histogram
	StoreSize          prometheus.Gauge
}

// New builds a fresh registry with this node's collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		WritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kvnode_writes_total",
			Help: "Client writes handled by the leader, labeled by quorum outcome.",
		}, []string{"outcome"}),
		ReplicationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kvnode_replication_latency_ms",
			Help:    "Per-peer replication latency in milliseconds, successes only.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1ms .. ~8s
		}),
		StoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kvnode_store_size",
			Help: "Number of keys currently held in the local store.",
		}),
	}

	reg.MustRegister(m.WritesTotal, m.ReplicationLatency, m.StoreSize)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
