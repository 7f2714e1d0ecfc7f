package obs

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsConfig struct {
	KeyTopK           int
	RecomputeInterval time.Duration
}

// Metrics wraps a private Prometheus registry with the counters and
// gauges the dispatcher and registry actor report against. Every method
// is nil-safe so a dispatcher built without metrics configured doesn't
// need to guard every call site.
type Metrics struct {
	registry          *prometheus.Registry
	topk              *TopK
	requests          *prometheus.CounterVec
	upstreamErrors    *prometheus.CounterVec
	dispatchErrors    *prometheus.CounterVec
	announces         *prometheus.CounterVec
	evictions         *prometheus.CounterVec
	removals          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	upstreamRoundTrip *prometheus.HistogramVec
	poolCount         prometheus.Gauge
	nodeCount         prometheus.Gauge
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	registry := prometheus.NewRegistry()
	topk := NewTopK(cfg.KeyTopK, cfg.RecomputeInterval)

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subscriptiond_requests_total",
		Help: "Total dispatched requests by subscription key and status class",
	}, []string{"key", "status_class"})

	upstreamErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subscriptiond_upstream_errors_total",
		Help: "Total upstream round-trip failures",
	}, []string{"key", "category"})

	dispatchErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subscriptiond_dispatch_errors_total",
		Help: "Total requests rejected before reaching an upstream",
	}, []string{"category"})

	announces := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subscriptiond_announces_total",
		Help: "Total announce calls accepted by the registry (fresh or refreshed)",
	}, []string{"mode"})

	evictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subscriptiond_evictions_total",
		Help: "Total nodes freed by the liveness sweeper",
	}, []string{"mode"})

	removals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subscriptiond_removals_total",
		Help: "Total nodes removed by explicit remove calls",
	}, []string{"mode"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subscriptiond_request_duration_seconds",
		Help:    "Dispatched request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"key"})

	upstreamRoundTrip := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subscriptiond_upstream_roundtrip_seconds",
		Help:    "Upstream roundtrip duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"key"})

	poolCount := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "subscriptiond_pools",
		Help: "Current number of pools in the registry",
	})

	nodeCount := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "subscriptiond_nodes",
		Help: "Current number of nodes across all pools",
	})

	registry.MustRegister(requests, upstreamErrors, dispatchErrors, announces, evictions, removals, requestDuration, upstreamRoundTrip, poolCount, nodeCount)

	return &Metrics{
		registry:          registry,
		topk:              topk,
		requests:          requests,
		upstreamErrors:    upstreamErrors,
		dispatchErrors:    dispatchErrors,
		announces:         announces,
		evictions:         evictions,
		removals:          removals,
		requestDuration:   requestDuration,
		upstreamRoundTrip: upstreamRoundTrip,
		poolCount:         poolCount,
		nodeCount:         nodeCount,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(key string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	defer func() { _ = recover() }()

	m.topk.ObserveHit(key)
	canonKey := m.topk.Canon(key)
	m.requests.WithLabelValues(canonKey, statusClass(status)).Inc()
	m.requestDuration.WithLabelValues(canonKey).Observe(duration.Seconds())
}

func (m *Metrics) ObserveUpstreamRoundTrip(key string, duration time.Duration) {
	if m == nil {
		return
	}
	defer func() { _ = recover() }()

	canonKey := m.topk.Canon(key)
	m.upstreamRoundTrip.WithLabelValues(canonKey).Observe(duration.Seconds())
}

func (m *Metrics) RecordUpstreamError(key string, category string) {
	if m == nil {
		return
	}
	defer func() { _ = recover() }()

	canonKey := m.topk.Canon(key)
	m.upstreamErrors.WithLabelValues(canonKey, category).Inc()
}

func (m *Metrics) RecordDispatchError(category string) {
	if m == nil {
		return
	}
	defer func() { _ = recover() }()

	m.dispatchErrors.WithLabelValues(category).Inc()
}

func (m *Metrics) RecordAnnounce(mode string) {
	if m == nil {
		return
	}
	defer func() { _ = recover() }()

	m.announces.WithLabelValues(mode).Inc()
}

func (m *Metrics) RecordEviction(mode string) {
	if m == nil {
		return
	}
	defer func() { _ = recover() }()

	m.evictions.WithLabelValues(mode).Inc()
}

func (m *Metrics) RecordRemoval(mode string) {
	if m == nil {
		return
	}
	defer func() { _ = recover() }()

	m.removals.WithLabelValues(mode).Inc()
}

func (m *Metrics) SetPoolStats(pools int, nodes int) {
	if m == nil {
		return
	}
	defer func() { _ = recover() }()

	m.poolCount.Set(float64(pools))
	m.nodeCount.Set(float64(nodes))
}

func statusClass(status int) string {
	if status <= 0 {
		return "unknown"
	}
	return fmt.Sprintf("%dxx", status/100)
}
