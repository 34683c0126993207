// Package metrics exposes Prometheus collectors for media resolution.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors. It implements twitter.CallObserver.
type Metrics struct {
	resolves         *prometheus.CounterVec
	resolveDuration  prometheus.Histogram
	upstreamCalls    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	droppedEntities  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xgrab",
			Name:      "resolve_total",
			Help:      "Media resolutions by outcome (ok or error kind).",
		}, []string{"outcome"}),
		resolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "xgrab",
			Name:      "resolve_duration_seconds",
			Help:      "End-to-end media resolution latency.",
			Buckets:   []float64{.1, .25, .5, 1, 2, 5, 10, 30},
		}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xgrab",
			Name:      "upstream_requests_total",
			Help:      "Upstream HTTP calls by step and status code (0 = no response).",
		}, []string{"step", "status"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "xgrab",
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream HTTP call latency by step.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		droppedEntities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xgrab",
			Name:      "dropped_media_entities_total",
			Help:      "Media entities left out of responses, by entity kind and reason.",
		}, []string{"kind", "reason"}),
	}
	reg.MustRegister(m.resolves, m.resolveDuration, m.upstreamCalls, m.upstreamDuration, m.droppedEntities)
	return m
}

// UpstreamCall records one upstream HTTP call.
func (m *Metrics) UpstreamCall(step string, status int, elapsed time.Duration) {
	m.upstreamCalls.WithLabelValues(step, strconv.Itoa(status)).Inc()
	m.upstreamDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

// Resolve records a finished resolution. outcome is "ok" or an error kind.
func (m *Metrics) Resolve(outcome string, elapsed time.Duration) {
	m.resolves.WithLabelValues(outcome).Inc()
	m.resolveDuration.Observe(elapsed.Seconds())
}

// DroppedEntity records a media entity that produced no media item.
func (m *Metrics) DroppedEntity(kind, reason string) {
	if kind == "" {
		kind = "unknown"
	}
	m.droppedEntities.WithLabelValues(kind, reason).Inc()
}
