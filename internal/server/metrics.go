package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes operational counters on a private registry so tests can
// run servers side by side without collisions.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	attempts prometheus.Histogram
	duration prometheus.Histogram
}

// NewMetrics builds the relay's Prometheus instruments.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_chat_requests_total",
			Help: "Chat requests by outcome.",
		}, []string{"outcome"}),
		attempts: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_vertex_attempts",
			Help:    "Upstream attempts per chat request.",
			Buckets: []float64{1, 2, 3},
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_chat_duration_seconds",
			Help:    "Chat request duration, first byte in to stream closed.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveChat records one finished chat request.
func (m *Metrics) ObserveChat(outcome string, attempts int, elapsed time.Duration) {
	m.requests.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		m.attempts.Observe(float64(attempts))
	}
	m.duration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
