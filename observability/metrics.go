package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics instruments the plazad HTTP surface.
type APIMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	inflight  prometheus.Gauge
	throttled *prometheus.CounterVec
}

var (
	apiMetricsOnce sync.Once
	apiMetrics     *APIMetrics
)

// API returns the process-wide HTTP metrics, registering them on first use.
func API() *APIMetrics {
	apiMetricsOnce.Do(func() {
		apiMetrics = &APIMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "plaza",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "API requests by route and response status class.",
			}, []string{"route", "class"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "plaza",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Handler latency by route.",
				Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			}, []string{"route"}),
			inflight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "plaza",
				Subsystem: "api",
				Name:      "inflight_requests",
				Help:      "Requests currently being served.",
			}),
			throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "plaza",
				Subsystem: "api",
				Name:      "throttled_total",
				Help:      "Requests rejected before reaching a handler.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			apiMetrics.requests,
			apiMetrics.latency,
			apiMetrics.inflight,
			apiMetrics.throttled,
		)
	})
	return apiMetrics
}

// Begin marks a request as in flight; the returned func records its outcome.
func (m *APIMetrics) Begin() func(route string, status int) {
	if m == nil {
		return func(string, int) {}
	}
	start := time.Now()
	m.inflight.Inc()
	return func(route string, status int) {
		m.inflight.Dec()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, StatusClass(status)).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Throttled counts a request rejected by admission control.
func (m *APIMetrics) Throttled(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttled.WithLabelValues(reason).Inc()
}

// StatusClass folds an HTTP status into 2xx, 4xx, 5xx and so on.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
