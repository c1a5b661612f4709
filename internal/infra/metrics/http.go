package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(httpRequestDuration) }

var httpRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP handler latency by route pattern and status class.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"route", "code"},
)

func ObserveHTTP(route, code string, seconds float64) {
	httpRequestDuration.WithLabelValues(route, code).Observe(seconds)
}
