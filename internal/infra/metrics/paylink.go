package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		PaylinkTokensTotal,
		PaylinkRateLimitedTotal,
	)
}

var (
	// Token operations grouped by op and outcome.
	// op: generate|verify
	// outcome: ok|invalid|malformed|expired|bad_request|unconfigured
	PaylinkTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paylink_tokens_total",
			Help: "Payment link tokens generated or verified, by outcome.",
		},
		[]string{"op", "outcome"},
	)

	PaylinkRateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "paylink_rate_limited_total",
			Help: "Link generation requests refused by the rate limiter.",
		},
	)
)

func IncToken(op, outcome string) {
	PaylinkTokensTotal.WithLabelValues(op, outcome).Inc()
}
