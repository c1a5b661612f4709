package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		submissionsTotal,
		confirmDuration,
		auditLogWarningsTotal,
		outboxTotal,
	)
}

var (
	// op: register_merchant|create_plan|subscribe|pay_once|cancel|update_plan|log_payment
	// outcome: ok|rejected|preflight|network|error
	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solpay_submissions_total",
			Help: "Orchestrated transaction submissions by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	confirmDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solpay_confirm_duration_seconds",
			Help:    "Time from send to confirmation in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"op"},
	)

	auditLogWarningsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "solpay_audit_log_warnings_total",
			Help: "Settlements whose payment log transaction failed after the transfer confirmed.",
		},
	)

	// result: enqueued|done|failed|abandoned|skipped
	outboxTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solpay_payment_log_outbox_total",
			Help: "Payment log outbox transitions by result.",
		},
		[]string{"result"},
	)
)

func IncSubmission(op, outcome string) {
	submissionsTotal.WithLabelValues(op, outcome).Inc()
}

func ObserveConfirm(op string, d time.Duration) {
	confirmDuration.WithLabelValues(op).Observe(d.Seconds())
}

func IncAuditLogWarning() {
	auditLogWarningsTotal.Inc()
}

func IncOutbox(result string) {
	outboxTotal.WithLabelValues(result).Inc()
}
