package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(storePoolConns) }

var storePoolConns = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "solpay_store_pool_connections",
		Help: "Postgres connections held by the gateway store, by state (acquired, idle, max).",
	},
	[]string{"state"},
)

func SetStorePoolStats(acquired, idle, maxConns int32) {
	storePoolConns.WithLabelValues("acquired").Set(float64(acquired))
	storePoolConns.WithLabelValues("idle").Set(float64(idle))
	storePoolConns.WithLabelValues("max").Set(float64(maxConns))
}
