package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(gatewayInfo) }

var gatewayInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "solpay_gateway_info",
		Help: "Always 1. Labels carry the gateway build and the solpay program it targets.",
	},
	[]string{"version", "commit", "program_id"},
)

// SetGatewayInfo replaces any earlier info series.
func SetGatewayInfo(version, commit, programID string) {
	gatewayInfo.Reset()
	gatewayInfo.WithLabelValues(version, commit, programID).Set(1)
}
