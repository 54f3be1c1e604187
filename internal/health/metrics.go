package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	componentHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ntx_snmpd_component_healthy",
			Help: "1 when the component passed its last health check",
		},
		[]string{"component"},
	)

	overallHealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ntx_snmpd_healthy",
			Help: "1 when every component passed the last health check",
		},
	)
)

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
