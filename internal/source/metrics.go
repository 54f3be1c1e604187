package source

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntx_snmpd_prism_requests_total",
			Help: "Total number of Prism API requests by method and HTTP status",
		},
		[]string{"method", "status"},
	)

	apiRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ntx_snmpd_prism_request_duration_seconds",
			Help:    "Prism API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	apiAuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ntx_snmpd_prism_auth_failures_total",
			Help: "Total number of Prism API calls rejected for credentials or permissions",
		},
	)
)
