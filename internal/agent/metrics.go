package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntx_snmpd_snmp_requests_total",
			Help: "SNMP requests answered by PDU type",
		},
		[]string{"pdu"},
	)

	deniedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ntx_snmpd_snmp_denied_total",
			Help: "SNMP requests dropped by the client allow-list",
		},
	)

	droppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntx_snmpd_snmp_dropped_total",
			Help: "SNMP packets dropped before answering by reason",
		},
		[]string{"reason"},
	)

	reportsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ntx_snmpd_snmp_discovery_reports_total",
			Help: "Engine discovery reports sent",
		},
	)
)
