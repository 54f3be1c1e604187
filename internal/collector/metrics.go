package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	collectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntx_snmpd_collections_total",
			Help: "Collection cycles by result (success, failed, cached)",
		},
		[]string{"result"},
	)

	collectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ntx_snmpd_collection_duration_seconds",
			Help:    "Wall-clock duration of successful collection cycles",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	listFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntx_snmpd_list_failures_total",
			Help: "Entity listing failures by kind",
		},
		[]string{"kind"},
	)

	fetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntx_snmpd_stats_fetch_failures_total",
			Help: "Per-entity stats fetch failures by kind",
		},
		[]string{"kind"},
	)

	entitiesGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ntx_snmpd_entities",
			Help: "Entities in the most recent snapshot by kind",
		},
		[]string{"kind"},
	)
)
