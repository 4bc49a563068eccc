package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ModelInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squidcast_model_invocations_total",
			Help: "Total model inference calls",
		},
		[]string{"status"},
	)

	ModelLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "squidcast_model_latency_seconds",
			Help:    "Model inference latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	HotspotForecastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squidcast_hotspot_forecasts_total",
			Help: "Per-hotspot forecast outcomes",
		},
		[]string{"outcome"},
	)

	ForecastRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squidcast_forecast_requests_total",
			Help: "Total forecast requests by result",
		},
		[]string{"status"},
	)

	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squidcast_records_ingested_total",
			Help: "Total historical records successfully ingested",
		},
		[]string{"source"},
	)
)
