package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignalsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_signals_ingested_total",
		Help: "Total number of signals stored by the ingestion pipeline.",
	})

	SignalsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_signals_duplicate_total",
		Help: "Total number of ingest calls absorbed as duplicates of an existing signal_id.",
	})

	SignalsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_signals_rejected_total",
		Help: "Total number of signals rejected before storage, labelled by reason.",
	}, []string{"reason"})

	StatusUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_status_updates_total",
		Help: "Total number of signal status transitions, labelled by new status.",
	}, []string{"status"})

	HeartbeatsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_heartbeats_recorded_total",
		Help: "Total number of agent heartbeats upserted.",
	})

	DataIntegrityWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_data_integrity_warnings_total",
		Help: "Total number of malformed stored JSON documents encountered on read.",
	})

	AuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_auth_failures_total",
		Help: "Total number of write requests rejected for a missing or incorrect API key.",
	})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "beacon_http_request_duration_ms",
		Help:    "HTTP request latency in milliseconds, labelled by route and status code.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"route", "code"})
)
