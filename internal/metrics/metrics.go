package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripstream_ingest_events_total",
			Help: "Total number of events processed, by outcome",
		},
		[]string{"outcome"},
	)

	QuarantineTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripstream_quarantine_events_total",
			Help: "Total number of events quarantined, by reason class",
		},
		[]string{"reason"},
	)

	MergeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tripstream_merge_duration_seconds",
			Help:    "Duration of trip record merges in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DedupHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripstream_dedup_hits_total",
			Help: "Total number of events skipped as recently-seen duplicates",
		},
	)

	StoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripstream_store_errors_total",
			Help: "Total number of transient store errors during ingestion",
		},
	)

	// Aggregation metrics
	AggregateRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripstream_aggregate_runs_total",
			Help: "Total number of aggregation runs, by result",
		},
		[]string{"result"},
	)

	DatesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripstream_aggregate_dates_published_total",
			Help: "Total number of KPI dates published",
		},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tripstream_aggregate_scan_duration_seconds",
			Help:    "Duration of full trip store scans in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
		},
	)
)
