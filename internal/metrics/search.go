package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval engine metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of ask calls by outcome",
		},
		[]string{"status"},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Ask duration in seconds, including the query embedding",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	SearchResultsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results_returned",
			Help:      "Number of items returned per ask",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 500, 2000},
		},
	)

	MalformedRecordsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_malformed_records_skipped_total",
			Help:      "Ranked records skipped because their ID failed the shape check",
		},
	)

	CorpusRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_records",
			Help:      "Number of records in the serving snapshot",
		},
	)

	ReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_reloads_total",
			Help:      "Snapshot reloads by outcome",
		},
		[]string{"status"},
	)

	RecacheDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recache_duration_seconds",
			Help:      "Time to rebuild the corpus and embedding caches",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
)
