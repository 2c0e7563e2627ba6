package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rateCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_cache_requests_total",
			Help: "Rate lookup cache reads by result",
		},
		[]string{"result"}, // hit, miss, stale
	)

	rateCacheRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_cache_rebuilds_total",
			Help: "Rate lookup cache rebuilds by outcome",
		},
		[]string{"outcome"}, // success, storage_error, lock_timeout
	)

	rateCacheRebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rate_cache_rebuild_duration_seconds",
			Help:    "Time spent loading active rate records for a cache rebuild",
			Buckets: prometheus.DefBuckets,
		},
	)

	rateCacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_cache_invalidations_total",
			Help: "Explicit rate lookup cache invalidations",
		},
	)

	rateResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_resolutions_total",
			Help: "Rate resolutions by outcome",
		},
		[]string{"outcome"}, // matched, no_match, error
	)

	rateSheetRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_sheet_import_rows_total",
			Help: "Imported rate sheet rows by outcome",
		},
		[]string{"outcome"}, // imported, failed
	)
)
