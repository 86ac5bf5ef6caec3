// Package stats provides a unified interface for collecting metrics.
package stats

// Metric names used throughout the module.
const (
	// Engine metrics.
	MetricSearches          = "coach_engine_searches_total"
	MetricSearchErrors      = "coach_engine_search_errors_total"
	MetricSearchSeconds     = "coach_engine_search_seconds"
	MetricRestarts          = "coach_engine_restarts_total"
	MetricHeartbeatFailures = "coach_engine_heartbeat_failures_total"
	MetricQueueDepth        = "coach_engine_queue_depth"

	// Batch review metrics.
	MetricReviewGames           = "coach_review_games_total"
	MetricReviewPositions       = "coach_review_positions_total"
	MetricReviewFailedPositions = "coach_review_failed_positions_total"

	// Live session metrics.
	MetricLiveSessions   = "coach_live_sessions"
	MetricLiveSuperseded = "coach_live_superseded_total"
	MetricLiveDropped    = "coach_live_dropped_events_total"

	// Store cache metrics.
	MetricCacheHits   = "coach_store_cache_hits_total"
	MetricCacheMisses = "coach_store_cache_misses_total"
	MetricCacheSize   = "coach_store_cache_size"
)

// Collector defines the interface for collecting metrics.
type Collector interface {
	// IncCounter increments a counter metric by delta.
	IncCounter(name string, delta int64)

	// SetGauge sets a gauge metric to value.
	SetGauge(name string, value int64)

	// ObserveHistogram records a value in a histogram metric.
	ObserveHistogram(name string, value float64)
}
