package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Online reports the last connectivity probe outcome (1 online, 0 offline).
	Online = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedsync_online",
			Help: "Whether the last connectivity probe reached the remote host",
		},
	)

	// CacheReads records local cache reads by collection and outcome (hit|miss|error).
	CacheReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedsync_cache_reads_total",
			Help: "Total number of local cache reads",
		},
		[]string{"collection", "outcome"},
	)

	// OfflineFallbacks counts reads served from the cache because the agent was offline.
	OfflineFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedsync_offline_fallbacks_total",
			Help: "Total number of reads served from cache while offline",
		},
		[]string{"collection"},
	)

	// GatewayRequests counts remote API calls by operation and result (success|failure).
	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedsync_gateway_requests_total",
			Help: "Total number of remote gateway requests",
		},
		[]string{"operation", "result"},
	)

	// FeedPagesLoaded counts feed pages fetched from the remote API by trigger
	// (first|refresh|more).
	FeedPagesLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedsync_feed_pages_loaded_total",
			Help: "Total number of feed pages fetched from the remote API",
		},
		[]string{"trigger"},
	)

	// SyncRuns records background sync executions by result (success|failure|skipped).
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedsync_sync_runs_total",
			Help: "Total number of background sync runs",
		},
		[]string{"result"},
	)

	// APILatency measures local HTTP API request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedsync_api_latency_seconds",
			Help:    "Local API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
