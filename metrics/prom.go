package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hashbin_paste_created_total",
		Help: "no. of new pastes stored",
	})
	PasteDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hashbin_paste_duplicate_total",
		Help: "no. of creates that matched an existing paste",
	})
	PasteCollision = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hashbin_paste_collision_total",
		Help: "no. of creates rejected by a hash collision",
	})
	PasteRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hashbin_paste_retrieved_total",
		Help: "no. of pastes retrieved",
	})
	PasteDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hashbin_paste_deleted_total",
		Help: "no. of pastes deleted",
	})
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashbin_cache_hits_total",
			Help: "no. of cache hits",
		},
		[]string{"tier"},
	)
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hashbin_cache_misses_total",
		Help: "no. of lookups that reached the store",
	})
	Renders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashbin_renders_total",
			Help: "no. of paste views by rendering mode",
		},
		[]string{"mode"},
	)
	StoreUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hashbin_store_unavailable_total",
		Help: "no. of operations failed because the store was unreachable",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hashbin_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashbin_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"endpoint"},
	)
	RecentErrorRatePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hashbin_recent_error_rate_percent",
		Help: "5min rolling avg error rate percentage",
	})
)
