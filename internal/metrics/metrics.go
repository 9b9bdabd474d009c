package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plain_http_requests_total",
			Help: "Total number of HTTP requests by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plain_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// CacheResults считает результаты обращений к кэшу: hit, miss, stale, error.
	CacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plain_cache_results_total",
			Help: "Cache lookups by result.",
		},
		[]string{"result"},
	)

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plain_cache_evictions_total",
		Help: "Entries evicted from the in-memory cache on overflow.",
	})

	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plain_retry_attempts_total",
			Help: "Retried operation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plain_batch_size",
			Help:    "Number of keys per batched storage lookup.",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"loader"},
	)

	LevelUps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plain_level_ups_total",
		Help: "Total number of user level increases.",
	})

	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plain_notifications_published_total",
			Help: "Notifications published to the broker by status.",
		},
		[]string{"status"},
	)

	LiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plain_live_subscribers",
		Help: "Active comment feed subscribers.",
	})
)
