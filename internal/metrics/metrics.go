// Package metrics provides Prometheus metrics for the blog.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "blog"

// Article lookup results
const (
	ResultFound     = "found"
	ResultNotFound  = "not_found"
	ResultBadID     = "bad_id"
	ResultError     = "error"
	ResultNotChange = "not_modified"
)

// Cache lookup results
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

var (
	// ArticleRequests counts article lookups by outcome.
	ArticleRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "article_requests_total",
			Help:      "Total number of article requests by result",
		},
		[]string{"result"},
	)

	// RequestDuration measures handler latency per route.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)

	// PopularErrors counts sidebar failures that degraded to an empty list.
	PopularErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "popular_errors_total",
			Help:      "Total number of failed most-popular lookups",
		},
	)

	// ViewRecordErrors counts view increments that failed.
	ViewRecordErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_record_errors_total",
			Help:      "Total number of failed view recordings",
		},
	)

	// RateLimited counts rejected requests.
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
	)

	// SanitizedCacheEntries tracks the size of the sanitized body cache.
	SanitizedCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sanitized_cache_entries",
			Help:      "Number of sanitized article bodies held in memory",
		},
	)

	// SanitizedCacheBytes tracks the sanitized HTML held by that cache.
	SanitizedCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sanitized_cache_bytes",
			Help:      "Bytes of sanitized article body HTML held in memory",
		},
	)

	ArticleCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "article_cache_entries",
			Help:      "Number of article ids held in the article cache",
		},
	)

	ArticleCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "article_cache_bytes",
			Help:      "Approximate bytes of article rows held in the article cache",
		},
	)

	// ArticleCacheLookups mirrors the cache's own hit/miss counters, label result is hit or miss.
	ArticleCacheLookups = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "article_cache_lookups",
			Help:      "Article cache lookups since start by result",
		},
		[]string{"result"},
	)

	ArticleCacheEvictions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "article_cache_evictions",
			Help:      "Article cache entries evicted since start",
		},
	)
)
