// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orgdesk"

var (
	// HTTPRequestTotal counts requests by method, route template, and status.
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10),
		},
		[]string{"method", "route"},
	)

	// RateLimitedTotal counts requests rejected with 429.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Total number of requests rejected by the per-organization rate limiter.",
		},
	)

	// RefreshTotal counts refresh attempts by outcome:
	// rotated, invalid, revoked, reused, error.
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_refresh_total",
			Help:      "Total number of refresh-token presentations by outcome.",
		},
		[]string{"outcome"},
	)

	// FamilyRevocationsTotal counts family-wide revocations by reason (reuse, race, logout).
	FamilyRevocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_family_revocations_total",
			Help:      "Total number of token-family revocations by reason.",
		},
		[]string{"reason"},
	)

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_hits_total",
			Help:      "Total number of response cache hits.",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_misses_total",
			Help:      "Total number of response cache misses.",
		},
	)

	CacheStoresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_stores_total",
			Help:      "Total number of responses stored in the cache.",
		},
	)

	// CacheRejectedStoresTotal counts stores refused as non-2xx or stale.
	CacheRejectedStoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_rejected_stores_total",
			Help:      "Total number of responses not stored, by reason.",
		},
		[]string{"reason"},
	)

	CacheInvalidatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_invalidated_entries_total",
			Help:      "Total number of cache entries removed by invalidation, by entity type.",
		},
		[]string{"entity_type"},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "response_cache_entries",
			Help:      "Number of entries currently held by the response cache.",
		},
	)
)
