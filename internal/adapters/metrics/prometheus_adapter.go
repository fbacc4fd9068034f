package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RefreshCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfc_refresh_cycles_total",
			Help: "Token refresh cycles by outcome (rotated, failed, no_refresh_token).",
		},
		[]string{"outcome"},
	)

	RefreshWaitersHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sfc_refresh_cycle_waiters",
			Help:    "Number of requests released by a single refresh cycle.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)

	RefreshInFlightGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sfc_refresh_in_flight",
			Help: "1 while a token refresh cycle is running.",
		},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfc_api_requests_total",
			Help: "Backend API requests by method and status code (0 for network errors).",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sfc_api_request_duration_seconds",
			Help:    "Backend API request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfc_cache_lookups_total",
			Help: "Response cache lookups by entity and result (hit, miss, joined).",
		},
		[]string{"entity", "result"},
	)

	CacheEntriesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sfc_cache_entries",
			Help: "Number of entries held by the response cache.",
		},
	)

	CacheDiscardedWritesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sfc_cache_discarded_fetches_total",
			Help: "Fetch results discarded because a newer write landed first.",
		},
	)

	OptimisticRollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfc_optimistic_rollbacks_total",
			Help: "Optimistic updates rolled back, by entity.",
		},
		[]string{"entity"},
	)

	SessionEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfc_session_events_total",
			Help: "Session events by direction (published, received) and reason.",
		},
		[]string{"direction", "reason"},
	)
)

func IncrementRefreshCycle(outcome string) {
	RefreshCyclesTotal.WithLabelValues(outcome).Inc()
}

func ObserveRefreshWaiters(n int) {
	RefreshWaitersHistogram.Observe(float64(n))
}

func SetRefreshInFlight(inFlight bool) {
	if inFlight {
		RefreshInFlightGauge.Set(1)
		return
	}
	RefreshInFlightGauge.Set(0)
}

// ObserveAPIRequest records one backend call. status is 0 when no response was received.
func ObserveAPIRequest(method string, status int, took time.Duration) {
	APIRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method).Observe(took.Seconds())
}

func IncrementCacheLookup(entity, result string) {
	CacheLookupsTotal.WithLabelValues(entity, result).Inc()
}

func SetCacheEntries(n int) {
	CacheEntriesGauge.Set(float64(n))
}

func IncrementDiscardedFetch() {
	CacheDiscardedWritesTotal.Inc()
}

func IncrementOptimisticRollback(entity string) {
	OptimisticRollbacksTotal.WithLabelValues(entity).Inc()
}

func IncrementSessionEvent(direction, reason string) {
	SessionEventsTotal.WithLabelValues(direction, reason).Inc()
}
