package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Allocation metrics
	AllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "label_allocations_total",
			Help: "Label allocations by backend and outcome",
		},
		[]string{"backend", "outcome"}, // "ok", "conflict", "exhausted", "unavailable", "error"
	)

	AllocationAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "label_allocation_attempts",
			Help:    "Reservation attempts needed per allocation",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
		[]string{"backend"},
	)

	ReservationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "label_reservation_duration_seconds",
			Help:    "Duration of one allocation attempt: lock wait, reservation, insert and commit",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"backend"},
	)

	AllocationGaps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "label_allocation_gaps_total",
			Help: "Counter values burned without ever being written to an item",
		},
		[]string{"backend"},
	)

	AllocationRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "label_allocation_retries_total",
			Help: "Allocation retries by reason",
		},
		[]string{"backend", "reason"}, // "collision" or "contention"
	)

	CounterValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "label_counter_value",
			Help: "Highest counter value handed out by this process",
		},
		[]string{"backend"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "label_cache_hits_total",
			Help: "Total number of item cache hits",
		},
		[]string{"layer"}, // "l1" or "l2"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "label_cache_misses_total",
			Help: "Total number of item cache misses",
		},
		[]string{"layer"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "label_cache_size",
			Help: "Current number of items in cache",
		},
		[]string{"layer"},
	)

	// Request metrics
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "label_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route", "status"},
	)

	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "label_requests_total",
			Help: "Total number of requests",
		},
		[]string{"method", "route", "status"},
	)

	// Database metrics
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "label_database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)
