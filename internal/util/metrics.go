package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProductsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_created_total",
		Help: "Total number of products created",
	})

	StockUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_updates_total",
		Help: "Total number of stock update requests by outcome",
	}, []string{"result"})

	StockUpdateConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_update_conflicts_total",
		Help: "Total number of optimistic lock conflicts on the stock ledger",
	})

	StockUpdateAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_update_attempts",
		Help:    "Ledger write attempts per stock update",
		Buckets: []float64{1, 2, 3, 4, 5},
	})

	StockUpdateLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_update_latency_seconds",
		Help:    "Latency of stock updates including retries",
		Buckets: prometheus.DefBuckets,
	})

	DiscountsUpsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discounts_upserted_total",
		Help: "Total number of product discounts upserted",
	})

	CouponsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupons_issued_total",
		Help: "Total number of coupons issued",
	})

	StockCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_cache_lookups_total",
		Help: "Stock snapshot cache lookups by result",
	}, []string{"result"})

	EventsPublishFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_publish_failed_total",
		Help: "Total number of domain events that failed to publish",
	}, []string{"event_type"})

	EventsProjectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_projected_total",
		Help: "Total number of consumed events applied to the stock snapshot",
	}, []string{"event_type", "applied"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
