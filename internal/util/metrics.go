package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders accepted",
	})

	OrdersThrottledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_throttled_total",
		Help: "Total number of orders rejected by the admission throttle",
	}, []string{"tenant_id"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	WebhooksProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_processed_total",
		Help: "Total number of webhook events processed",
	}, []string{"source"})

	WebhookDuplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_duplicates_total",
		Help: "Total number of webhook redeliveries skipped by the idempotency guard",
	}, []string{"source"})

	RetryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_attempts_total",
		Help: "Total number of retried external API calls",
	}, []string{"operation"})

	RetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_exhausted_total",
		Help: "Total number of external API calls that failed after all retries",
	}, []string{"operation"})

	DeliveriesDispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deliveries_dispatched_total",
		Help: "Total number of courier dispatches created",
	})

	DeliveriesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deliveries_failed_total",
		Help: "Total number of failed courier dispatches",
	}, []string{"reason"})

	DeliveryDispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "delivery_dispatch_latency_seconds",
		Help:    "Latency of courier dispatch calls including retries",
		Buckets: prometheus.DefBuckets,
	})

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
