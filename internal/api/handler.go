package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"restoflow/internal/client"
	"restoflow/internal/service"
	"restoflow/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService    *service.OrderService
	paymentService  *service.PaymentService
	deliveryService *service.DeliveryService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orderService *service.OrderService,
	paymentService *service.PaymentService,
	deliveryService *service.DeliveryService,
) *Handler {
	return &Handler{
		orderService:    orderService,
		paymentService:  paymentService,
		deliveryService: deliveryService,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/refund", h.refundOrder)
		v1.GET("/orders/:id/quote", h.quoteOrder)
		v1.GET("/tenants/:id/availability", h.availability)
	}

	hooks := router.Group("/webhooks")
	{
		hooks.POST("/stripe", h.stripeWebhook)
		hooks.POST("/doordash", h.doordashWebhook)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles order creation. Throttle rejections become a 429
// with a Retry-After header.
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		if throttled, ok := service.AsThrottledError(err); ok {
			c.Header("Retry-After", strconv.Itoa(throttled.Decision.RetryAfterSeconds))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":               "Order intake is at capacity",
				"message":             throttled.Decision.WaitMessage(),
				"retry_after_seconds": throttled.Decision.RetryAfterSeconds,
				"current_count":       throttled.Decision.CurrentCount,
				"max_orders":          throttled.Decision.MaxOrders,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := h.orderIDParam(c)
	if !ok {
		return
	}

	order, items, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Order not found",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

// cancelOrder cancels an order
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := h.orderIDParam(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "customer_requested"
	}

	if err := h.orderService.CancelOrder(c.Request.Context(), orderID, req.Reason); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to cancel order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// refundOrder refunds an order's payment
func (h *Handler) refundOrder(c *gin.Context) {
	orderID, ok := h.orderIDParam(c)
	if !ok {
		return
	}

	if err := h.paymentService.RefundOrder(c.Request.Context(), orderID); err != nil {
		status := http.StatusInternalServerError
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{
			"error":   "Refund failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"refunded": true})
}

// quoteOrder returns a delivery quote for an order
func (h *Handler) quoteOrder(c *gin.Context) {
	orderID, ok := h.orderIDParam(c)
	if !ok {
		return
	}

	dropoff := c.Query("dropoff")
	if dropoff == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing dropoff address"})
		return
	}

	quote, err := h.deliveryService.QuoteOrder(c.Request.Context(), orderID, dropoff)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to quote delivery",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, quote)
}

// availability reports whether a tenant is accepting orders
func (h *Handler) availability(c *gin.Context) {
	tenantID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant ID"})
		return
	}

	avail, err := h.orderService.Availability(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to check availability",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, avail)
}

type stripeEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// stripeWebhook handles Stripe event deliveries
func (h *Handler) stripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read payload"})
		return
	}

	if err := h.paymentService.VerifySignature(payload, c.GetHeader("Stripe-Signature")); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var envelope stripeEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event payload"})
		return
	}

	outcome, err := h.paymentService.HandleStripeEvent(
		c.Request.Context(), envelope.ID, envelope.Type, envelope.Data.Object)
	if err != nil {
		// Non-2xx makes Stripe redeliver, which the guard will dedup.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Event processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":  true,
		"processed": outcome.Processed,
	})
}

type doordashEnvelope struct {
	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
}

// doordashWebhook handles DoorDash delivery status deliveries
func (h *Handler) doordashWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read payload"})
		return
	}

	var envelope doordashEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.EventID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event payload"})
		return
	}

	outcome, err := h.deliveryService.HandleDoorDashEvent(
		c.Request.Context(), envelope.EventID, envelope.EventName, payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Event processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":  true,
		"processed": outcome.Processed,
	})
}

func (h *Handler) orderIDParam(c *gin.Context) (int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return 0, false
	}
	return orderID, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
