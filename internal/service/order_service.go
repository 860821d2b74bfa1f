package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restoflow/internal/broker"
	"restoflow/internal/models"
	"restoflow/internal/store"
	"restoflow/internal/throttle"
	"restoflow/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ThrottledError is returned when a tenant is at capacity. It carries the
// full admission decision so the route handler can build a Retry-After
// response.
type ThrottledError struct {
	Decision throttle.Decision
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("order intake throttled: %d/%d orders this window, retry after %ds",
		e.Decision.CurrentCount, e.Decision.MaxOrders, e.Decision.RetryAfterSeconds)
}

// AsThrottledError unwraps err into a ThrottledError if it is one
func AsThrottledError(err error) (*ThrottledError, bool) {
	var te *ThrottledError
	ok := errors.As(err, &te)
	return te, ok
}

// OrderService handles order intake and lifecycle
type OrderService struct {
	store          *store.Store
	throttle       *throttle.Throttle
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	store *store.Store,
	throttle *throttle.Throttle,
	eventPublisher *broker.EventPublisher,
) *OrderService {
	return &OrderService{
		store:          store,
		throttle:       throttle,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	TenantID       int64              `json:"tenant_id" binding:"required"`
	CustomerName   string             `json:"customer_name" binding:"required"`
	CustomerPhone  string             `json:"customer_phone,omitempty"`
	DropoffAddress string             `json:"dropoff_address" binding:"required"`
	Items          []OrderItemRequest `json:"items" binding:"required,min=1"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	MenuItem  string `json:"menu_item" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	UnitPrice int64  `json:"unit_price" binding:"required,min=0"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

// CreateOrder runs the admission check, persists the order and publishes
// an OrderAccepted event for the delivery worker. The admission check is
// read-only: concurrent requests can race past it, which is the accepted
// soft-limit behavior.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	decision, err := s.throttle.CheckAdmission(ctx, req.TenantID)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("throttle_check_error").Inc()
		return nil, fmt.Errorf("admission check failed: %w", err)
	}
	if !decision.Allowed {
		return nil, &ThrottledError{Decision: decision}
	}

	order := &models.Order{
		TenantID:      req.TenantID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		TotalAmount:   s.calculateTotal(req.Items),
		Status:        models.OrderStatusPending,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	for _, item := range req.Items {
		orderItem := &models.OrderItem{
			OrderID:   order.ID,
			MenuItem:  item.MenuItem,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
		if err := s.store.CreateOrderItem(ctx, orderItem); err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order accepted",
		zap.Int64("order_id", order.ID),
		zap.Int64("tenant_id", order.TenantID),
		zap.Int("window_count", decision.CurrentCount+1))

	event := &models.OrderAcceptedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderAccepted,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		TenantID:    order.TenantID,
		TotalAmount: order.TotalAmount,
		Address:     req.DropoffAddress,
	}

	if err := s.eventPublisher.PublishOrderAccepted(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderAccepted event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}

	return &CreateOrderResponse{
		OrderID: order.ID,
		Status:  order.Status,
	}, nil
}

// CancelOrder cancels an order. Cancelled orders stop counting against
// the tenant's throttle capacity immediately.
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64, reason string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == models.OrderStatusCancelled {
		return nil
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusCancelled); err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", orderID),
		zap.String("reason", reason))

	event := &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCancelled,
			Timestamp: time.Now(),
		},
		OrderID:  orderID,
		TenantID: order.TenantID,
		Reason:   reason,
	}

	if err := s.eventPublisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}

	return nil
}

// GetOrder retrieves an order and its items
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

// Availability projects the tenant's current intake capacity for display
func (s *OrderService) Availability(ctx context.Context, tenantID int64) (throttle.Availability, error) {
	return s.throttle.DescribeAvailability(ctx, tenantID)
}

func (s *OrderService) calculateTotal(items []OrderItemRequest) int64 {
	var total int64
	for _, item := range items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return total
}
