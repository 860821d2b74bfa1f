package models

import "time"

// Event types
const (
	EventTypeOrderAccepted      = "ORDER_ACCEPTED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypeDeliveryDispatched = "DELIVERY_DISPATCHED"
	EventTypeDeliveryFailed     = "DELIVERY_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderAcceptedEvent published when an order passes admission and is persisted
type OrderAcceptedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	TenantID    int64  `json:"tenant_id"`
	TotalAmount int64  `json:"total_amount"`
	Address     string `json:"address,omitempty"`
}

// OrderCancelledEvent published when an order is cancelled
type OrderCancelledEvent struct {
	BaseEvent
	OrderID  int64  `json:"order_id"`
	TenantID int64  `json:"tenant_id"`
	Reason   string `json:"reason"`
}

// DeliveryDispatchedEvent published when a courier is dispatched
type DeliveryDispatchedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	TenantID    int64  `json:"tenant_id"`
	DeliveryRef string `json:"delivery_ref"`
}

// DeliveryFailedEvent published when dispatch fails permanently
type DeliveryFailedEvent struct {
	BaseEvent
	OrderID  int64  `json:"order_id"`
	TenantID int64  `json:"tenant_id"`
	Reason   string `json:"reason"`
}
