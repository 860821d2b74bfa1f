package models

import "time"

// Tenant represents a restaurant on the platform. The throttle columns are
// nullable: a tenant with either value unset has order throttling disabled.
type Tenant struct {
	ID                 int64     `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	Address            string    `db:"address" json:"address"`
	MaxOrdersPerWindow *int      `db:"max_orders_per_window" json:"max_orders_per_window,omitempty"`
	WindowMinutes      *int      `db:"throttle_window_minutes" json:"throttle_window_minutes,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// Order represents a customer order for a tenant
type Order struct {
	ID            int64     `db:"id" json:"id"`
	TenantID      int64     `db:"tenant_id" json:"tenant_id"`
	CustomerName  string    `db:"customer_name" json:"customer_name"`
	CustomerPhone string    `db:"customer_phone" json:"customer_phone,omitempty"`
	TotalAmount   int64     `db:"total_amount" json:"total_amount"`
	Status        string    `db:"status" json:"status"`
	PaymentRef    string    `db:"payment_ref" json:"payment_ref,omitempty"`
	DeliveryRef   string    `db:"delivery_ref" json:"delivery_ref,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem represents a line item in an order
type OrderItem struct {
	ID        int64  `db:"id" json:"id"`
	OrderID   int64  `db:"order_id" json:"order_id"`
	MenuItem  string `db:"menu_item" json:"menu_item"`
	Quantity  int    `db:"quantity" json:"quantity"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
}

// Order statuses
const (
	OrderStatusPending    = "PENDING"
	OrderStatusPaid       = "PAID"
	OrderStatusPreparing  = "PREPARING"
	OrderStatusDispatched = "DISPATCHED"
	OrderStatusDelivered  = "DELIVERED"
	OrderStatusCancelled  = "CANCELLED"
	OrderStatusRefunded   = "REFUNDED"
)
