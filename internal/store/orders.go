package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"restoflow/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (tenant_id, customer_name, customer_phone, total_amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, order, query,
		order.TenantID, order.CustomerName, order.CustomerPhone, order.TotalAmount, order.Status)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// SetOrderPaymentRef records the provider payment reference on an order
func (s *Store) SetOrderPaymentRef(ctx context.Context, orderID int64, paymentRef string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_ref = $1, updated_at = NOW() WHERE id = $2",
		paymentRef, orderID)
	return err
}

// SetOrderDeliveryRef records the provider delivery reference on an order
func (s *Store) SetOrderDeliveryRef(ctx context.Context, orderID int64, deliveryRef string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET delivery_ref = $1, updated_at = NOW() WHERE id = $2",
		deliveryRef, orderID)
	return err
}

// GetOrderByPaymentRef retrieves an order by its payment reference
func (s *Store) GetOrderByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE payment_ref = $1", paymentRef)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found for payment ref: %s", paymentRef)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByDeliveryRef retrieves an order by its delivery reference
func (s *Store) GetOrderByDeliveryRef(ctx context.Context, deliveryRef string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE delivery_ref = $1", deliveryRef)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found for delivery ref: %s", deliveryRef)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByTenantID retrieves recent orders for a tenant
func (s *Store) GetOrdersByTenantID(ctx context.Context, tenantID int64, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2", tenantID, limit)
	return orders, err
}

// CountOrders counts a tenant's orders created within [from, to), excluding
// the given statuses. This is the authoritative count the throttle uses.
func (s *Store) CountOrders(ctx context.Context, tenantID int64, from, to time.Time, excludeStatuses []string) (int, error) {
	var count int

	if len(excludeStatuses) == 0 {
		err := s.db.GetContext(ctx, &count,
			"SELECT COUNT(*) FROM orders WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3",
			tenantID, from, to)
		return count, err
	}

	query, args, err := sqlx.In(
		"SELECT COUNT(*) FROM orders WHERE tenant_id = ? AND created_at >= ? AND created_at < ? AND status NOT IN (?)",
		tenantID, from, to, excludeStatuses)
	if err != nil {
		return 0, err
	}
	query = s.db.Rebind(query)

	err = s.db.GetContext(ctx, &count, query, args...)
	return count, err
}

// CreateOrderItem creates a new order item
func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, menu_item, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return s.db.GetContext(ctx, &item.ID, query,
		item.OrderID, item.MenuItem, item.Quantity, item.UnitPrice)
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}
