package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"restoflow/internal/models"
	"restoflow/internal/throttle"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetTenantByID retrieves a tenant by ID
func (s *Store) GetTenantByID(ctx context.Context, id int64) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.GetContext(ctx, &tenant, "SELECT * FROM tenants WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tenant not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// GetThrottleConfig reads a tenant's throttle configuration. Read fresh on
// every admission check so capacity changes take effect immediately.
func (s *Store) GetThrottleConfig(ctx context.Context, tenantID int64) (throttle.Config, error) {
	var row struct {
		MaxOrders     *int `db:"max_orders_per_window"`
		WindowMinutes *int `db:"throttle_window_minutes"`
	}
	err := s.db.GetContext(ctx, &row,
		"SELECT max_orders_per_window, throttle_window_minutes FROM tenants WHERE id = $1", tenantID)
	if err == sql.ErrNoRows {
		return throttle.Config{}, fmt.Errorf("tenant not found: %d", tenantID)
	}
	if err != nil {
		return throttle.Config{}, err
	}
	return throttle.Config{
		MaxOrdersPerWindow: row.MaxOrders,
		WindowMinutes:      row.WindowMinutes,
	}, nil
}
