package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"restoflow/internal/broker"
	"restoflow/internal/client"
	"restoflow/internal/models"
	"restoflow/internal/redisclient"
	"restoflow/internal/retry"
	"restoflow/internal/store"
	"restoflow/internal/util"
	"restoflow/internal/webhook"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeliveryService quotes and dispatches courier deliveries via DoorDash
// and processes DoorDash status webhooks.
type DeliveryService struct {
	store          *store.Store
	doordash       *client.DoorDashClient
	redis          *redisclient.Client
	guard          *webhook.Guard
	executor       *retry.Executor
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewDeliveryService creates a new delivery service
func NewDeliveryService(
	store *store.Store,
	doordash *client.DoorDashClient,
	redis *redisclient.Client,
	guard *webhook.Guard,
	executor *retry.Executor,
	eventPublisher *broker.EventPublisher,
) *DeliveryService {
	return &DeliveryService{
		store:          store,
		doordash:       doordash,
		redis:          redis,
		guard:          guard,
		executor:       executor,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

func externalDeliveryID(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// QuoteOrder fetches a delivery quote for an order, serving from the
// Redis cache when a fresh quote exists. Cache failures degrade to a
// provider call.
func (ds *DeliveryService) QuoteOrder(ctx context.Context, orderID int64, dropoffAddress string) (*client.Quote, error) {
	ctx, span := util.StartSpan(ctx, "DeliveryService.QuoteOrder")
	defer span.End()

	externalID := externalDeliveryID(orderID)

	if cached, err := ds.redis.GetCachedQuote(ctx, externalID); err != nil {
		ds.logger.Warn("Quote cache read failed", zap.String("external_id", externalID), zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	order, err := ds.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	tenant, err := ds.store.GetTenantByID(ctx, order.TenantID)
	if err != nil {
		return nil, err
	}

	req := &client.QuoteRequest{
		ExternalDeliveryID: externalID,
		PickupAddress:      tenant.Address,
		DropoffAddress:     dropoffAddress,
		OrderValue:         order.TotalAmount,
	}

	opts := retry.DefaultOptions("doordash.quote")
	opts.Predicate = retry.DoorDashRetryable

	var quote *client.Quote
	err = ds.executor.Do(ctx, opts, func(ctx context.Context) error {
		var opErr error
		quote, opErr = ds.doordash.QuoteDelivery(ctx, req)
		return opErr
	})
	if err != nil {
		return nil, fmt.Errorf("delivery quote failed for order %d: %w", orderID, err)
	}

	if err := ds.redis.CacheQuote(ctx, quote, redisclient.DefaultQuoteTTL); err != nil {
		ds.logger.Warn("Quote cache write failed", zap.String("external_id", externalID), zap.Error(err))
	}

	return quote, nil
}

// DispatchOrder creates a courier dispatch for an accepted order. Called
// from the delivery worker. Transient provider failures are retried; a
// permanent failure is recorded and published rather than returned, so
// the consumer does not replay a non-idempotent create-delivery call.
func (ds *DeliveryService) DispatchOrder(ctx context.Context, event *models.OrderAcceptedEvent) error {
	ctx, span := util.StartSpan(ctx, "DeliveryService.DispatchOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.DeliveryDispatchLatency.Observe(time.Since(start).Seconds())
	}()

	tenant, err := ds.store.GetTenantByID(ctx, event.TenantID)
	if err != nil {
		return err
	}

	req := &client.QuoteRequest{
		ExternalDeliveryID: externalDeliveryID(event.OrderID),
		PickupAddress:      tenant.Address,
		DropoffAddress:     event.Address,
		OrderValue:         event.TotalAmount,
	}

	opts := retry.DefaultOptions("doordash.create_delivery")
	opts.Predicate = retry.DoorDashRetryable

	var delivery *client.Delivery
	err = ds.executor.Do(ctx, opts, func(ctx context.Context) error {
		var opErr error
		delivery, opErr = ds.doordash.CreateDelivery(ctx, req)
		return opErr
	})
	if err != nil {
		util.DeliveriesFailedTotal.WithLabelValues("dispatch_error").Inc()
		ds.logger.Error("Courier dispatch failed",
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))

		failedEvent := &models.DeliveryFailedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeDeliveryFailed,
				Timestamp: time.Now(),
			},
			OrderID:  event.OrderID,
			TenantID: event.TenantID,
			Reason:   err.Error(),
		}
		if pubErr := ds.eventPublisher.PublishDeliveryFailed(ctx, failedEvent); pubErr != nil {
			ds.logger.Error("Failed to publish DeliveryFailed event", zap.Error(pubErr))
		}
		// Do not bubble the error: replaying a create-delivery call whose
		// outcome is unknown could double-dispatch a courier.
		return nil
	}

	if err := ds.store.SetOrderDeliveryRef(ctx, event.OrderID, delivery.DeliveryID); err != nil {
		return fmt.Errorf("failed to record delivery ref: %w", err)
	}
	if err := ds.store.UpdateOrderStatus(ctx, event.OrderID, models.OrderStatusDispatched); err != nil {
		return fmt.Errorf("failed to mark order dispatched: %w", err)
	}

	util.DeliveriesDispatchedTotal.Inc()
	ds.logger.Info("Courier dispatched",
		zap.Int64("order_id", event.OrderID),
		zap.String("delivery_id", delivery.DeliveryID),
		zap.String("tracking_url", delivery.TrackingURL))

	dispatchedEvent := &models.DeliveryDispatchedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeDeliveryDispatched,
			Timestamp: time.Now(),
		},
		OrderID:     event.OrderID,
		TenantID:    event.TenantID,
		DeliveryRef: delivery.DeliveryID,
	}
	if err := ds.eventPublisher.PublishDeliveryDispatched(ctx, dispatchedEvent); err != nil {
		ds.logger.Error("Failed to publish DeliveryDispatched event", zap.Error(err))
	}

	return nil
}

type doordashEventPayload struct {
	ExternalDeliveryID string `json:"external_delivery_id"`
	DeliveryID         string `json:"delivery_id"`
	DeliveryStatus     string `json:"delivery_status"`
}

// HandleDoorDashEvent routes one DoorDash status webhook through the
// idempotency guard, mapping courier status onto the order lifecycle.
func (ds *DeliveryService) HandleDoorDashEvent(ctx context.Context, eventID, eventType string, payload []byte) (webhook.Outcome, error) {
	ctx, span := util.StartSpan(ctx, "DeliveryService.HandleDoorDashEvent")
	defer span.End()

	return ds.guard.ProcessOnce(ctx, eventID, webhook.SourceDoorDash, eventType, func(ctx context.Context) error {
		var event doordashEventPayload
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("failed to parse doordash event: %w", err)
		}

		order, err := ds.store.GetOrderByDeliveryRef(ctx, event.DeliveryID)
		if err != nil {
			ds.logger.Warn("Delivery event for unknown delivery ref",
				zap.String("delivery_id", event.DeliveryID),
				zap.Error(err))
			return nil
		}

		status, ok := orderStatusForDelivery(event.DeliveryStatus)
		if !ok {
			ds.logger.Debug("Ignoring delivery status",
				zap.String("delivery_status", event.DeliveryStatus))
			return nil
		}

		if err := ds.store.UpdateOrderStatus(ctx, order.ID, status); err != nil {
			return fmt.Errorf("failed to update order %d from delivery event: %w", order.ID, err)
		}

		ds.logger.Info("Order updated from delivery event",
			zap.Int64("order_id", order.ID),
			zap.String("delivery_status", event.DeliveryStatus),
			zap.String("order_status", status))
		return nil
	})
}

func orderStatusForDelivery(deliveryStatus string) (string, bool) {
	switch deliveryStatus {
	case "delivered":
		return models.OrderStatusDelivered, true
	case "cancelled":
		return models.OrderStatusCancelled, true
	case "picked_up", "enroute_to_dropoff":
		return models.OrderStatusDispatched, true
	default:
		return "", false
	}
}
