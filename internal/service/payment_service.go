package service

import (
	"context"
	"encoding/json"
	"fmt"

	"restoflow/internal/client"
	"restoflow/internal/models"
	"restoflow/internal/retry"
	"restoflow/internal/store"
	"restoflow/internal/util"
	"restoflow/internal/webhook"

	"go.uber.org/zap"
)

// Stripe event types this service acts on
const (
	stripeEventPaymentSucceeded = "payment_intent.succeeded"
	stripeEventPaymentFailed    = "payment_intent.payment_failed"
	stripeEventChargeRefunded   = "charge.refunded"
)

// PaymentService processes Stripe webhook events and issues refunds
type PaymentService struct {
	store    *store.Store
	guard    *webhook.Guard
	stripe   *client.StripeClient
	executor *retry.Executor
	logger   *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	store *store.Store,
	guard *webhook.Guard,
	stripe *client.StripeClient,
	executor *retry.Executor,
) *PaymentService {
	return &PaymentService{
		store:    store,
		guard:    guard,
		stripe:   stripe,
		executor: executor,
		logger:   util.GetLogger(),
	}
}

// VerifySignature checks a Stripe webhook signature header
func (ps *PaymentService) VerifySignature(payload []byte, sigHeader string) error {
	return ps.stripe.VerifySignature(payload, sigHeader)
}

type stripeEventObject struct {
	ID       string `json:"id"`
	Metadata struct {
		OrderID int64 `json:"order_id,string"`
	} `json:"metadata"`
	PaymentIntent string `json:"payment_intent"`
}

// HandleStripeEvent routes one Stripe webhook delivery through the
// idempotency guard. The handler updates order state keyed off the
// payment reference, so rerunning it on the rare duplicate race is safe.
func (ps *PaymentService) HandleStripeEvent(ctx context.Context, eventID, eventType string, payload []byte) (webhook.Outcome, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleStripeEvent")
	defer span.End()

	return ps.guard.ProcessOnce(ctx, eventID, webhook.SourceStripe, eventType, func(ctx context.Context) error {
		var object stripeEventObject
		if err := json.Unmarshal(payload, &object); err != nil {
			return fmt.Errorf("failed to parse stripe event object: %w", err)
		}

		switch eventType {
		case stripeEventPaymentSucceeded:
			return ps.markOrderPaid(ctx, object)
		case stripeEventPaymentFailed:
			return ps.markOrderPaymentFailed(ctx, object)
		case stripeEventChargeRefunded:
			return ps.markOrderRefunded(ctx, object)
		default:
			ps.logger.Debug("Ignoring stripe event type", zap.String("event_type", eventType))
			return nil
		}
	})
}

func (ps *PaymentService) markOrderPaid(ctx context.Context, object stripeEventObject) error {
	orderID := object.Metadata.OrderID
	if orderID == 0 {
		ps.logger.Warn("Stripe payment event without order metadata",
			zap.String("payment_intent", object.ID))
		return nil
	}

	if err := ps.store.SetOrderPaymentRef(ctx, orderID, object.ID); err != nil {
		return fmt.Errorf("failed to record payment ref: %w", err)
	}
	if err := ps.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusPaid); err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}

	ps.logger.Info("Order paid",
		zap.Int64("order_id", orderID),
		zap.String("payment_intent", object.ID))
	return nil
}

func (ps *PaymentService) markOrderPaymentFailed(ctx context.Context, object stripeEventObject) error {
	orderID := object.Metadata.OrderID
	if orderID == 0 {
		return nil
	}

	if err := ps.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusCancelled); err != nil {
		return fmt.Errorf("failed to cancel order after payment failure: %w", err)
	}

	util.OrdersCancelledTotal.Inc()
	ps.logger.Warn("Order cancelled after payment failure",
		zap.Int64("order_id", orderID),
		zap.String("payment_intent", object.ID))
	return nil
}

func (ps *PaymentService) markOrderRefunded(ctx context.Context, object stripeEventObject) error {
	paymentRef := object.PaymentIntent
	if paymentRef == "" {
		paymentRef = object.ID
	}

	order, err := ps.store.GetOrderByPaymentRef(ctx, paymentRef)
	if err != nil {
		ps.logger.Warn("Refund event for unknown payment ref",
			zap.String("payment_ref", paymentRef),
			zap.Error(err))
		return nil
	}

	if err := ps.store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusRefunded); err != nil {
		return fmt.Errorf("failed to mark order refunded: %w", err)
	}

	ps.logger.Info("Order refunded", zap.Int64("order_id", order.ID))
	return nil
}

// RefundOrder refunds an order's payment through Stripe, retrying
// transient failures. Declines and validation errors surface immediately.
func (ps *PaymentService) RefundOrder(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.RefundOrder")
	defer span.End()

	order, err := ps.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.PaymentRef == "" {
		return fmt.Errorf("order %d has no payment to refund", orderID)
	}

	opts := retry.DefaultOptions("stripe.refund")
	opts.Predicate = retry.StripeRetryable

	var refundID string
	err = ps.executor.Do(ctx, opts, func(ctx context.Context) error {
		var opErr error
		refundID, opErr = ps.stripe.RefundPayment(ctx, order.PaymentRef, order.TotalAmount)
		return opErr
	})
	if err != nil {
		return fmt.Errorf("refund failed for order %d: %w", orderID, err)
	}

	if err := ps.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusRefunded); err != nil {
		return fmt.Errorf("refund %s issued but order %d not updated: %w", refundID, orderID, err)
	}

	ps.logger.Info("Refund issued",
		zap.Int64("order_id", orderID),
		zap.String("refund_id", refundID))
	return nil
}
