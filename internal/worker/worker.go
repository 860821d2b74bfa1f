package worker

import (
	"context"

	"restoflow/internal/broker"
	"restoflow/internal/models"
	"restoflow/internal/service"
	"restoflow/internal/util"
	"restoflow/internal/webhook"

	"go.uber.org/zap"
)

// DeliveryWorker consumes OrderAccepted events and dispatches couriers.
// Dispatch is guarded per event id so a redelivered or replayed event
// never creates a second courier request.
type DeliveryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewDeliveryWorker creates a new delivery worker
func NewDeliveryWorker(
	consumer *broker.Consumer,
	deliveryService *service.DeliveryService,
	guard *webhook.Guard,
) *DeliveryWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnOrderAccepted(func(ctx context.Context, event *models.OrderAcceptedEvent) error {
		_, err := guard.ProcessOnce(ctx, event.EventID, webhook.SourceInternal, event.EventType,
			func(ctx context.Context) error {
				return deliveryService.DispatchOrder(ctx, event)
			})
		return err
	})

	return &DeliveryWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.NamedLogger("delivery-worker"),
	}
}

// Start starts the worker
func (w *DeliveryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting delivery worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *DeliveryWorker) Stop() error {
	w.logger.Info("Stopping delivery worker")
	return w.consumer.Close()
}
