package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"restoflow/internal/models"
	"restoflow/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderAccepted publishes an OrderAccepted event
func (ep *EventPublisher) PublishOrderAccepted(ctx context.Context, event *models.OrderAcceptedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishOrderCancelled publishes an OrderCancelled event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishDeliveryDispatched publishes a DeliveryDispatched event
func (ep *EventPublisher) PublishDeliveryDispatched(ctx context.Context, event *models.DeliveryDispatchedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishDeliveryFailed publishes a DeliveryFailed event
func (ep *EventPublisher) PublishDeliveryFailed(ctx context.Context, event *models.DeliveryFailedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes consumed events to registered handlers
type EventHandler struct {
	logger          *zap.Logger
	onOrderAccepted func(context.Context, *models.OrderAcceptedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.NamedLogger("event-handler")}
}

// OnOrderAccepted registers a handler for OrderAccepted events
func (eh *EventHandler) OnOrderAccepted(handler func(context.Context, *models.OrderAcceptedEvent) error) {
	eh.onOrderAccepted = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderAccepted:
		if eh.onOrderAccepted != nil {
			var event models.OrderAcceptedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderAccepted event: %w", err)
			}
			return eh.onOrderAccepted(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
