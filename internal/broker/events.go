package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"klarna-checkout-service/internal/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing payment events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// PublishCheckoutInitiated publishes CheckoutInitiated event
func (ep *EventPublisher) PublishCheckoutInitiated(ctx context.Context, event *models.CheckoutInitiatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPaymentAuthorized publishes PaymentAuthorized event
func (ep *EventPublisher) PublishPaymentAuthorized(ctx context.Context, event *models.PaymentAuthorizedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPaymentCompleted publishes PaymentCompleted event
func (ep *EventPublisher) PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishReconciliationAnomaly publishes ReconciliationAnomaly event
func (ep *EventPublisher) PublishReconciliationAnomaly(ctx context.Context, event *models.ReconciliationAnomalyEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	logger                  *zap.Logger
	onCheckoutInitiated     func(context.Context, *models.CheckoutInitiatedEvent) error
	onPaymentAuthorized     func(context.Context, *models.PaymentAuthorizedEvent) error
	onPaymentCompleted      func(context.Context, *models.PaymentCompletedEvent) error
	onReconciliationAnomaly func(context.Context, *models.ReconciliationAnomalyEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler(logger *zap.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

// OnCheckoutInitiated registers a handler for CheckoutInitiated events
func (eh *EventHandler) OnCheckoutInitiated(handler func(context.Context, *models.CheckoutInitiatedEvent) error) {
	eh.onCheckoutInitiated = handler
}

// OnPaymentAuthorized registers a handler for PaymentAuthorized events
func (eh *EventHandler) OnPaymentAuthorized(handler func(context.Context, *models.PaymentAuthorizedEvent) error) {
	eh.onPaymentAuthorized = handler
}

// OnPaymentCompleted registers a handler for PaymentCompleted events
func (eh *EventHandler) OnPaymentCompleted(handler func(context.Context, *models.PaymentCompletedEvent) error) {
	eh.onPaymentCompleted = handler
}

// OnReconciliationAnomaly registers a handler for ReconciliationAnomaly events
func (eh *EventHandler) OnReconciliationAnomaly(handler func(context.Context, *models.ReconciliationAnomalyEvent) error) {
	eh.onReconciliationAnomaly = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeCheckoutInitiated:
		if eh.onCheckoutInitiated != nil {
			var event models.CheckoutInitiatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CheckoutInitiated event: %w", err)
			}
			return eh.onCheckoutInitiated(ctx, &event)
		}

	case models.EventTypePaymentAuthorized:
		if eh.onPaymentAuthorized != nil {
			var event models.PaymentAuthorizedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentAuthorized event: %w", err)
			}
			return eh.onPaymentAuthorized(ctx, &event)
		}

	case models.EventTypePaymentCompleted:
		if eh.onPaymentCompleted != nil {
			var event models.PaymentCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentCompleted event: %w", err)
			}
			return eh.onPaymentCompleted(ctx, &event)
		}

	case models.EventTypeReconciliationAnomaly:
		if eh.onReconciliationAnomaly != nil {
			var event models.ReconciliationAnomalyEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReconciliationAnomaly event: %w", err)
			}
			return eh.onReconciliationAnomaly(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
