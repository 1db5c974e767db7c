package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events. Events are keyed by
// product id, coupons by user id.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func productKey(productID string) string {
	return "product-" + productID
}

func (ep *EventPublisher) PublishProductCreated(ctx context.Context, event *models.ProductCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, productKey(event.ProductID), event.EventType, event)
}

func (ep *EventPublisher) PublishStockChanged(ctx context.Context, event *models.StockChangedEvent) error {
	return ep.producer.PublishEvent(ctx, productKey(event.ProductID), event.EventType, event)
}

func (ep *EventPublisher) PublishDiscountUpserted(ctx context.Context, event *models.DiscountUpsertedEvent) error {
	return ep.producer.PublishEvent(ctx, productKey(event.ProductID), event.EventType, event)
}

func (ep *EventPublisher) PublishCouponIssued(ctx context.Context, event *models.CouponIssuedEvent) error {
	return ep.producer.PublishEvent(ctx, "user-"+event.UserID, event.EventType, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onProductCreated func(context.Context, *models.ProductCreatedEvent) error
	onStockChanged   func(context.Context, *models.StockChangedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

func (eh *EventHandler) OnProductCreated(handler func(context.Context, *models.ProductCreatedEvent) error) {
	eh.onProductCreated = handler
}

func (eh *EventHandler) OnStockChanged(handler func(context.Context, *models.StockChangedEvent) error) {
	eh.onStockChanged = handler
}

// HandleMessage routes messages to appropriate handlers. Event types without
// a registered handler are acknowledged and skipped.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	logger := util.GetLogger()
	logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeProductCreated:
		if eh.onProductCreated != nil {
			var event models.ProductCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ProductCreated event: %w", err)
			}
			return eh.onProductCreated(ctx, &event)
		}

	case models.EventTypeStockChanged:
		if eh.onStockChanged != nil {
			var event models.StockChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal StockChanged event: %w", err)
			}
			return eh.onStockChanged(ctx, &event)
		}

	default:
		logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
