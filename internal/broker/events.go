package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"order-analytics/internal/models"
	"order-analytics/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing pipeline events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishRunRequested publishes RunRequested event
func (ep *EventPublisher) PublishRunRequested(ctx context.Context, event *models.RunRequestedEvent) error {
	return ep.producer.PublishEvent(ctx, "request-"+event.EventID, event)
}

// PublishRunCompleted publishes RunCompleted event
func (ep *EventPublisher) PublishRunCompleted(ctx context.Context, event *models.RunCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, "run-"+event.RunID, event)
}

// PublishRunFailed publishes RunFailed event
func (ep *EventPublisher) PublishRunFailed(ctx context.Context, event *models.RunFailedEvent) error {
	return ep.producer.PublishEvent(ctx, "run-"+event.RunID, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onRunRequested func(context.Context, *models.RunRequestedEvent) error
	logger         *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnRunRequested registers a handler for RunRequested events
func (eh *EventHandler) OnRunRequested(handler func(context.Context, *models.RunRequestedEvent) error) {
	eh.onRunRequested = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Info("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeRunRequested:
		if eh.onRunRequested != nil {
			var event models.RunRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal RunRequested event: %w", err)
			}
			return eh.onRunRequested(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
