package worker

import (
	"context"
	"fmt"

	"order-analytics/internal/broker"
	apperrors "order-analytics/internal/errors"
	"order-analytics/internal/models"
	"order-analytics/internal/pipeline"
	"order-analytics/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Runner executes a pipeline run
type Runner interface {
	RunWith(ctx context.Context, overrides pipeline.Overrides) (*pipeline.RunResult, error)
}

// EventLedger remembers which events were already handled
type EventLedger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// RunWorker executes pipeline runs requested over Kafka
type RunWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	runner       Runner
	ledger       EventLedger
	logger       *zap.Logger
}

// NewRunWorker creates a new run worker. ledger may be nil, in which case
// redelivered requests run again.
func NewRunWorker(consumer *broker.Consumer, runner Runner, ledger EventLedger) *RunWorker {
	w := &RunWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		runner:       runner,
		ledger:       ledger,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnRunRequested(w.HandleRunRequested)
	return w
}

// HandleRunRequested runs the pipeline once per request event. A failed run
// still marks the event as handled since the failure has been published; an
// error is returned only when the event should be redelivered.
func (w *RunWorker) HandleRunRequested(ctx context.Context, event *models.RunRequestedEvent) error {
	ctx, span := util.StartSpan(ctx, "RunWorker.HandleRunRequested")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", event.EventID))

	if w.ledger != nil {
		processed, err := w.ledger.IsEventProcessed(ctx, event.EventID)
		if err != nil {
			return fmt.Errorf("failed to check event: %w", err)
		}
		if processed {
			w.logger.Info("Event already processed, skipping", zap.String("event_id", event.EventID))
			return nil
		}
	}

	w.logger.Info("Run requested",
		zap.String("event_id", event.EventID),
		zap.String("requested_by", event.RequestedBy))

	result, err := w.runner.RunWith(ctx, pipeline.Overrides{
		StrictValidation:  event.StrictValidation,
		AdditionalMetrics: event.AdditionalMetrics,
	})
	switch {
	case apperrors.Is(err, apperrors.ErrRunInProgress):
		// the run already executing will pick up the same inputs
		w.logger.Info("Run already in progress, request coalesced", zap.String("event_id", event.EventID))
	case err != nil:
		var stageErr *apperrors.StageError
		if !apperrors.As(err, &stageErr) {
			return fmt.Errorf("failed to run pipeline: %w", err)
		}
		w.logger.Warn("Requested run failed", zap.String("event_id", event.EventID), zap.Error(err))
	default:
		w.logger.Info("Requested run completed",
			zap.String("event_id", event.EventID),
			zap.String("run_id", result.RunID))
	}

	if w.ledger != nil {
		if err := w.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
			w.logger.Error("Failed to mark event as processed", zap.Error(err))
		}
	}
	return nil
}

// Start starts the worker
func (w *RunWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting run worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *RunWorker) Stop() error {
	w.logger.Info("Stopping run worker")
	return w.consumer.Close()
}
