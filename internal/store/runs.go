package store

import (
	"context"
	"fmt"

	"order-analytics/internal/models"
)

// RecordRun stores the audit summary of a pipeline run
func (s *Store) RecordRun(ctx context.Context, run models.RunSummary) error {
	query := s.db.Rebind(`
		INSERT INTO pipeline_runs (run_id, status, stage, started_at, finished_at, customers, orders, mismatches, error_detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		run.RunID, run.Status, run.Stage, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Customers, run.Orders, run.Mismatches, run.ErrorDetail)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return nil
}

// ListRecentRuns returns the latest runs, newest first
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	runs := []models.RunSummary{}
	err := s.db.SelectContext(ctx, &runs, s.db.Rebind(`
		SELECT run_id, status, stage, started_at, finished_at, customers, orders, mismatches, error_detail
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		s.db.Rebind("SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = ?)"), eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind("INSERT INTO processed_events (event_id, event_type) VALUES (?, ?) ON CONFLICT (event_id) DO NOTHING"),
		eventID, eventType)
	return err
}
