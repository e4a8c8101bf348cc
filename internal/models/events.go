package models

import "time"

// Event types
const (
	EventTypeRunRequested = "PIPELINE_RUN_REQUESTED"
	EventTypeRunCompleted = "PIPELINE_RUN_COMPLETED"
	EventTypeRunFailed    = "PIPELINE_RUN_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// RunRequestedEvent asks a worker to execute a pipeline run
type RunRequestedEvent struct {
	BaseEvent
	RequestedBy       string `json:"requested_by"`
	StrictValidation  *bool  `json:"strict_validation,omitempty"`
	AdditionalMetrics *bool  `json:"additional_metrics,omitempty"`
}

// RunCompletedEvent is published after a successful run
type RunCompletedEvent struct {
	BaseEvent
	RunID           string         `json:"run_id"`
	DurationSeconds float64        `json:"duration_seconds"`
	Customers       int            `json:"customers"`
	Orders          int            `json:"orders"`
	KPIRows         map[string]int `json:"kpi_rows"`
	DegradedKPIs    []string       `json:"degraded_kpis,omitempty"`
	Mismatches      int            `json:"crosscheck_mismatches"`
}

// RunFailedEvent is published when a stage aborts the run
type RunFailedEvent struct {
	BaseEvent
	RunID  string         `json:"run_id"`
	Stage  string         `json:"stage"`
	Reason string         `json:"reason"`
	Counts map[string]int `json:"counts,omitempty"`
}

// RunSummary is the audit record of one run
type RunSummary struct {
	RunID       string    `db:"run_id" json:"run_id"`
	Status      string    `db:"status" json:"status"`
	Stage       string    `db:"stage" json:"stage"`
	StartedAt   time.Time `db:"started_at" json:"started_at"`
	FinishedAt  time.Time `db:"finished_at" json:"finished_at"`
	Customers   int       `db:"customers" json:"customers"`
	Orders      int       `db:"orders" json:"orders"`
	Mismatches  int       `db:"mismatches" json:"mismatches"`
	ErrorDetail string    `db:"error_detail" json:"error_detail"`
}

// Run statuses
const (
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
