// Package errors defines the error types shared by the pipeline stages.
// Schema problems and stage aborts are fatal to a run. Computation and
// connectivity errors are recorded and the affected output degrades.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors
var (
	ErrValidationFailed = stderrors.New("data validation failed")
	ErrRunInProgress    = stderrors.New("a pipeline run is already in progress")
	ErrNoResults        = stderrors.New("no pipeline results available")
)

// SchemaError reports required columns absent from a dataset
type SchemaError struct {
	Stage   string
	Entity  string
	Columns []string
}

// NewSchemaError creates a SchemaError
func NewSchemaError(stage, entity string, missing []string) *SchemaError {
	cols := append([]string(nil), missing...)
	sort.Strings(cols)
	return &SchemaError{Stage: stage, Entity: entity, Columns: cols}
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s schema error on %s: missing required columns [%s]",
		e.Stage, e.Entity, strings.Join(e.Columns, ", "))
}

// Is matches another SchemaError for the same entity
func (e *SchemaError) Is(target error) bool {
	if se, ok := target.(*SchemaError); ok {
		return e.Entity == se.Entity && e.Stage == se.Stage
	}
	return false
}

// ComputationError wraps a failure inside a single KPI computation
type ComputationError struct {
	KPI   string
	Cause error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation of %s failed: %v", e.KPI, e.Cause)
}

// Unwrap returns the underlying cause for error wrapping support
func (e *ComputationError) Unwrap() error {
	return e.Cause
}

// ConnectivityError wraps a failure to reach an external store or broker
type ConnectivityError struct {
	Target string
	Cause  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("failed to reach %s: %v", e.Target, e.Cause)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Cause
}

// StageError is returned by the orchestrator when a stage aborts the run.
// Counts holds the record counts known at the time of failure.
type StageError struct {
	Stage  string
	Counts map[string]int
	Cause  error
}

// NewStageError creates a StageError
func NewStageError(stage string, counts map[string]int, cause error) *StageError {
	if counts == nil {
		counts = map[string]int{}
	}
	return &StageError{Stage: stage, Counts: counts, Cause: cause}
}

func (e *StageError) Error() string {
	if len(e.Counts) == 0 {
		return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Cause)
	}
	keys := make([]string, 0, len(e.Counts))
	for k := range e.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, e.Counts[k]))
	}
	return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, strings.Join(parts, " "), e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// Is, As and New are re-exported so callers need a single errors import
var (
	Is  = stderrors.Is
	As  = stderrors.As
	New = stderrors.New
)
