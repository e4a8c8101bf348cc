package worker

import (
	"context"
	"errors"
	"testing"

	apperrors "order-analytics/internal/errors"
	"order-analytics/internal/models"
	"order-analytics/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls     int
	overrides pipeline.Overrides
	err       error
}

func (f *fakeRunner) RunWith(_ context.Context, overrides pipeline.Overrides) (*pipeline.RunResult, error) {
	f.calls++
	f.overrides = overrides
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.RunResult{RunID: "run-1"}, nil
}

type memoryLedger struct {
	seen map[string]string
	err  error
}

func (m *memoryLedger) IsEventProcessed(_ context.Context, id string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.seen[id]
	return ok, nil
}

func (m *memoryLedger) MarkEventProcessed(_ context.Context, id, eventType string) error {
	m.seen[id] = eventType
	return nil
}

func request(id string) *models.RunRequestedEvent {
	return &models.RunRequestedEvent{
		BaseEvent:   models.BaseEvent{EventID: id, EventType: models.EventTypeRunRequested},
		RequestedBy: "test",
	}
}

func TestHandleRunRequested_RunsOncePerEvent(t *testing.T) {
	runner := &fakeRunner{}
	ledger := &memoryLedger{seen: map[string]string{}}
	w := NewRunWorker(nil, runner, ledger)

	strict := true
	event := request("e1")
	event.StrictValidation = &strict

	require.NoError(t, w.HandleRunRequested(context.Background(), event))
	require.NoError(t, w.HandleRunRequested(context.Background(), event))

	assert.Equal(t, 1, runner.calls)
	require.NotNil(t, runner.overrides.StrictValidation)
	assert.True(t, *runner.overrides.StrictValidation)
	assert.Nil(t, runner.overrides.AdditionalMetrics)
	assert.Equal(t, models.EventTypeRunRequested, ledger.seen["e1"])
}

func TestHandleRunRequested_StageFailureIsHandled(t *testing.T) {
	runner := &fakeRunner{err: apperrors.NewStageError("silver", nil, apperrors.ErrValidationFailed)}
	ledger := &memoryLedger{seen: map[string]string{}}
	w := NewRunWorker(nil, runner, ledger)

	assert.NoError(t, w.HandleRunRequested(context.Background(), request("e1")))
	assert.Contains(t, ledger.seen, "e1")
}

func TestHandleRunRequested_RunInProgressCoalesces(t *testing.T) {
	runner := &fakeRunner{err: apperrors.ErrRunInProgress}
	w := NewRunWorker(nil, runner, nil)

	assert.NoError(t, w.HandleRunRequested(context.Background(), request("e1")))
}

func TestHandleRunRequested_InfrastructureErrorsRedeliver(t *testing.T) {
	runner := &fakeRunner{err: errors.New("lock backend down")}
	ledger := &memoryLedger{seen: map[string]string{}}
	w := NewRunWorker(nil, runner, ledger)

	assert.Error(t, w.HandleRunRequested(context.Background(), request("e1")))
	assert.NotContains(t, ledger.seen, "e1")

	ledger.err = errors.New("db down")
	runner.err = nil
	assert.Error(t, w.HandleRunRequested(context.Background(), request("e2")))
	assert.Equal(t, 1, runner.calls)
}
