package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/sells-group/disclosure-cli/internal/model"
)

var fixedNow = time.Date(2024, 3, 19, 14, 0, 0, 0, time.UTC)

func newTestOrchestrator(c client.Client, runs *memRuns) *Orchestrator {
	o := NewOrchestrator(c, runs, nil, "disclosure-ingest", RetryPolicy{MaxAttempts: 3, Delay: time.Minute})
	o.now = func() time.Time { return fixedNow }
	o.newID = func() string { return "run-1" }
	return o
}

func TestTrigger_StartsWorkflowWithRunID(t *testing.T) {
	c := &mocks.Client{}
	runs := newMemRuns()
	c.On("ExecuteWorkflow", mock.Anything,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
			return o.ID == "run-1" && o.TaskQueue == "disclosure-ingest"
		}),
		WorkflowName,
		mock.MatchedBy(func(in RunInput) bool {
			return in.RunID == "run-1" && in.DaysBack == 0 &&
				in.Start.Equal(time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)) &&
				in.End.Equal(time.Date(2024, 3, 19, 0, 0, 0, 0, time.UTC)) &&
				len(in.Chambers) == 2 && in.Policy.MaxAttempts == 3
		}),
	).Return(&mocks.WorkflowRun{}, nil).Once()

	o := newTestOrchestrator(c, runs)
	id, err := o.Trigger(context.Background(), TriggerRequest{Chamber: "both", DaysBack: 7})
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	run, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.IngestQueued, run.Status)
	assert.Equal(t, model.TriggerManual, run.Trigger)
	c.AssertExpectations(t)
}

func TestTrigger_ExplicitRange(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, WorkflowName, mock.Anything).
		Return(&mocks.WorkflowRun{}, nil)

	o := newTestOrchestrator(c, newMemRuns())
	_, err := o.Trigger(context.Background(), TriggerRequest{
		Chamber: "a",
		Start:   time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC),
		End:     time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	run, _ := o.Status(context.Background(), "run-1")
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), run.StartDate)
	assert.Equal(t, []model.Chamber{model.ChamberA}, run.Chambers)
}

func TestTrigger_InvalidInputRejectedBeforeEnqueue(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	tests := []struct {
		name string
		req  TriggerRequest
		want string
	}{
		{"unknown chamber", TriggerRequest{Chamber: "c", DaysBack: 1}, "unknown chamber"},
		{"nothing", TriggerRequest{Chamber: "a"}, "either days_back or both"},
		{"only start", TriggerRequest{Chamber: "a", Start: day(1)}, "either days_back or both"},
		{"both forms", TriggerRequest{Chamber: "a", DaysBack: 2, Start: day(1), End: day(2)}, "mutually exclusive"},
		{"negative", TriggerRequest{Chamber: "a", DaysBack: -1}, "must be positive"},
		{"end before start", TriggerRequest{Chamber: "b", Start: day(5), End: day(4)}, "end_date is before start_date"},
		{"future", TriggerRequest{Chamber: "b", Start: day(18), End: day(25)}, "in the future"},
		{"too long", TriggerRequest{Chamber: "b", DaysBack: MaxWindowDays + 1}, "at most"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &mocks.Client{}
			runs := newMemRuns()
			o := newTestOrchestrator(c, runs)

			_, err := o.Trigger(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, runs.runs)
			c.AssertNotCalled(t, "ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestTrigger_EnqueueFailureAbortsRun(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, WorkflowName, mock.Anything).
		Return(nil, errors.New("temporal unavailable"))
	runs := newMemRuns()

	o := newTestOrchestrator(c, runs)
	_, err := o.Trigger(context.Background(), TriggerRequest{Chamber: "a", DaysBack: 1})
	require.Error(t, err)

	run, _ := runs.GetRun(context.Background(), "run-1")
	assert.Equal(t, model.IngestFailed, run.Status)
	assert.Contains(t, run.Error, "enqueue failed")
}

func TestStatus_NotFound(t *testing.T) {
	o := newTestOrchestrator(&mocks.Client{}, newMemRuns())
	_, err := o.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActive(t *testing.T) {
	runs := newMemRuns()
	ctx := context.Background()
	require.NoError(t, runs.CreateRun(ctx, &model.IngestionRun{ID: "q", Status: model.IngestQueued}))
	require.NoError(t, runs.CreateRun(ctx, &model.IngestionRun{ID: "r", Status: model.IngestRunning}))
	require.NoError(t, runs.CreateRun(ctx, &model.IngestionRun{ID: "done", Status: model.IngestSucceeded}))

	active, err := newTestOrchestrator(&mocks.Client{}, runs).Active(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestCancel(t *testing.T) {
	runs := newMemRuns()
	ctx := context.Background()
	require.NoError(t, runs.CreateRun(ctx, &model.IngestionRun{ID: "run-1", Status: model.IngestRunning}))

	c := &mocks.Client{}
	c.On("CancelWorkflow", mock.Anything, "run-1", "").Return(nil).Once()

	require.NoError(t, newTestOrchestrator(c, runs).Cancel(ctx, "run-1"))
	run, _ := runs.GetRun(ctx, "run-1")
	assert.True(t, run.CancelRequested)
	c.AssertExpectations(t)
}

func TestCancel_WorkflowGone(t *testing.T) {
	runs := newMemRuns()
	ctx := context.Background()
	require.NoError(t, runs.CreateRun(ctx, &model.IngestionRun{ID: "run-1", Status: model.IngestQueued}))

	c := &mocks.Client{}
	c.On("CancelWorkflow", mock.Anything, "run-1", "").Return(serviceerror.NewNotFound("workflow not found"))

	assert.NoError(t, newTestOrchestrator(c, runs).Cancel(ctx, "run-1"))
}

func TestCancel_TerminalAndMissing(t *testing.T) {
	runs := newMemRuns()
	ctx := context.Background()
	require.NoError(t, runs.CreateRun(ctx, &model.IngestionRun{ID: "done", Status: model.IngestSucceeded}))
	c := &mocks.Client{}
	o := newTestOrchestrator(c, runs)

	assert.ErrorIs(t, o.Cancel(ctx, "done"), ErrNotActive)
	assert.ErrorIs(t, o.Cancel(ctx, "missing"), ErrNotFound)
	c.AssertNotCalled(t, "CancelWorkflow", mock.Anything, mock.Anything, mock.Anything)
}

func TestScheduled_NoScheduler(t *testing.T) {
	out, err := newTestOrchestrator(&mocks.Client{}, newMemRuns()).Scheduled(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
}
