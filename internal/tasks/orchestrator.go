package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/store"
)

// MaxWindowDays bounds the date range of a manual trigger.
const MaxWindowDays = 366

// Errors returned to API callers.
var (
	ErrInvalidInput = eris.New("tasks: invalid input")
	ErrNotFound     = eris.New("tasks: run not found")
	ErrNotActive    = eris.New("tasks: run is not active")
)

// TriggerRequest is a caller's request for a manual run. Either DaysBack or
// both Start and End must be set.
type TriggerRequest struct {
	Chamber  string
	DaysBack int
	Start    time.Time
	End      time.Time
}

// RunStore is the run-record access the orchestrator needs.
type RunStore interface {
	CreateRun(ctx context.Context, run *model.IngestionRun) error
	GetRun(ctx context.Context, runID string) (*model.IngestionRun, error)
	ListActiveRuns(ctx context.Context) ([]model.IngestionRun, error)
	RequestCancel(ctx context.Context, runID string) (bool, error)
	AbortRun(ctx context.Context, runID string, status model.IngestStatus, errMsg string) (bool, error)
}

// Orchestrator is the trigger/status/cancel facade over Temporal and the
// run store.
type Orchestrator struct {
	client    client.Client
	runs      RunStore
	scheduler *Scheduler
	taskQueue string
	policy    RetryPolicy
	now       func() time.Time
	newID     func() string
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(c client.Client, runs RunStore, scheduler *Scheduler, taskQueue string, policy RetryPolicy) *Orchestrator {
	return &Orchestrator{
		client:    c,
		runs:      runs,
		scheduler: scheduler,
		taskQueue: taskQueue,
		policy:    policy,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Window validates a trigger request against the orchestrator's clock.
func (o *Orchestrator) Window(req TriggerRequest) ([]model.Chamber, time.Time, time.Time, error) {
	return ResolveWindow(req, o.now())
}

// ResolveWindow validates a trigger request and returns the chambers and the
// calendar window it covers. A days_back window ends on today's date.
func ResolveWindow(req TriggerRequest, now time.Time) ([]model.Chamber, time.Time, time.Time, error) {
	chambers, err := model.ParseChamberSelector(req.Chamber)
	if err != nil {
		return nil, time.Time{}, time.Time{}, eris.Wrap(ErrInvalidInput, err.Error())
	}

	hasRange := !req.Start.IsZero() || !req.End.IsZero()
	switch {
	case req.DaysBack != 0 && hasRange:
		return nil, time.Time{}, time.Time{}, eris.Wrap(ErrInvalidInput, "days_back and start/end are mutually exclusive")
	case req.DaysBack < 0:
		return nil, time.Time{}, time.Time{}, eris.Wrap(ErrInvalidInput, "days_back must be positive")
	case req.DaysBack > 0:
		if req.DaysBack > MaxWindowDays {
			return nil, time.Time{}, time.Time{}, eris.Wrapf(ErrInvalidInput, "days_back must be at most %d", MaxWindowDays)
		}
		start, end := TrailingWindow(now, req.DaysBack)
		return chambers, start, end, nil
	case req.Start.IsZero() || req.End.IsZero():
		return nil, time.Time{}, time.Time{}, eris.Wrap(ErrInvalidInput, "either days_back or both start_date and end_date are required")
	}

	start, end := model.DateOnly(req.Start), model.DateOnly(req.End)
	if end.Before(start) {
		return nil, time.Time{}, time.Time{}, eris.Wrap(ErrInvalidInput, "end_date is before start_date")
	}
	if end.After(model.DateOnly(now)) {
		return nil, time.Time{}, time.Time{}, eris.Wrap(ErrInvalidInput, "end_date is in the future")
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > MaxWindowDays {
		return nil, time.Time{}, time.Time{}, eris.Wrapf(ErrInvalidInput, "window of %d days exceeds %d", days, MaxWindowDays)
	}
	return chambers, start, end, nil
}

// Trigger validates req, records a queued run, and starts its workflow. It
// returns the run ID without waiting for the run.
func (o *Orchestrator) Trigger(ctx context.Context, req TriggerRequest) (string, error) {
	chambers, start, end, err := o.Window(req)
	if err != nil {
		return "", err
	}

	runID := o.newID()
	run := &model.IngestionRun{
		ID:        runID,
		Chambers:  chambers,
		StartDate: start,
		EndDate:   end,
		Status:    model.IngestQueued,
		Trigger:   model.TriggerManual,
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		return "", err
	}

	in := RunInput{
		RunID:    runID,
		Chambers: chambers,
		Start:    start,
		End:      end,
		Trigger:  model.TriggerManual,
		Policy:   o.policy,
	}
	_, err = o.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                    runID,
		TaskQueue:             o.taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, WorkflowName, in)
	if err != nil {
		if _, aerr := o.runs.AbortRun(context.WithoutCancel(ctx), runID, model.IngestFailed, "enqueue failed: "+err.Error()); aerr != nil {
			zap.L().Error("tasks: abort unqueued run", zap.String("run_id", runID), zap.Error(aerr))
		}
		return "", eris.Wrapf(err, "tasks: start workflow %s", runID)
	}

	zap.L().Info("run triggered",
		zap.String("component", "tasks"),
		zap.String("run_id", runID),
		zap.Strings("chambers", chamberNames(chambers)),
		zap.Time("start", start),
		zap.Time("end", end),
	)
	return runID, nil
}

// Status returns a run's state and counters.
func (o *Orchestrator) Status(ctx context.Context, runID string) (*model.IngestionRun, error) {
	run, err := o.runs.GetRun(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return run, err
}

// Active returns queued and running runs.
func (o *Orchestrator) Active(ctx context.Context) ([]model.IngestionRun, error) {
	return o.runs.ListActiveRuns(ctx)
}

// Scheduled returns the recurring jobs and their next firing times.
func (o *Orchestrator) Scheduled(ctx context.Context) ([]ScheduledRun, error) {
	if o.scheduler == nil {
		return []ScheduledRun{}, nil
	}
	return o.scheduler.List(ctx)
}

// Cancel requests cooperative cancellation of an active run. The running
// attempt stops at the next filing boundary; a queued run never starts.
func (o *Orchestrator) Cancel(ctx context.Context, runID string) error {
	ok, err := o.runs.RequestCancel(ctx, runID)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := o.Status(ctx, runID); err != nil {
			return err
		}
		return eris.Wrapf(ErrNotActive, "run %s", runID)
	}

	if err := o.client.CancelWorkflow(ctx, runID, ""); err != nil && !isNotFound(err) {
		return eris.Wrapf(err, "tasks: cancel workflow %s", runID)
	}
	zap.L().Info("run cancel requested", zap.String("component", "tasks"), zap.String("run_id", runID))
	return nil
}

func chamberNames(cs []model.Chamber) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}
