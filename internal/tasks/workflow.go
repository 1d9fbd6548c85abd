// Package tasks runs ingestion as Temporal workflows: a manual or scheduled
// trigger starts IngestWorkflow, which wraps one ingestion run in a bounded
// fixed-delay retry policy and finalizes the run record exactly once.
package tasks

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// WorkflowName is the registered name of IngestWorkflow.
const WorkflowName = "IngestWorkflow"

// ErrTypeInvalidInput marks activity errors that must never be retried.
const ErrTypeInvalidInput = "InvalidInput"

// ErrTypeRunClosed marks an attempt against a run that is already terminal.
const ErrTypeRunClosed = "RunClosed"

// RetryPolicy is the whole-run retry policy: fixed delay, bounded attempts.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	Delay       time.Duration `json:"delay"`
	Timeout     time.Duration `json:"timeout"`
	Heartbeat   time.Duration `json:"heartbeat"`
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Delay <= 0 {
		p.Delay = time.Minute
	}
	if p.Timeout <= 0 {
		p.Timeout = 2 * time.Hour
	}
	if p.Heartbeat <= 0 {
		p.Heartbeat = 5 * time.Minute
	}
	return p
}

func (p RetryPolicy) temporal() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:        p.Delay,
		BackoffCoefficient:     1.0,
		MaximumInterval:        p.Delay,
		MaximumAttempts:        int32(p.MaxAttempts),
		NonRetryableErrorTypes: []string{ErrTypeInvalidInput, ErrTypeRunClosed},
	}
}

// RunInput starts one run. Manual triggers carry a RunID and an explicit
// window; scheduled runs carry DaysBack and take the workflow ID as run ID.
type RunInput struct {
	RunID    string          `json:"run_id,omitempty"`
	Chambers []model.Chamber `json:"chambers"`
	Start    time.Time       `json:"start,omitzero"`
	End      time.Time       `json:"end,omitzero"`
	DaysBack int             `json:"days_back,omitempty"`
	Trigger  string          `json:"trigger"`
	Policy   RetryPolicy     `json:"policy"`
}

// RunOutput is the workflow result of a run that reached succeeded or
// cancelled inside the ingestion service.
type RunOutput struct {
	RunID  string             `json:"run_id"`
	Status model.IngestStatus `json:"status"`
	Stats  model.RunStats     `json:"stats"`
}

// TrailingWindow returns the window of the last daysBack days ending on the
// calendar day of now.
func TrailingWindow(now time.Time, daysBack int) (time.Time, time.Time) {
	end := model.DateOnly(now)
	if daysBack < 1 {
		daysBack = 1
	}
	return end.AddDate(0, 0, -(daysBack - 1)), end
}

// IngestWorkflow prepares the run record, runs ingestion under the retry
// policy, and when either step gives up finalizes the run as failed with
// the last error. A run either returns a result or fails; never both.
func IngestWorkflow(ctx workflow.Context, in RunInput) (*RunOutput, error) {
	log := workflow.GetLogger(ctx)
	policy := in.Policy.withDefaults()

	if in.RunID == "" {
		in.RunID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	if in.Start.IsZero() || in.End.IsZero() {
		in.Start, in.End = TrailingWindow(workflow.Now(ctx), in.DaysBack)
	}

	var a *Activities

	prepCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy:         policy.temporal(),
	})
	err := workflow.ExecuteActivity(prepCtx, a.Prepare, in).Get(ctx, nil)
	if err == nil {
		runCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: policy.Timeout,
			HeartbeatTimeout:    policy.Heartbeat,
			WaitForCancellation: true,
			RetryPolicy:         policy.temporal(),
		})
		var out RunOutput
		err = workflow.ExecuteActivity(runCtx, a.Ingest, in).Get(ctx, &out)
		if err == nil {
			log.Info("run finished", "run_id", in.RunID, "status", out.Status, "saved", out.Stats.Saved, "errors", out.Stats.Errors)
			return &out, nil
		}
	}
	return nil, finalizeRun(ctx, in.RunID, err)
}

// finalizeRun records the run as failed, or cancelled when the workflow was
// cancelled, and returns err unchanged.
func finalizeRun(ctx workflow.Context, runID string, err error) error {
	log := workflow.GetLogger(ctx)
	status := model.IngestFailed
	if temporal.IsCanceledError(err) {
		status = model.IngestCancelled
	}
	log.Warn("run did not complete", "run_id", runID, "status", status, "error", err)

	// The workflow context may be cancelled; finalization must still run.
	finCtx, _ := workflow.NewDisconnectedContext(ctx)
	finCtx = workflow.WithActivityOptions(finCtx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 5},
	})
	var a *Activities
	fin := FinalizeInput{RunID: runID, Status: status, Error: LastError(err)}
	if ferr := workflow.ExecuteActivity(finCtx, a.Finalize, fin).Get(finCtx, nil); ferr != nil {
		log.Error("finalize run", "run_id", runID, "error", ferr)
	}
	return err
}

// LastError extracts the innermost application error message, which is the
// error the last attempt returned.
func LastError(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return "timeout: " + timeoutErr.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
