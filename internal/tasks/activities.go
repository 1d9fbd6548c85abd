package tasks

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/extract"
	"github.com/sells-group/disclosure-cli/internal/ingest"
	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/resilience"
	"github.com/sells-group/disclosure-cli/internal/resources"
	"github.com/sells-group/disclosure-cli/internal/store"
)

// RunRecorder is the run-record access the activities need.
type RunRecorder interface {
	CreateRun(ctx context.Context, run *model.IngestionRun) error
	AbortRun(ctx context.Context, runID string, status model.IngestStatus, errMsg string) (bool, error)
}

// Runner executes one ingestion run.
type Runner interface {
	Run(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// Env is what one activity invocation works with. It is built once per
// worker process from the shared resources.
type Env struct {
	Runs    RunRecorder
	Service Runner
}

// EnvFunc returns the process Env, building it on first use.
type EnvFunc func(ctx context.Context) (*Env, error)

// RunsFunc returns run-record access without starting the browser.
type RunsFunc func(ctx context.Context) (RunRecorder, error)

// Activities are the Temporal activities of IngestWorkflow.
type Activities struct {
	env      EnvFunc
	runs     RunsFunc
	recycler *Recycler
	metrics  Observer
}

// Observer is notified of run outcomes.
type Observer interface {
	RunFinished(status model.IngestStatus, stats model.RunStats)
	RunFailedAttempt(chambers []model.Chamber, err error)
}

// NewActivities creates the activities. Prepare and Finalize use runs; a
// nil runs falls back to env. recycler and obs may be nil.
func NewActivities(env EnvFunc, runs RunsFunc, recycler *Recycler, obs Observer) *Activities {
	if runs == nil {
		runs = func(ctx context.Context) (RunRecorder, error) {
			e, err := env(ctx)
			if err != nil {
				return nil, err
			}
			return e.Runs, nil
		}
	}
	return &Activities{env: env, runs: runs, recycler: recycler, metrics: obs}
}

// ExtractorFactory builds the chamber extractors over the shared browser.
type ExtractorFactory func(driver extract.Driver) ([]extract.Extractor, error)

// ResourceEnv returns an EnvFunc backed by the process-wide resource
// manager. The store and service are created once, on the first activity
// that runs in the process, over the pooled connections and the shared
// browser.
func ResourceEnv(mgr *resources.Manager, extractors ExtractorFactory, cfg ingest.Config, opts ...ingest.Option) EnvFunc {
	var (
		mu  sync.Mutex
		env *Env
	)
	return func(ctx context.Context) (*Env, error) {
		mu.Lock()
		defer mu.Unlock()
		if env != nil {
			return env, nil
		}
		res, err := mgr.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		xs, err := extractors(res.Browser)
		if err != nil {
			return nil, eris.Wrap(err, "tasks: build extractors")
		}
		st := store.NewPostgres(res.Pool)
		env = &Env{Runs: st, Service: ingest.NewService(st, xs, cfg, opts...)}
		return env, nil
	}
}

// ResourceRuns returns a RunsFunc over the manager's pool only, so run
// records can be written while the browser is unavailable.
func ResourceRuns(mgr *resources.Manager) RunsFunc {
	return func(ctx context.Context) (RunRecorder, error) {
		pool, err := mgr.AcquirePool(ctx)
		if err != nil {
			return nil, err
		}
		return store.NewPostgres(pool), nil
	}
}

// FinalizeInput finalizes a run the workflow could not complete.
type FinalizeInput struct {
	RunID  string             `json:"run_id"`
	Status model.IngestStatus `json:"status"`
	Error  string             `json:"error,omitempty"`
}

// Prepare records the run as queued if the trigger did not already do so.
// Scheduled runs have no record until this point.
func (a *Activities) Prepare(ctx context.Context, in RunInput) error {
	if err := validateInput(in); err != nil {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
	}
	runs, err := a.runs(ctx)
	if err != nil {
		return err
	}
	return runs.CreateRun(ctx, &model.IngestionRun{
		ID:        in.RunID,
		Chambers:  in.Chambers,
		StartDate: in.Start,
		EndDate:   in.End,
		Status:    model.IngestQueued,
		Trigger:   in.Trigger,
	})
}

// Ingest runs one attempt. Infrastructure failures are returned so the
// retry policy applies; a run already finalized elsewhere is not retried.
func (a *Activities) Ingest(ctx context.Context, in RunInput) (*RunOutput, error) {
	info := activity.GetInfo(ctx)
	log := zap.L().With(
		zap.String("component", "tasks"),
		zap.String("run_id", in.RunID),
		zap.Int32("attempt", info.Attempt),
	)

	if err := validateInput(in); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
	}

	env, err := a.env(ctx)
	if err != nil {
		a.failedAttempt(in, err)
		log.Warn("resources unavailable", zap.Error(err))
		return nil, err
	}

	req := ingest.Request{
		RunID:    in.RunID,
		Chambers: in.Chambers,
		Window:   extract.Window{Start: in.Start, End: in.End},
	}
	// The heartbeat details carry the counters so a timed-out attempt
	// shows progress in the Temporal UI.
	req.OnProgress = func(_ context.Context, stats model.RunStats) {
		activity.RecordHeartbeat(ctx, stats)
	}

	res, err := env.Service.Run(ctx, req)
	if err != nil {
		a.failedAttempt(in, err)
		if errors.Is(err, store.ErrRunClosed) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeRunClosed, err)
		}
		log.Warn("attempt failed", zap.Error(err), zap.String("error_class", resilience.ClassifyError(err)))
		return nil, err
	}

	if a.recycler != nil {
		a.recycler.Complete()
	}
	if a.metrics != nil {
		a.metrics.RunFinished(res.Status, res.Stats)
	}
	return &RunOutput{RunID: res.RunID, Status: res.Status, Stats: res.Stats}, nil
}

// Finalize marks a run failed or cancelled after the workflow gave up on
// it. A run that is already terminal is left alone.
func (a *Activities) Finalize(ctx context.Context, in FinalizeInput) error {
	if in.Status != model.IngestFailed && in.Status != model.IngestCancelled {
		return temporal.NewNonRetryableApplicationError("finalize requires failed or cancelled", ErrTypeInvalidInput, nil)
	}
	runs, err := a.runs(ctx)
	if err != nil {
		return err
	}
	updated, err := runs.AbortRun(ctx, in.RunID, in.Status, in.Error)
	if err != nil {
		return err
	}
	if updated && a.metrics != nil {
		a.metrics.RunFinished(in.Status, model.RunStats{})
	}
	zap.L().Info("run finalized by workflow",
		zap.String("component", "tasks"),
		zap.String("run_id", in.RunID),
		zap.String("status", string(in.Status)),
		zap.Bool("updated", updated),
	)
	return nil
}

func (a *Activities) failedAttempt(in RunInput, err error) {
	if a.metrics != nil {
		a.metrics.RunFailedAttempt(in.Chambers, err)
	}
}

func validateInput(in RunInput) error {
	if in.RunID == "" {
		return eris.New("tasks: run id is required")
	}
	if len(in.Chambers) == 0 {
		return eris.New("tasks: at least one chamber is required")
	}
	for _, c := range in.Chambers {
		if !c.Valid() {
			return eris.Errorf("tasks: unknown chamber %q", c)
		}
	}
	if in.End.Before(in.Start) {
		return eris.Errorf("tasks: end %s is before start %s", in.End.Format("2006-01-02"), in.Start.Format("2006-01-02"))
	}
	return nil
}
