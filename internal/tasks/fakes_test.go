package tasks

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/ingest"
	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// memRuns is an in-memory run store with the same status guards as the
// Postgres store.
type memRuns struct {
	mu        sync.Mutex
	runs      map[string]*model.IngestionRun
	createErr error
}

func newMemRuns() *memRuns {
	return &memRuns{runs: map[string]*model.IngestionRun{}}
}

func (m *memRuns) CreateRun(_ context.Context, run *model.IngestionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.runs[run.ID]; !ok {
		cp := *run
		m.runs[run.ID] = &cp
	}
	return nil
}

func (m *memRuns) GetRun(_ context.Context, id string) (*model.IngestionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRuns) ListActiveRuns(context.Context) ([]model.IngestionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.IngestionRun
	for _, r := range m.runs {
		if !r.Status.Terminal() {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRuns) RequestCancel(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || r.Status.Terminal() {
		return false, nil
	}
	r.CancelRequested = true
	return true, nil
}

func (m *memRuns) AbortRun(_ context.Context, id string, status model.IngestStatus, errMsg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || r.Status.Terminal() {
		return false, nil
	}
	r.Status = status
	r.Error = errMsg
	return true, nil
}

type fakeRunner struct {
	res      *ingest.Result
	err      error
	requests []ingest.Request
}

func (f *fakeRunner) Run(ctx context.Context, req ingest.Request) (*ingest.Result, error) {
	f.requests = append(f.requests, req)
	if req.OnProgress != nil {
		req.OnProgress(ctx, model.RunStats{TotalSeen: 1})
	}
	return f.res, f.err
}

type recordingObserver struct {
	mu       sync.Mutex
	finished []model.IngestStatus
	failed   int
}

func (o *recordingObserver) RunFinished(status model.IngestStatus, _ model.RunStats) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, status)
}

func (o *recordingObserver) RunFailedAttempt([]model.Chamber, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed++
}

func staticEnv(runs RunRecorder, runner Runner) EnvFunc {
	return func(context.Context) (*Env, error) {
		return &Env{Runs: runs, Service: runner}, nil
	}
}
