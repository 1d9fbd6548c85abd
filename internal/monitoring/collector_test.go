package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testNow = time.Date(2024, 3, 19, 12, 0, 0, 0, time.UTC)

type mockRuns struct {
	runs    []model.IngestionRun
	listErr error
	filters []store.RunFilter
}

func (m *mockRuns) ListRuns(_ context.Context, filter store.RunFilter) ([]model.IngestionRun, error) {
	m.filters = append(m.filters, filter)
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.IngestionRun
	for _, r := range m.runs {
		if !filter.Since.IsZero() && r.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func run(id string, status model.IngestStatus, age time.Duration, stats model.RunStats) model.IngestionRun {
	return model.IngestionRun{ID: id, Status: status, CreatedAt: testNow.Add(-age), Stats: stats}
}

func newTestCollector(runs RunLister) *Collector {
	c := NewCollector(runs)
	c.now = func() time.Time { return testNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	runs := &mockRuns{runs: []model.IngestionRun{
		run("ok-1", model.IngestSucceeded, time.Hour, model.RunStats{TotalSeen: 10, Saved: 8, Errors: 2}),
		run("ok-2", model.IngestSucceeded, 2*time.Hour, model.RunStats{TotalSeen: 20, Saved: 5, SkippedDuplicate: 15}),
		run("bad", model.IngestFailed, 3*time.Hour, model.RunStats{}),
		run("stop", model.IngestCancelled, 4*time.Hour, model.RunStats{TotalSeen: 4, Saved: 4}),
		run("live", model.IngestRunning, 5*time.Minute, model.RunStats{TotalSeen: 100, Errors: 100}),
		run("old", model.IngestFailed, 48*time.Hour, model.RunStats{}),
	}}

	snap, err := newTestCollector(runs).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, testNow.Add(-24*time.Hour), runs.filters[0].Since)
	assert.Equal(t, 5, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsSucceeded)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsCancelled)
	assert.Equal(t, 1, snap.RunsActive)
	assert.InDelta(t, 1.0/3.0, snap.RunFailRate, 1e-9)
	assert.Equal(t, []string{"bad"}, snap.FailedRunIDs)

	// The running run's counters are not final and are excluded.
	assert.Equal(t, 34, snap.RecordsSeen)
	assert.Equal(t, 17, snap.RecordsSaved)
	assert.Equal(t, 15, snap.RecordsSkipped)
	assert.Equal(t, 2, snap.RecordsErrored)
	assert.Equal(t, "ok-1", snap.WorstRunID)
	assert.InDelta(t, 0.2, snap.WorstRunErrorRatio, 1e-9)
}

func TestCollector_SmallRunsIgnoredForRatio(t *testing.T) {
	runs := &mockRuns{runs: []model.IngestionRun{
		run("tiny", model.IngestSucceeded, time.Hour, model.RunStats{TotalSeen: 3, Errors: 3}),
	}}
	snap, err := newTestCollector(runs).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Empty(t, snap.WorstRunID)
	assert.Equal(t, 1.0, snap.ErrorRatio)
}

func TestCollector_Empty(t *testing.T) {
	snap, err := newTestCollector(&mockRuns{}).Collect(context.Background(), 6)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.RunFailRate)
	assert.Zero(t, snap.ErrorRatio)
	assert.Equal(t, 6, snap.LookbackHours)
}

func TestCollector_ListError(t *testing.T) {
	_, err := newTestCollector(&mockRuns{listErr: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}
