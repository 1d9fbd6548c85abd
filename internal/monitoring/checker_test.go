package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/disclosure-cli/internal/config"
	"github.com/sells-group/disclosure-cli/internal/model"
)

func TestChecker_Check_SendsAlerts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	runs := &mockRuns{runs: []model.IngestionRun{
		run("bad", model.IngestFailed, time.Hour, model.RunStats{}),
	}}
	cfg := testMonitoringConfig(srv.URL)
	checker := NewChecker(newTestCollector(runs), NewAlerter(cfg), cfg)

	alerts, err := checker.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailed, alerts[0].Type)
	assert.Equal(t, int32(1), hits.Load())
}

func TestChecker_Check_CollectError(t *testing.T) {
	cfg := testMonitoringConfig("")
	checker := NewChecker(newTestCollector(&mockRuns{listErr: errors.New("db down")}), NewAlerter(cfg), cfg)
	_, err := checker.Check(context.Background())
	assert.Error(t, err)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackHours: 24, FailureRateThreshold: 0.1}
	checker := NewChecker(newTestCollector(&mockRuns{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(newTestCollector(&mockRuns{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}
