package monitoring

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/disclosure-cli/internal/extract"
	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/resilience"
)

func TestMetrics_RunFinished(t *testing.T) {
	m := NewMetrics()
	m.RunFinished(model.IngestSucceeded, model.RunStats{TotalSeen: 10, Saved: 8, Errors: 2})
	m.RunFinished(model.IngestSucceeded, model.RunStats{TotalSeen: 8, SkippedDuplicate: 8})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.recordsTotal.WithLabelValues("saved")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.recordsTotal.WithLabelValues("skipped_duplicate")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordsTotal.WithLabelValues("error")))
}

func TestMetrics_RunFailedAttempt(t *testing.T) {
	m := NewMetrics()
	both := model.Chambers()

	m.RunFailedAttempt(both, eris.Wrap(resilience.ErrCircuitOpen, "fetch listing"))
	m.RunFailedAttempt([]model.Chamber{model.ChamberA}, eris.Wrap(extract.ErrBlocked, "listing"))
	m.RunFailedAttempt([]model.Chamber{model.ChamberB}, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.failedAttempts.WithLabelValues(string(model.ChamberA), "circuit_open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failedAttempts.WithLabelValues(string(model.ChamberB), "circuit_open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failedAttempts.WithLabelValues(string(model.ChamberA), "blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failedAttempts.WithLabelValues(string(model.ChamberB), "permanent")))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.PageRetry(model.ChamberA, 1, errors.New("timeout"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `disclosure_page_fetch_retries_total{chamber="chamber_a"} 1`)
}
