package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/store"
)

// minRecordsForRatio is the smallest run whose error ratio is considered.
const minRecordsForRatio = 10

// MetricsSnapshot holds a point-in-time view of ingestion health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal     int     `json:"runs_total"`
	RunsSucceeded int     `json:"runs_succeeded"`
	RunsFailed    int     `json:"runs_failed"`
	RunsCancelled int     `json:"runs_cancelled"`
	RunsActive    int     `json:"runs_active"`
	RunFailRate   float64 `json:"run_fail_rate"`

	// Record metrics summed over finished runs.
	RecordsSeen    int     `json:"records_seen"`
	RecordsSaved   int     `json:"records_saved"`
	RecordsSkipped int     `json:"records_skipped"`
	RecordsErrored int     `json:"records_errored"`
	ErrorRatio     float64 `json:"error_ratio"`

	// Worst single run by error ratio.
	WorstRunID         string  `json:"worst_run_id,omitempty"`
	WorstRunErrorRatio float64 `json:"worst_run_error_ratio"`

	FailedRunIDs []string `json:"failed_run_ids,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister abstracts the run store methods needed by the collector.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.IngestionRun, error)
}

// Collector gathers metrics from the run store.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		Since: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit: 10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.IngestSucceeded:
			snap.RunsSucceeded++
		case model.IngestFailed:
			snap.RunsFailed++
			snap.FailedRunIDs = append(snap.FailedRunIDs, r.ID)
		case model.IngestCancelled:
			snap.RunsCancelled++
		default:
			snap.RunsActive++
		}
		if !r.Status.Terminal() {
			continue
		}

		snap.RecordsSeen += r.Stats.TotalSeen
		snap.RecordsSaved += r.Stats.Saved
		snap.RecordsSkipped += r.Stats.SkippedDuplicate
		snap.RecordsErrored += r.Stats.Errors

		if r.Stats.TotalSeen >= minRecordsForRatio {
			ratio := float64(r.Stats.Errors) / float64(r.Stats.TotalSeen)
			if ratio > snap.WorstRunErrorRatio {
				snap.WorstRunErrorRatio = ratio
				snap.WorstRunID = r.ID
			}
		}
	}

	if finished := snap.RunsSucceeded + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.RecordsSeen > 0 {
		snap.ErrorRatio = float64(snap.RecordsErrored) / float64(snap.RecordsSeen)
	}
	return snap, nil
}
