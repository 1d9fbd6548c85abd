package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/disclosure-cli/internal/db"
	"github.com/sells-group/disclosure-cli/internal/model"
)

const runColumns = `id, chambers, start_date, end_date, status, trigger,
	total_seen, saved, skipped_duplicate, errors, error_reasons, errors_dropped,
	attempts, error, cancel_requested, created_at, started_at, finished_at`

// CreateRun records a queued run. Creating a run whose id already exists is
// a no-op, so callers may retry it.
func (s *PostgresStore) CreateRun(ctx context.Context, run *model.IngestionRun) error {
	if run.ID == "" {
		return eris.New("store: create run: empty id")
	}
	if run.Status == "" {
		run.Status = model.IngestQueued
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO disclosure.ingest_runs (id, chambers, start_date, end_date, status, trigger)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		run.ID, chamberStrings(run.Chambers), run.StartDate, run.EndDate, string(run.Status), run.Trigger,
	)
	if err != nil {
		return eris.Wrapf(err, "store: create run %s", run.ID)
	}
	return nil
}

// StartRun moves a queued or running run to running and counts the attempt.
// It returns whether cancellation was requested before the attempt began,
// and ErrRunClosed when the run is already terminal.
func (s *PostgresStore) StartRun(ctx context.Context, runID string) (bool, error) {
	var cancelRequested bool
	err := s.pool.QueryRow(ctx,
		`UPDATE disclosure.ingest_runs
		 SET status = 'running', attempts = attempts + 1, started_at = COALESCE(started_at, now())
		 WHERE id = $1 AND status = ANY($2)
		 RETURNING cancel_requested`,
		runID, activeStatuses,
	).Scan(&cancelRequested)
	if err != nil {
		if db.IsNoRows(err) {
			return false, ErrRunClosed
		}
		return false, eris.Wrapf(err, "store: start run %s", runID)
	}
	return cancelRequested, nil
}

// UpdateRunProgress writes the in-flight counters of a running run.
func (s *PostgresStore) UpdateRunProgress(ctx context.Context, runID string, stats model.RunStats) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE disclosure.ingest_runs
		 SET total_seen = $2, saved = $3, skipped_duplicate = $4, errors = $5
		 WHERE id = $1 AND status = 'running'`,
		runID, stats.TotalSeen, stats.Saved, stats.SkippedDuplicate, stats.Errors,
	)
	if err != nil {
		return eris.Wrapf(err, "store: update run progress %s", runID)
	}
	return nil
}

// FinalizeRun moves a run to a terminal state with its final statistics.
// Only the first finalization takes effect; it returns false when the run
// was already terminal.
func (s *PostgresStore) FinalizeRun(ctx context.Context, runID string, status model.IngestStatus, stats model.RunStats, errMsg string) (bool, error) {
	if !status.Terminal() {
		return false, eris.Errorf("store: finalize run %s: %q is not a terminal status", runID, status)
	}
	var reasonsJSON []byte
	if len(stats.ErrorReasons) > 0 {
		var err error
		reasonsJSON, err = json.Marshal(stats.ErrorReasons)
		if err != nil {
			return false, eris.Wrap(err, "store: marshal error reasons")
		}
	}
	var errText *string
	if errMsg != "" {
		errText = &errMsg
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE disclosure.ingest_runs
		 SET status = $2, total_seen = $3, saved = $4, skipped_duplicate = $5, errors = $6,
		     error_reasons = $7, errors_dropped = $8, error = $9, finished_at = now()
		 WHERE id = $1 AND status = ANY($10)`,
		runID, string(status), stats.TotalSeen, stats.Saved, stats.SkippedDuplicate, stats.Errors,
		reasonsJSON, stats.ErrorsDropped, errText, activeStatuses,
	)
	if err != nil {
		return false, eris.Wrapf(err, "store: finalize run %s", runID)
	}
	return tag.RowsAffected() == 1, nil
}

// AbortRun moves a run to failed or cancelled without touching the
// counters it already recorded. Like FinalizeRun, only the first terminal
// transition takes effect.
func (s *PostgresStore) AbortRun(ctx context.Context, runID string, status model.IngestStatus, errMsg string) (bool, error) {
	if status != model.IngestFailed && status != model.IngestCancelled {
		return false, eris.Errorf("store: abort run %s: %q is not failed or cancelled", runID, status)
	}
	var errText *string
	if errMsg != "" {
		errText = &errMsg
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE disclosure.ingest_runs
		 SET status = $2, error = $3, finished_at = now()
		 WHERE id = $1 AND status = ANY($4)`,
		runID, string(status), errText, activeStatuses,
	)
	if err != nil {
		return false, eris.Wrapf(err, "store: abort run %s", runID)
	}
	return tag.RowsAffected() == 1, nil
}

// RequestCancel flags an active run for cooperative cancellation. It
// returns false when the run is missing or already terminal.
func (s *PostgresStore) RequestCancel(ctx context.Context, runID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE disclosure.ingest_runs SET cancel_requested = true
		 WHERE id = $1 AND status = ANY($2)`,
		runID, activeStatuses,
	)
	if err != nil {
		return false, eris.Wrapf(err, "store: request cancel %s", runID)
	}
	return tag.RowsAffected() == 1, nil
}

// CancelRequested reports whether cancellation was requested for a run.
func (s *PostgresStore) CancelRequested(ctx context.Context, runID string) (bool, error) {
	var requested bool
	err := s.pool.QueryRow(ctx,
		`SELECT cancel_requested FROM disclosure.ingest_runs WHERE id = $1`,
		runID,
	).Scan(&requested)
	if err != nil {
		if db.IsNoRows(err) {
			return false, ErrNotFound
		}
		return false, eris.Wrapf(err, "store: cancel requested %s", runID)
	}
	return requested, nil
}

// GetRun loads one run by id.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.IngestionRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM disclosure.ingest_runs WHERE id = $1`,
		runID,
	)
	run, err := scanRun(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "store: get run %s", runID)
	}
	return run, nil
}

// ListActiveRuns returns queued and running runs, oldest first.
func (s *PostgresStore) ListActiveRuns(ctx context.Context) ([]model.IngestionRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM disclosure.ingest_runs
		 WHERE status = ANY($1) ORDER BY created_at ASC`,
		activeStatuses,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: list active runs")
	}
	return collectRuns(rows)
}

// ListRuns returns runs matching filter, most recent first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.IngestionRun, error) {
	query := `SELECT ` + runColumns + ` FROM disclosure.ingest_runs`
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	return collectRuns(rows)
}

func collectRuns(rows pgx.Rows) ([]model.IngestionRun, error) {
	defer rows.Close()
	var runs []model.IngestionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*model.IngestionRun, error) {
	var (
		run         model.IngestionRun
		chambers    []string
		status      string
		reasonsJSON []byte
		errText     *string
		startedAt   *time.Time
		finishedAt  *time.Time
	)
	err := row.Scan(
		&run.ID, &chambers, &run.StartDate, &run.EndDate, &status, &run.Trigger,
		&run.Stats.TotalSeen, &run.Stats.Saved, &run.Stats.SkippedDuplicate, &run.Stats.Errors,
		&reasonsJSON, &run.Stats.ErrorsDropped,
		&run.Attempts, &errText, &run.CancelRequested, &run.CreatedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = model.IngestStatus(status)
	for _, c := range chambers {
		run.Chambers = append(run.Chambers, model.Chamber(c))
	}
	if len(reasonsJSON) > 0 {
		if err := json.Unmarshal(reasonsJSON, &run.Stats.ErrorReasons); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal error reasons")
		}
	}
	if errText != nil {
		run.Error = *errText
	}
	run.StartedAt = startedAt
	run.FinishedAt = finishedAt
	return &run, nil
}

func chamberStrings(chambers []model.Chamber) []string {
	out := make([]string, len(chambers))
	for i, c := range chambers {
		out[i] = string(c)
	}
	return out
}
