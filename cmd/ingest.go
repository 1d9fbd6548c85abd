package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/extract"
	"github.com/sells-group/disclosure-cli/internal/ingest"
	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/resilience"
	"github.com/sells-group/disclosure-cli/internal/resources"
	"github.com/sells-group/disclosure-cli/internal/store"
	"github.com/sells-group/disclosure-cli/internal/tasks"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion pass locally, without Temporal",
	Long: "Extracts, validates, and stores trades for a date window in this process. " +
		"Whole-run infrastructure failures are retried with the task retry policy " +
		"(task.max_attempts, task.retry_delay_secs).",
	Example: "  disclosure-cli ingest --chamber both --days-back 7\n" +
		"  disclosure-cli ingest --chamber a --start 2024-03-01 --end 2024-03-05",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}
		req, err := triggerFromFlags(cmd)
		if err != nil {
			return err
		}
		chambers, start, end, err := tasks.ResolveWindow(req, time.Now())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mgr := resources.NewManager(resources.Factory{
			OpenPool:    resources.PostgresFactory(poolConfig()),
			OpenBrowser: resources.ChromeFactory(chromeOptions()),
		})
		defer mgr.Dispose() //nolint:errcheck

		res, err := mgr.Acquire(ctx)
		if err != nil {
			return err
		}
		xs, err := extractorFactory(resilience.NewBreakers(extract.BreakerConfig()), nil)(res.Browser)
		if err != nil {
			return err
		}
		opts, closeOpts, err := ingestOptions(ctx)
		if err != nil {
			return err
		}
		defer closeOpts()

		st := store.NewPostgres(res.Pool)
		svc := ingest.NewService(st, xs, ingestConfig(), opts...)

		run := &model.IngestionRun{
			ID:        uuid.NewString(),
			Chambers:  chambers,
			StartDate: start,
			EndDate:   end,
			Status:    model.IngestQueued,
			Trigger:   model.TriggerCLI,
		}
		if err := st.CreateRun(ctx, run); err != nil {
			return err
		}

		result, err := runLocal(ctx, svc, st, ingest.Request{
			RunID:    run.ID,
			Chambers: chambers,
			Window:   extract.Window{Start: start, End: end},
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "run %s %s: seen=%d saved=%d skipped=%d errors=%d\n",
			result.RunID, result.Status,
			result.Stats.TotalSeen, result.Stats.Saved, result.Stats.SkippedDuplicate, result.Stats.Errors)
		return nil
	},
}

// localRunner is the subset of the ingestion service runLocal drives.
type localRunner interface {
	Run(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// runAborter finalizes a run that could not complete.
type runAborter interface {
	AbortRun(ctx context.Context, runID string, status model.IngestStatus, errMsg string) (bool, error)
}

// runLocal retries whole-run failures with the task policy and finalizes
// the run as failed or cancelled when it gives up.
func runLocal(ctx context.Context, svc localRunner, runs runAborter, req ingest.Request) (*ingest.Result, error) {
	retry := resilience.FromAttemptsDelay(cfg.Task.MaxAttempts, cfg.Task.RetryDelay())
	retry.ShouldRetry = func(err error) bool { return !errors.Is(err, store.ErrRunClosed) }
	retry.OnRetry = resilience.RetryLogger("ingest", "run "+req.RunID)

	result, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*ingest.Result, error) {
		return svc.Run(ctx, req)
	})
	if err == nil {
		return result, nil
	}

	status := model.IngestFailed
	if ctx.Err() != nil {
		status = model.IngestCancelled
	}
	if _, aerr := runs.AbortRun(context.WithoutCancel(ctx), req.RunID, status, tasks.LastError(err)); aerr != nil {
		zap.L().Error("finalize local run", zap.String("run_id", req.RunID), zap.Error(aerr))
	}
	return nil, eris.Wrapf(err, "ingest run %s %s", req.RunID, status)
}

// triggerFromFlags reads the window flags shared by ingest and trigger.
func triggerFromFlags(cmd *cobra.Command) (tasks.TriggerRequest, error) {
	chamber, _ := cmd.Flags().GetString("chamber")
	daysBack, _ := cmd.Flags().GetInt("days-back")
	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")

	req := tasks.TriggerRequest{Chamber: chamber, DaysBack: daysBack}
	var err error
	if startStr != "" {
		if req.Start, err = time.Parse("2006-01-02", startStr); err != nil {
			return req, eris.Wrap(err, "parse --start")
		}
	}
	if endStr != "" {
		if req.End, err = time.Parse("2006-01-02", endStr); err != nil {
			return req, eris.Wrap(err, "parse --end")
		}
	}
	return req, nil
}

func addWindowFlags(cmd *cobra.Command) {
	cmd.Flags().String("chamber", "both", "chamber to ingest (a, b, both)")
	cmd.Flags().Int("days-back", 0, "trailing window in days ending today")
	cmd.Flags().String("start", "", "window start date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "window end date (YYYY-MM-DD)")
}

func init() {
	addWindowFlags(ingestCmd)
	rootCmd.AddCommand(ingestCmd)
}
