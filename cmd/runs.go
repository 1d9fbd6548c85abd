package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/store"
	"github.com/sells-group/disclosure-cli/internal/tasks"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect and control ingestion runs",
	Long:  "Commands for listing, viewing, summarizing, triggering, and cancelling ingestion runs.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("runs")
	},
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingestion runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		status, _ := cmd.Flags().GetString("status")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{
			Status: model.IngestStatus(status),
			Limit:  limit,
		}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		output, _ := cmd.Flags().GetString("output")
		return writeRun(os.Stdout, run, output)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		since, _ := cmd.Flags().GetDuration("since")
		filter := store.RunFilter{Limit: 10000}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

// -- runs trigger --

var runsTriggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Queue a manual run on the Temporal task queue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		req, err := triggerFromFlags(cmd)
		if err != nil {
			return err
		}
		return withOrchestrator(cmd.Context(), func(ctx context.Context, o *tasks.Orchestrator) error {
			runID, err := o.Trigger(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, runID)
			return nil
		})
	},
}

// -- runs cancel --

var runsCancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Request cancellation of a queued or running run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(cmd.Context(), func(ctx context.Context, o *tasks.Orchestrator) error {
			if err := o.Cancel(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "cancel requested for run %s\n", args[0])
			return nil
		})
	},
}

func withOrchestrator(ctx context.Context, fn func(context.Context, *tasks.Orchestrator) error) error {
	if cfg.Temporal.HostPort == "" {
		return eris.New("config: temporal.host_port is required")
	}
	st, closeStore, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	tc, err := dialTemporal()
	if err != nil {
		return err
	}
	defer tc.Close()

	return fn(ctx, tasks.NewOrchestrator(tc, st, nil, cfg.Temporal.TaskQueue, retryPolicy()))
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, running, succeeded, failed, cancelled)")
	runsListCmd.Flags().Duration("since", 0, "only runs created within this window (e.g. 24h)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().StringP("output", "o", "json", "output format (json, yaml)")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	addWindowFlags(runsTriggerCmd)

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsTriggerCmd)
	runsCmd.AddCommand(runsCancelCmd)
	rootCmd.AddCommand(runsCmd)
}

// writeRun encodes a run as indented JSON or YAML.
func writeRun(out io.Writer, run *model.IngestionRun, format string) error {
	switch strings.ToLower(format) {
	case "", "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	case "yaml", "yml":
		// Round-trip through JSON so YAML keys match the API field names.
		raw, err := json.Marshal(run)
		if err != nil {
			return eris.Wrap(err, "encode run")
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return eris.Wrap(err, "encode run")
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return eris.Wrap(err, "encode run")
		}
		return enc.Close()
	default:
		return eris.Errorf("unknown output format %q (valid: json, yaml)", format)
	}
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Succeeded  int
	Failed     int
	Cancelled  int
	Active     int
	Saved      int
	Skipped    int
	Errors     int
	AvgDurSecs float64
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.IngestionRun) runStats {
	var s runStats
	s.Total = len(runs)

	var totalDur time.Duration
	var durCount int

	for _, r := range runs {
		switch r.Status {
		case model.IngestSucceeded:
			s.Succeeded++
			if r.StartedAt != nil && r.FinishedAt != nil {
				totalDur += r.FinishedAt.Sub(*r.StartedAt)
				durCount++
			}
		case model.IngestFailed:
			s.Failed++
		case model.IngestCancelled:
			s.Cancelled++
		default:
			s.Active++
		}
		s.Saved += r.Stats.Saved
		s.Skipped += r.Stats.SkippedDuplicate
		s.Errors += r.Stats.Errors
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.IngestionRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCHAMBERS\tWINDOW\tSTATUS\tTRIGGER\tSEEN\tSAVED\tSKIPPED\tERRORS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t------\t------\t-------\t----\t-----\t-------\t------\t-------")

	for _, r := range runs {
		chambers := make([]string, len(r.Chambers))
		for i, c := range r.Chambers {
			chambers[i] = string(c)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s..%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			truncateID(r.ID),
			strings.Join(chambers, ","),
			r.StartDate.Format("2006-01-02"),
			r.EndDate.Format("2006-01-02"),
			r.Status,
			r.Trigger,
			r.Stats.TotalSeen,
			r.Stats.Saved,
			r.Stats.SkippedDuplicate,
			r.Stats.Errors,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Succeeded:\t%d\n", s.Succeeded)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Cancelled:\t%d\n", s.Cancelled)
	_, _ = fmt.Fprintf(w, "Active:\t%d\n", s.Active)
	_, _ = fmt.Fprintf(w, "Trades saved:\t%d\n", s.Saved)
	_, _ = fmt.Fprintf(w, "Duplicates skipped:\t%d\n", s.Skipped)
	_, _ = fmt.Fprintf(w, "Records rejected:\t%d\n", s.Errors)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
