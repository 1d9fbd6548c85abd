package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/disclosure-cli/internal/tasks"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage the recurring ingestion schedules",
}

var scheduleSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Create or replace the daily and weekly schedules",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("schedule"); err != nil {
			return err
		}
		tc, err := dialTemporal()
		if err != nil {
			return err
		}
		defer tc.Close()

		s := tasks.NewScheduler(tc.ScheduleClient(), cfg.Temporal.TaskQueue, retryPolicy(), scheduleSpecs())
		if err := s.Sync(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Schedules synced.")
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the schedules and their next firing times",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.Temporal.HostPort == "" {
			return cfg.Validate("schedule")
		}
		tc, err := dialTemporal()
		if err != nil {
			return err
		}
		defer tc.Close()

		s := tasks.NewScheduler(tc.ScheduleClient(), cfg.Temporal.TaskQueue, retryPolicy(), scheduleSpecs())
		runs, err := s.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No schedules found. Run `disclosure-cli schedule sync`.")
			return nil
		}
		formatSchedules(os.Stdout, runs)
		return nil
	},
}

func formatSchedules(out io.Writer, runs []tasks.ScheduledRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCHEDULE\tTRIGGER\tCRON\tDAYS_BACK\tPAUSED\tNEXT")
	for _, r := range runs {
		next := make([]string, 0, len(r.NextRuns))
		for _, t := range r.NextRuns {
			next = append(next, t.UTC().Format(time.RFC3339))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%s\n",
			r.ScheduleID, r.Trigger, r.Cron, r.DaysBack, r.Paused, strings.Join(next, ", "))
	}
	_ = w.Flush()
}

func init() {
	scheduleCmd.AddCommand(scheduleSyncCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	rootCmd.AddCommand(scheduleCmd)
}
