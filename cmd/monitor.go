package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/disclosure-cli/internal/monitoring"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run-health checks and alerting",
}

var monitorCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Collect run metrics once, print them, and send any alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("monitor"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		collector := monitoring.NewCollector(st)
		snap, err := collector.Collect(ctx, cfg.Monitoring.LookbackHours)
		if err != nil {
			return err
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)
		sent := alerter.SendAlerts(ctx, alerts)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Snapshot *monitoring.MetricsSnapshot `json:"snapshot"`
			Alerts   []monitoring.Alert          `json:"alerts"`
			Sent     int                         `json:"sent"`
		}{snap, alerts, sent})
	},
}

var monitorWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the alert checker until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("monitor"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		checker := monitoring.NewChecker(
			monitoring.NewCollector(st),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		checker.Run(ctx)
		return nil
	},
}

func init() {
	monitorCmd.AddCommand(monitorCheckCmd)
	monitorCmd.AddCommand(monitorWatchCmd)
	rootCmd.AddCommand(monitorCmd)
}
