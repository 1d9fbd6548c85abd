package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/disclosure-cli/internal/extract"
	"github.com/sells-group/disclosure-cli/internal/monitoring"
	"github.com/sells-group/disclosure-cli/internal/resilience"
	"github.com/sells-group/disclosure-cli/internal/resources"
	"github.com/sells-group/disclosure-cli/internal/tasks"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a Temporal worker that executes ingestion runs",
	Long: "Polls the ingestion task queue. Each worker owns one database pool and one browser, " +
		"created on its first run and released on shutdown. With worker.max_tasks_per_worker set, " +
		"the worker exits after that many completed runs so the supervisor can replace it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("worker"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mgr := resources.NewManager(resources.Factory{
			OpenPool:    resources.PostgresFactory(poolConfig()),
			OpenBrowser: resources.ChromeFactory(chromeOptions()),
		})
		metrics := monitoring.NewMetrics()
		recycler := tasks.NewRecycler(cfg.Worker.MaxTasksPerWorker)

		err := drainThenDispose(mgr, func() error {
			opts, closeOpts, err := ingestOptions(ctx)
			if err != nil {
				return err
			}
			defer closeOpts()

			breakers := resilience.NewBreakers(extract.BreakerConfig())
			env := tasks.ResourceEnv(mgr, extractorFactory(breakers, metrics.PageRetry), ingestConfig(), opts...)
			acts := tasks.NewActivities(env, tasks.ResourceRuns(mgr), recycler, metrics)

			tc, err := dialTemporal()
			if err != nil {
				return err
			}
			defer tc.Close()

			w := tasks.NewWorker(tc, tasks.WorkerConfig{
				TaskQueue:   cfg.Temporal.TaskQueue,
				Concurrency: cfg.Worker.Concurrency,
			}, acts)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				defer stop()
				return tasks.RunWorker(gctx, w, recycler)
			})

			if port := cfg.Monitoring.MetricsPort; port > 0 {
				srv := metricsServer(port, metrics)
				g.Go(func() error {
					zap.L().Info("serving metrics", zap.Int("port", port))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return eris.Wrap(err, "metrics listen")
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}
			return g.Wait()
		})

		zap.L().Info("worker stopped",
			zap.Int64("completed_runs", recycler.Completed()),
			zap.Bool("recycled", recycler.Recycled()),
		)
		return err
	},
}

// drainThenDispose runs the worker and releases the shared resources only
// after it has returned, so an in-flight run reaches its filing boundary
// with a live pool and browser. Shutdown signals never dispose directly.
func drainThenDispose(mgr *resources.Manager, run func() error) error {
	stopped, workerStopped := context.WithCancel(context.Background())
	disposed := mgr.DisposeOnDone(stopped)
	err := run()
	workerStopped()
	<-disposed
	return err
}

func metricsServer(port int, m *monitoring.Metrics) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
