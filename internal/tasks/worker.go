package tasks

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"
)

// WorkerConfig configures the Temporal worker.
type WorkerConfig struct {
	TaskQueue string
	// Concurrency bounds the runs one worker process executes at once.
	Concurrency int
}

func workflowRegisterOptions() workflow.RegisterOptions {
	return workflow.RegisterOptions{Name: WorkflowName}
}

// Register adds the workflow and activities to r.
func Register(r worker.Registry, acts *Activities) {
	r.RegisterWorkflowWithOptions(IngestWorkflow, workflowRegisterOptions())
	r.RegisterActivity(acts)
}

// NewWorker creates a worker polling cfg.TaskQueue.
func NewWorker(c client.Client, cfg WorkerConfig, acts *Activities) worker.Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	w := worker.New(c, cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.Concurrency,
		WorkerStopTimeout:                  time.Minute,
	})
	Register(w, acts)
	return w
}

// Starter is the subset of worker.Worker used by RunWorker.
type Starter interface {
	Start() error
	Stop()
}

// RunWorker starts w and blocks until ctx is done or the recycler fires,
// then stops the worker. In-flight activities get WorkerStopTimeout to
// reach a filing boundary.
func RunWorker(ctx context.Context, w Starter, recycler *Recycler) error {
	if err := w.Start(); err != nil {
		return eris.Wrap(err, "tasks: start worker")
	}
	log := zap.L().With(zap.String("component", "tasks.worker"))
	log.Info("worker started")

	var recycled <-chan struct{}
	if recycler != nil {
		recycled = recycler.Done()
	}
	select {
	case <-ctx.Done():
		log.Info("worker stopping", zap.String("reason", "shutdown"))
	case <-recycled:
		log.Info("worker stopping", zap.String("reason", "recycle"), zap.Int64("completed", recycler.Completed()))
	}
	w.Stop()
	return nil
}

// Dial connects a Temporal client.
func Dial(hostPort, namespace string) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
		Logger:    newTemporalLogger(zap.L()),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "tasks: dial temporal %s", hostPort)
	}
	return c, nil
}
