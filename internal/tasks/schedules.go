package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// Schedule IDs of the two recurring jobs.
const (
	DailyScheduleID  = "disclosure-ingest-daily"
	WeeklyScheduleID = "disclosure-ingest-weekly"
)

// ScheduleSpec is one recurring job: a cron expression and the trailing
// window each firing covers.
type ScheduleSpec struct {
	ID       string
	Trigger  string
	Cron     string
	DaysBack int
	Timezone string
	Chambers []model.Chamber
}

// ScheduledRun describes an upcoming firing.
type ScheduledRun struct {
	ScheduleID string      `json:"schedule_id" yaml:"schedule_id"`
	Trigger    string      `json:"trigger" yaml:"trigger"`
	Cron       string      `json:"cron" yaml:"cron"`
	DaysBack   int         `json:"days_back" yaml:"days_back"`
	Paused     bool        `json:"paused" yaml:"paused"`
	NextRuns   []time.Time `json:"next_runs" yaml:"next_runs"`
}

// Scheduler keeps the Temporal schedules in line with configuration.
type Scheduler struct {
	client    client.ScheduleClient
	taskQueue string
	policy    RetryPolicy
	specs     []ScheduleSpec
}

// NewScheduler creates a Scheduler for specs.
func NewScheduler(c client.ScheduleClient, taskQueue string, policy RetryPolicy, specs []ScheduleSpec) *Scheduler {
	return &Scheduler{client: c, taskQueue: taskQueue, policy: policy, specs: specs}
}

// Sync creates every schedule, replacing any existing schedule with the
// same ID so configuration changes take effect.
func (s *Scheduler) Sync(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "tasks.schedule"))
	for _, spec := range s.specs {
		if spec.Cron == "" {
			return eris.Errorf("tasks: schedule %s has no cron expression", spec.ID)
		}
		h := s.client.GetHandle(ctx, spec.ID)
		if _, err := h.Describe(ctx); err == nil {
			if err := h.Delete(ctx); err != nil {
				return eris.Wrapf(err, "tasks: delete schedule %s", spec.ID)
			}
		} else if !isNotFound(err) {
			return eris.Wrapf(err, "tasks: describe schedule %s", spec.ID)
		}

		_, err := s.client.Create(ctx, s.options(spec))
		if err != nil {
			return eris.Wrapf(err, "tasks: create schedule %s", spec.ID)
		}
		log.Info("schedule synced",
			zap.String("schedule_id", spec.ID),
			zap.String("cron", spec.Cron),
			zap.Int("days_back", spec.DaysBack),
		)
	}
	return nil
}

func (s *Scheduler) options(spec ScheduleSpec) client.ScheduleOptions {
	return client.ScheduleOptions{
		ID: spec.ID,
		Spec: client.ScheduleSpec{
			CronExpressions: []string{spec.Cron},
			TimeZoneName:    spec.Timezone,
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        spec.ID + "-run",
			Workflow:  WorkflowName,
			TaskQueue: s.taskQueue,
			Args: []any{RunInput{
				Chambers: spec.Chambers,
				DaysBack: spec.DaysBack,
				Trigger:  spec.Trigger,
				Policy:   s.policy,
			}},
		},
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
	}
}

// List describes the configured schedules and their next firing times.
// Schedules that have not been synced yet are omitted.
func (s *Scheduler) List(ctx context.Context) ([]ScheduledRun, error) {
	out := make([]ScheduledRun, 0, len(s.specs))
	for _, spec := range s.specs {
		desc, err := s.client.GetHandle(ctx, spec.ID).Describe(ctx)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, eris.Wrapf(err, "tasks: describe schedule %s", spec.ID)
		}
		run := ScheduledRun{
			ScheduleID: spec.ID,
			Trigger:    spec.Trigger,
			Cron:       spec.Cron,
			DaysBack:   spec.DaysBack,
			NextRuns:   desc.Info.NextActionTimes,
		}
		if desc.Schedule.State != nil {
			run.Paused = desc.Schedule.State.Paused
		}
		out = append(out, run)
	}
	return out, nil
}

func isNotFound(err error) bool {
	var nf *serviceerror.NotFound
	return errors.As(err, &nf)
}
