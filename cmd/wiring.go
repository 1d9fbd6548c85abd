package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/events"
	"github.com/sells-group/disclosure-cli/internal/extract"
	"github.com/sells-group/disclosure-cli/internal/ingest"
	"github.com/sells-group/disclosure-cli/internal/lock"
	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/resilience"
	"github.com/sells-group/disclosure-cli/internal/resources"
	"github.com/sells-group/disclosure-cli/internal/store"
	"github.com/sells-group/disclosure-cli/internal/tasks"
)

// poolConfig maps database and worker settings to the resource pool sizing.
func poolConfig() resources.PoolConfig {
	return resources.PoolConfig{
		URL:                  cfg.Database.URL,
		PoolSize:             cfg.Database.PoolSize,
		MaxOverflow:          cfg.Database.MaxOverflow,
		Workers:              cfg.Worker.Count,
		MaxServerConnections: cfg.Database.MaxServerConnections,
	}
}

// initStore opens a standalone pool for commands that only touch the
// database. The returned func closes it.
func initStore(ctx context.Context) (*store.PostgresStore, func(), error) {
	pc := poolConfig()
	if pc.PoolSize <= 0 {
		pc.PoolSize = 2
	}
	pc.Workers, pc.MaxServerConnections = 0, 0
	pool, err := resources.PostgresFactory(pc)(ctx)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgres(pool), pool.Close, nil
}

// dialTemporal connects to the configured Temporal frontend.
func dialTemporal() (client.Client, error) {
	return tasks.Dial(cfg.Temporal.HostPort, cfg.Temporal.Namespace)
}

// retryPolicy maps task settings to the whole-run retry policy.
func retryPolicy() tasks.RetryPolicy {
	return tasks.RetryPolicy{
		MaxAttempts: cfg.Task.MaxAttempts,
		Delay:       cfg.Task.RetryDelay(),
		Timeout:     cfg.Task.Timeout(),
		Heartbeat:   cfg.Task.Heartbeat(),
	}
}

// scheduleSpecs builds the daily and weekly recurring jobs.
func scheduleSpecs() []tasks.ScheduleSpec {
	return []tasks.ScheduleSpec{
		{
			ID:       tasks.DailyScheduleID,
			Trigger:  model.TriggerDaily,
			Cron:     cfg.Schedule.DailyCron,
			DaysBack: cfg.Schedule.DailyDaysBack,
			Timezone: cfg.Schedule.Timezone,
			Chambers: model.Chambers(),
		},
		{
			ID:       tasks.WeeklyScheduleID,
			Trigger:  model.TriggerWeekly,
			Cron:     cfg.Schedule.WeeklyCron,
			DaysBack: cfg.Schedule.WeeklyDaysBack,
			Timezone: cfg.Schedule.Timezone,
			Chambers: model.Chambers(),
		},
	}
}

// chromeOptions maps browser settings to the driver options.
func chromeOptions() extract.ChromeOptions {
	return extract.ChromeOptions{
		ExecPath:  cfg.Browser.ExecPath,
		Headless:  cfg.Browser.Headless,
		UserAgent: cfg.Browser.UserAgent,
	}
}

// extractorConfig maps one chamber's settings to the extractor config.
func extractorConfig(c model.Chamber, onRetry func(model.Chamber, int, error)) extract.Config {
	cc := cfg.Chambers.A
	if c == model.ChamberB {
		cc = cfg.Chambers.B
	}
	return extract.Config{
		BaseURL:           cc.BaseURL,
		MaxAttempts:       cc.MaxRetries,
		RetryDelay:        cc.RetryDelay(),
		PageTimeout:       cfg.Browser.PageTimeout(),
		RequestsPerSecond: cc.RequestsPerSecond,
		MaxPages:          cc.MaxPages,
		OnRetry:           onRetry,
	}
}

// extractorFactory builds both chamber extractors over a driver. Breakers
// are shared across calls so a site outage trips them process-wide.
func extractorFactory(breakers *resilience.Breakers, onRetry func(model.Chamber, int, error)) tasks.ExtractorFactory {
	return func(driver extract.Driver) ([]extract.Extractor, error) {
		out := make([]extract.Extractor, 0, 2)
		for _, c := range model.Chambers() {
			x, err := extract.New(c, driver, extractorConfig(c, onRetry), breakers.Get(string(c)))
			if err != nil {
				return nil, err
			}
			out = append(out, x)
		}
		return out, nil
	}
}

// ingestConfig maps ingest settings to the service config.
func ingestConfig() ingest.Config {
	return ingest.Config{
		MaxErrorReasons: cfg.Ingest.MaxErrorReasons,
		LockTTL:         cfg.Task.Timeout(),
	}
}

// ingestOptions wires the optional Kafka publisher and Redis chamber lock.
// The returned func releases whatever was opened.
func ingestOptions(ctx context.Context) ([]ingest.Option, func(), error) {
	var (
		opts    []ingest.Option
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		opts = append(opts, ingest.WithPublisher(pub))
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				zap.L().Warn("close kafka publisher", zap.Error(err))
			}
		})
		zap.L().Info("publishing trade events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	if cfg.Redis.Addr != "" {
		rdb, err := lock.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			cleanup()
			return nil, nil, eris.Wrap(err, "connect redis")
		}
		opts = append(opts, ingest.WithLocker(lock.NewRedisLocker(rdb, "disclosure:lock:")))
		closers = append(closers, func() { _ = rdb.Close() })
		zap.L().Info("chamber locking enabled", zap.String("redis", cfg.Redis.Addr))
	}

	return opts, cleanup, nil
}
