package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Browser    BrowserConfig    `yaml:"browser" mapstructure:"browser"`
	Chambers   ChambersConfig   `yaml:"chambers" mapstructure:"chambers"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Task       TaskConfig       `yaml:"task" mapstructure:"task"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Kafka      KafkaConfig      `yaml:"kafka" mapstructure:"kafka"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DatabaseConfig sizes the per-worker Postgres pool. A worker holds at most
// PoolSize+MaxOverflow connections.
type DatabaseConfig struct {
	URL                  string `yaml:"url" mapstructure:"url"`
	PoolSize             int    `yaml:"pool_size" mapstructure:"pool_size"`
	MaxOverflow          int    `yaml:"max_overflow" mapstructure:"max_overflow"`
	MaxServerConnections int    `yaml:"max_server_connections" mapstructure:"max_server_connections"`
}

// Capacity is the most connections one worker process may open.
func (d DatabaseConfig) Capacity() int {
	return d.PoolSize + d.MaxOverflow
}

// WorkerConfig configures worker processes.
type WorkerConfig struct {
	Count             int `yaml:"count" mapstructure:"count"`
	MaxTasksPerWorker int `yaml:"max_tasks_per_worker" mapstructure:"max_tasks_per_worker"`
	Concurrency       int `yaml:"concurrency" mapstructure:"concurrency"`
}

// BrowserConfig configures the headless page-automation driver.
type BrowserConfig struct {
	ExecPath        string `yaml:"exec_path" mapstructure:"exec_path"`
	Headless        bool   `yaml:"headless" mapstructure:"headless"`
	UserAgent       string `yaml:"user_agent" mapstructure:"user_agent"`
	PageTimeoutSecs int    `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
}

// PageTimeout returns the per-page timeout as a duration.
func (b BrowserConfig) PageTimeout() time.Duration {
	return time.Duration(b.PageTimeoutSecs) * time.Second
}

// ChambersConfig holds per-source site settings.
type ChambersConfig struct {
	A ChamberConfig `yaml:"a" mapstructure:"a"`
	B ChamberConfig `yaml:"b" mapstructure:"b"`
}

// ChamberConfig configures one source site.
type ChamberConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelayMs      int     `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxPages          int     `yaml:"max_pages" mapstructure:"max_pages"`
}

// RetryDelay returns the fixed page-fetch retry delay.
func (c ChamberConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// ScheduleConfig holds the two recurring jobs.
type ScheduleConfig struct {
	DailyCron      string `yaml:"daily_cron" mapstructure:"daily_cron"`
	DailyDaysBack  int    `yaml:"daily_days_back" mapstructure:"daily_days_back"`
	WeeklyCron     string `yaml:"weekly_cron" mapstructure:"weekly_cron"`
	WeeklyDaysBack int    `yaml:"weekly_days_back" mapstructure:"weekly_days_back"`
	Timezone       string `yaml:"timezone" mapstructure:"timezone"`
}

// TaskConfig configures the whole-run retry policy.
type TaskConfig struct {
	MaxAttempts    int `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryDelaySecs int `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	TimeoutMins    int `yaml:"timeout_mins" mapstructure:"timeout_mins"`
	HeartbeatSecs  int `yaml:"heartbeat_secs" mapstructure:"heartbeat_secs"`
}

// RetryDelay returns the fixed delay between run attempts.
func (t TaskConfig) RetryDelay() time.Duration {
	return time.Duration(t.RetryDelaySecs) * time.Second
}

// Timeout returns the time limit of one run attempt.
func (t TaskConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutMins) * time.Minute
}

// Heartbeat returns the heartbeat timeout of a run attempt.
func (t TaskConfig) Heartbeat() time.Duration {
	return time.Duration(t.HeartbeatSecs) * time.Second
}

// TemporalConfig configures the Temporal client and worker.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// ServerConfig configures the trigger/status API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	JWTSecret      string   `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// KafkaConfig configures trade event publishing. Empty brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// RedisConfig configures the chamber lock. Empty addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// MonitoringConfig configures run-health alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ErrorRatioThreshold  float64 `yaml:"error_ratio_threshold" mapstructure:"error_ratio_threshold"`
	LookbackHours        int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	MetricsPort          int     `yaml:"metrics_port" mapstructure:"metrics_port"`
}

// IngestConfig tunes the ingestion service.
type IngestConfig struct {
	MaxErrorReasons int `yaml:"max_error_reasons" mapstructure:"max_error_reasons"`
}

// envOnlyKeys are deployment-specific settings with no default.
var envOnlyKeys = []string{
	"database.url", "database.pool_size", "database.max_overflow", "database.max_server_connections",
	"worker.count", "worker.max_tasks_per_worker", "worker.concurrency",
	"browser.exec_path", "browser.headless", "browser.user_agent", "browser.page_timeout_secs",
	"chambers.a.base_url", "chambers.a.max_retries", "chambers.a.retry_delay_ms",
	"chambers.a.requests_per_second", "chambers.a.max_pages",
	"chambers.b.base_url", "chambers.b.max_retries", "chambers.b.retry_delay_ms",
	"chambers.b.requests_per_second", "chambers.b.max_pages",
	"schedule.daily_cron", "schedule.daily_days_back", "schedule.weekly_cron",
	"schedule.weekly_days_back", "schedule.timezone",
	"task.max_attempts", "task.retry_delay_secs", "task.timeout_mins", "task.heartbeat_secs",
	"temporal.host_port",
	"server.jwt_secret", "server.allowed_origins",
	"kafka.brokers",
	"redis.addr", "redis.password", "redis.db",
	"monitoring.webhook_url", "monitoring.metrics_port",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DISCLOSURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults cover operational knobs only.
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "disclosure-ingest")
	v.SetDefault("kafka.topic", "trade.ingested")
	v.SetDefault("ingest.max_error_reasons", 200)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.error_ratio_threshold", 0.25)
	v.SetDefault("monitoring.check_interval_secs", 300)

	// Keys without defaults are only seen by Unmarshal when bound.
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Modes: "worker", "ingest",
// "serve", "schedule", "migrate", "runs", "monitor", "token".
func (c *Config) Validate(mode string) error {
	var errs []string
	req := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	switch mode {
	case "worker", "ingest":
		req(c.Database.URL != "", "database.url is required")
		req(c.Database.PoolSize > 0, "database.pool_size must be > 0")
		req(c.Database.MaxOverflow >= 0, "database.max_overflow must be >= 0")
		req(c.Worker.Count > 0, "worker.count must be > 0")
		if c.Database.MaxServerConnections <= 0 {
			errs = append(errs, "database.max_server_connections must be > 0")
		} else if total := c.Worker.Count * c.Database.Capacity(); total >= c.Database.MaxServerConnections {
			errs = append(errs, fmt.Sprintf(
				"worker.count * (pool_size + max_overflow) = %d must stay under database.max_server_connections (%d)",
				total, c.Database.MaxServerConnections))
		}
		req(c.Browser.PageTimeoutSecs > 0, "browser.page_timeout_secs must be > 0")
		for _, ch := range []struct {
			name string
			cfg  ChamberConfig
		}{{"a", c.Chambers.A}, {"b", c.Chambers.B}} {
			req(ch.cfg.BaseURL != "", "chambers."+ch.name+".base_url is required")
			req(ch.cfg.MaxRetries > 0, "chambers."+ch.name+".max_retries must be > 0")
			req(ch.cfg.RetryDelayMs > 0, "chambers."+ch.name+".retry_delay_ms must be > 0")
		}
		if mode == "worker" {
			req(c.Temporal.HostPort != "", "temporal.host_port is required")
			req(c.Task.MaxAttempts > 0, "task.max_attempts must be > 0")
			req(c.Task.RetryDelaySecs > 0, "task.retry_delay_secs must be > 0")
			req(c.Task.TimeoutMins > 0, "task.timeout_mins must be > 0")
			req(c.Worker.MaxTasksPerWorker >= 0, "worker.max_tasks_per_worker must be >= 0")
		}
	case "serve":
		req(c.Server.Port > 0, "server.port must be > 0")
		req(c.Server.JWTSecret != "", "server.jwt_secret is required")
		req(c.Database.URL != "", "database.url is required")
		req(c.Temporal.HostPort != "", "temporal.host_port is required")
	case "schedule":
		req(c.Temporal.HostPort != "", "temporal.host_port is required")
		req(c.Schedule.DailyCron != "", "schedule.daily_cron is required")
		req(c.Schedule.WeeklyCron != "", "schedule.weekly_cron is required")
		if c.Schedule.DailyCron != "" {
			req(strings.Join(strings.Fields(c.Schedule.DailyCron), " ") != strings.Join(strings.Fields(c.Schedule.WeeklyCron), " "),
				"schedule.daily_cron and schedule.weekly_cron must differ")
		}
		req(c.Schedule.DailyDaysBack > 0, "schedule.daily_days_back must be > 0")
		req(c.Schedule.WeeklyDaysBack > 0, "schedule.weekly_days_back must be > 0")
		if c.Schedule.Timezone != "" {
			_, err := time.LoadLocation(c.Schedule.Timezone)
			req(err == nil, "schedule.timezone is not a valid IANA zone")
		}
	case "migrate", "runs":
		req(c.Database.URL != "", "database.url is required")
	case "monitor":
		req(c.Database.URL != "", "database.url is required")
		req(c.Monitoring.LookbackHours > 0, "monitoring.lookback_hours must be > 0")
	case "token":
		req(c.Server.JWTSecret != "", "server.jwt_secret is required")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Ingest.MaxErrorReasons < 0 {
		errs = append(errs, "ingest.max_error_reasons must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
