package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "disclosure-ingest", cfg.Temporal.TaskQueue)
	assert.Equal(t, "default", cfg.Temporal.Namespace)
	assert.Equal(t, "trade.ingested", cfg.Kafka.Topic)
	assert.Equal(t, 200, cfg.Ingest.MaxErrorReasons)
	assert.Equal(t, 24, cfg.Monitoring.LookbackHours)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)

	// Deployment-specific values have no defaults.
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Chambers.A.BaseURL)
	assert.Empty(t, cfg.Schedule.DailyCron)
	assert.Empty(t, cfg.Browser.ExecPath)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
database:
  url: postgres://localhost/disclosure
  pool_size: 5
  max_overflow: 2
  max_server_connections: 100
chambers:
  a:
    base_url: https://a.example.gov
    max_retries: 3
    retry_delay_ms: 2000
schedule:
  daily_cron: "30 6 * * *"
  weekly_cron: "0 9 * * 0"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "postgres://localhost/disclosure", cfg.Database.URL)
	assert.Equal(t, 7, cfg.Database.Capacity())
	assert.Equal(t, "https://a.example.gov", cfg.Chambers.A.BaseURL)
	assert.Equal(t, 2000, cfg.Chambers.A.RetryDelayMs)
	assert.Equal(t, "30 6 * * *", cfg.Schedule.DailyCron)
	// Defaults still apply for unset values
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
database:
  url: postgres://file/db
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DISCLOSURE_DATABASE_URL", "postgres://env/db")
	t.Setenv("DISCLOSURE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvWithoutDefault(t *testing.T) {
	chdirTemp(t)

	t.Setenv("DISCLOSURE_CHAMBERS_B_BASE_URL", "https://b.example.gov")
	t.Setenv("DISCLOSURE_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://b.example.gov", cfg.Chambers.B.BaseURL)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validWorker returns a Config that passes worker validation.
func validWorker() *Config {
	cfg := &Config{}
	cfg.Database = DatabaseConfig{URL: "postgres://localhost/test", PoolSize: 5, MaxOverflow: 5, MaxServerConnections: 100}
	cfg.Worker = WorkerConfig{Count: 4, MaxTasksPerWorker: 50}
	cfg.Browser.PageTimeoutSecs = 30
	cfg.Chambers.A = ChamberConfig{BaseURL: "https://a.example.gov", MaxRetries: 3, RetryDelayMs: 2000}
	cfg.Chambers.B = ChamberConfig{BaseURL: "https://b.example.gov", MaxRetries: 3, RetryDelayMs: 2000}
	cfg.Temporal.HostPort = "localhost:7233"
	cfg.Task = TaskConfig{MaxAttempts: 3, RetryDelaySecs: 60, TimeoutMins: 90}
	return cfg
}

func TestValidateWorker_AllPresent(t *testing.T) {
	assert.NoError(t, validWorker().Validate("worker"))
}

func TestValidateWorker_MissingFields(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate("worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url is required")
	assert.Contains(t, err.Error(), "chambers.a.base_url is required")
	assert.Contains(t, err.Error(), "chambers.b.base_url is required")
	assert.Contains(t, err.Error(), "temporal.host_port is required")
}

func TestValidateWorker_PoolCapacity(t *testing.T) {
	cfg := validWorker()

	// 10 workers × 10 connections reaches the ceiling.
	cfg.Worker.Count = 10
	err := cfg.Validate("worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must stay under database.max_server_connections")

	cfg.Worker.Count = 9
	assert.NoError(t, cfg.Validate("worker"))
}

func TestValidateIngest_NoTemporal(t *testing.T) {
	cfg := validWorker()
	cfg.Temporal.HostPort = ""
	cfg.Task = TaskConfig{}

	assert.NoError(t, cfg.Validate("ingest"))
}

func TestValidateServe(t *testing.T) {
	cfg := validWorker()
	cfg.Server.Port = 9090
	cfg.Server.JWTSecret = "secret"
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	cfg.Server.JWTSecret = ""
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "server.jwt_secret is required")
}

func TestValidateSchedule(t *testing.T) {
	cfg := &Config{}
	cfg.Temporal.HostPort = "localhost:7233"
	cfg.Schedule = ScheduleConfig{DailyCron: "30 6 * * *", DailyDaysBack: 2, WeeklyCron: "0 9 * * 0", WeeklyDaysBack: 14, Timezone: "America/New_York"}
	assert.NoError(t, cfg.Validate("schedule"))

	cfg.Schedule.Timezone = "Mars/Olympus"
	err := cfg.Validate("schedule")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule.timezone")
}

func TestValidateSchedule_IdenticalCronsRejected(t *testing.T) {
	cfg := &Config{}
	cfg.Temporal.HostPort = "localhost:7233"
	cfg.Schedule = ScheduleConfig{DailyCron: "0 9 * * 0", DailyDaysBack: 2, WeeklyCron: "0  9 * * 0", WeeklyDaysBack: 14}

	err := cfg.Validate("schedule")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validWorker().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateMaxErrorReasons(t *testing.T) {
	cfg := validWorker()
	cfg.Ingest.MaxErrorReasons = -1
	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest.max_error_reasons")
}

func TestDurations(t *testing.T) {
	cfg := validWorker()
	cfg.Task.HeartbeatSecs = 30
	assert.Equal(t, "1m0s", cfg.Task.RetryDelay().String())
	assert.Equal(t, "1h30m0s", cfg.Task.Timeout().String())
	assert.Equal(t, "30s", cfg.Task.Heartbeat().String())
	assert.Equal(t, "2s", cfg.Chambers.A.RetryDelay().String())
	assert.Equal(t, "30s", cfg.Browser.PageTimeout().String())
}
