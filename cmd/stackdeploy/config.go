package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/artpar/stackdeploy/internal/core/database"
	"github.com/artpar/stackdeploy/internal/core/preflight"
	"github.com/artpar/stackdeploy/internal/core/sequencer"
	"github.com/artpar/stackdeploy/internal/deploy"
	"github.com/artpar/stackdeploy/internal/shell/console"
)

// ErrConfigNotFound is returned when the env file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// =============================================================================
// Config Types
// =============================================================================

// Config holds everything read from the env file. Keys are the upper-case
// names of the mapstructure tags.
type Config struct {
	ProjectName string `mapstructure:"compose_project_name"`
	DockerHost  string `mapstructure:"docker_host"`

	DBName            string `mapstructure:"db_name"`
	DBUser            string `mapstructure:"db_user"`
	DBPassword        string `mapstructure:"db_password"`
	DBRootPassword    string `mapstructure:"db_root_password"`
	DBMonitorUser     string `mapstructure:"db_monitor_user"`
	DBMonitorPassword string `mapstructure:"db_monitor_password"`
	RedisPassword     string `mapstructure:"redis_password"`

	DBMaxConnections   int     `mapstructure:"db_max_connections"`
	DBBufferPoolSize   string  `mapstructure:"db_buffer_pool_size"`
	DBSlowQueryLog     bool    `mapstructure:"db_slow_query_log"`
	DBLongQuerySeconds float64 `mapstructure:"db_long_query_seconds"`

	RequiredTools []string `mapstructure:"required_tools"`
	DataPath      string   `mapstructure:"data_path"`
	MinFreeDisk   string   `mapstructure:"min_free_disk"`

	HealthURL         string        `mapstructure:"health_url"`
	AppCheck          string        `mapstructure:"app_check"`
	ReadinessAttempts int           `mapstructure:"readiness_attempts"`
	ReadinessInterval time.Duration `mapstructure:"readiness_interval"`

	EnableMonitoring        bool          `mapstructure:"enable_monitoring"`
	MonitoringSettle        time.Duration `mapstructure:"monitoring_settle"`
	PrometheusURL           string        `mapstructure:"prometheus_url"`
	PrometheusDataSourceURL string        `mapstructure:"prometheus_datasource_url"`
	GrafanaURL              string        `mapstructure:"grafana_url"`
	GrafanaUser             string        `mapstructure:"grafana_user"`
	GrafanaPassword         string        `mapstructure:"grafana_password"`
	MetricsTextfile         string        `mapstructure:"metrics_textfile"`

	PublicHost string `mapstructure:"public_host"`
	LogTail    int    `mapstructure:"log_tail"`
	LogLevel   string `mapstructure:"log_level"`
	LogFormat  string `mapstructure:"log_format"`

	// Env holds every key of the file, upper-cased, for compose interpolation.
	Env map[string]string `mapstructure:"-"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig reads the KEY=value env file at path. STACKDEPLOY_-prefixed
// environment variables override file values.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s (copy .env.example to %s and fill in the passwords)", ErrConfigNotFound, path, path)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("STACKDEPLOY")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Env = make(map[string]string, len(v.AllKeys()))
	for _, key := range v.AllKeys() {
		cfg.Env[strings.ToUpper(key)] = v.GetString(key)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := deploy.DefaultOptions()
	tuning := database.DefaultTuning()

	v.SetDefault("compose_project_name", defaults.Project)
	v.SetDefault("docker_host", "")

	// Secrets have empty defaults so environment overrides are seen by Unmarshal.
	v.SetDefault("db_name", "app")
	v.SetDefault("db_user", "app")
	v.SetDefault("db_password", "")
	v.SetDefault("db_root_password", "")
	v.SetDefault("db_monitor_user", defaults.Database.MonitorUser)
	v.SetDefault("db_monitor_password", "")
	v.SetDefault("redis_password", "")

	v.SetDefault("db_max_connections", tuning.MaxConnections)
	v.SetDefault("db_buffer_pool_size", "256MiB")
	v.SetDefault("db_slow_query_log", tuning.SlowQueryLog)
	v.SetDefault("db_long_query_seconds", tuning.LongQuerySeconds)

	v.SetDefault("required_tools", defaults.RequiredTools)
	v.SetDefault("data_path", defaults.DataPath)
	v.SetDefault("min_free_disk", "10GiB")

	v.SetDefault("health_url", defaults.HealthURL)
	v.SetDefault("app_check", strings.Join(defaults.AppCheck, " "))
	v.SetDefault("readiness_attempts", defaults.Readiness.MaxAttempts)
	v.SetDefault("readiness_interval", defaults.Readiness.Interval.String())

	v.SetDefault("enable_monitoring", false)
	v.SetDefault("monitoring_settle", defaults.Monitoring.Settle.String())
	v.SetDefault("prometheus_url", defaults.Monitoring.PrometheusURL)
	v.SetDefault("prometheus_datasource_url", defaults.Monitoring.DataSourceURL)
	v.SetDefault("grafana_url", "http://localhost:3000")
	v.SetDefault("grafana_user", "admin")
	v.SetDefault("grafana_password", "")
	v.SetDefault("metrics_textfile", "")

	v.SetDefault("public_host", defaults.PublicHost)
	v.SetDefault("log_tail", defaults.LogTail)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

// DeployOptions converts the configuration into deployment options.
func (c *Config) DeployOptions() (deploy.Options, error) {
	opts := deploy.DefaultOptions()

	minFree, err := optionalSize(c.MinFreeDisk, preflight.DefaultMinFreeDisk)
	if err != nil {
		return deploy.Options{}, fmt.Errorf("MIN_FREE_DISK: %w", err)
	}
	// Blank leaves the server's buffer pool alone.
	bufferPool, err := optionalSize(c.DBBufferPoolSize, 0)
	if err != nil {
		return deploy.Options{}, fmt.Errorf("DB_BUFFER_POOL_SIZE: %w", err)
	}

	opts.Project = c.ProjectName
	opts.RequiredTools = c.RequiredTools
	opts.DataPath = c.DataPath
	opts.MinFreeDisk = minFree

	opts.Database = deploy.DatabaseOptions{
		RootUser:        "root",
		RootPassword:    c.DBRootPassword,
		MonitorUser:     c.DBMonitorUser,
		MonitorPassword: c.DBMonitorPassword,
		Tuning: database.Tuning{
			MaxConnections:        c.DBMaxConnections,
			InnoDBBufferPoolBytes: bufferPool,
			SlowQueryLog:          c.DBSlowQueryLog,
			LongQuerySeconds:      c.DBLongQuerySeconds,
		},
	}
	opts.CachePassword = c.RedisPassword

	opts.HealthURL = c.HealthURL
	opts.AppCheck = strings.Fields(c.AppCheck)
	opts.Readiness = sequencer.RetryPolicy{
		MaxAttempts: c.ReadinessAttempts,
		Interval:    c.ReadinessInterval,
	}

	opts.Monitoring.Enabled = c.EnableMonitoring
	opts.Monitoring.Settle = c.MonitoringSettle
	opts.Monitoring.PrometheusURL = c.PrometheusURL
	opts.Monitoring.DataSourceURL = c.PrometheusDataSourceURL

	opts.PublicHost = c.PublicHost
	opts.LogTail = c.LogTail

	if err := opts.Validate(); err != nil {
		return deploy.Options{}, err
	}
	return opts, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config, w io.Writer, noColor bool) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = console.NewHandler(w, &console.Options{Level: level, NoColor: noColor})
	}

	return slog.New(handler)
}

// optionalSize parses s, returning def when s is blank.
func optionalSize(s string, def int64) (int64, error) {
	n, err := preflight.ParseSize(s)
	if errors.Is(err, preflight.ErrEmptySize) {
		return def, nil
	}
	return n, err
}
