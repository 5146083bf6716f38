package deploy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/stackdeploy/internal/core/database"
	"github.com/artpar/stackdeploy/internal/core/preflight"
	"github.com/artpar/stackdeploy/internal/core/sequencer"
)

// ErrInvalidOptions is wrapped by Options.Validate failures.
var ErrInvalidOptions = errors.New("invalid deploy options")

// Roles maps each part of the stack to its compose service name.
type Roles struct {
	Database     string
	Cache        string
	App          string
	Proxy        string
	LoadBalancer string
}

// DefaultRoles returns the service names of the reference compose file.
func DefaultRoles() Roles {
	return Roles{
		Database:     "mysql",
		Cache:        "redis",
		App:          "app",
		Proxy:        "nginx",
		LoadBalancer: "haproxy",
	}
}

func (r Roles) all() []string {
	return []string{r.Database, r.Cache, r.App, r.Proxy, r.LoadBalancer}
}

// DatabaseOptions holds the credentials and tuning of the database service.
type DatabaseOptions struct {
	RootUser        string
	RootPassword    string
	MonitorUser     string
	MonitorPassword string
	Tuning          database.Tuning
}

// MonitoringOptions configures the optional monitoring stack.
type MonitoringOptions struct {
	Enabled bool
	// Settle is waited after the monitoring stack starts.
	Settle time.Duration
	// PrometheusURL is how this process reaches Prometheus.
	PrometheusURL string
	// DataSourceURL is how Grafana reaches Prometheus, usually a service name.
	DataSourceURL  string
	DataSourceName string
}

// Options is the immutable input of one deployment run.
type Options struct {
	Project string
	Roles   Roles

	RequiredTools []string
	DataPath      string
	MinFreeDisk   int64

	Database      DatabaseOptions
	CachePassword string

	// HealthURL is the proxy health endpoint checked after startup.
	HealthURL string
	// AppCheck is the application runtime self-check run inside its container.
	AppCheck []string

	Readiness  sequencer.RetryPolicy
	Monitoring MonitoringOptions

	// PublicHost is used to print endpoint URLs.
	PublicHost string
	// LogTail is how many log lines of a service are shown when it never
	// became ready.
	LogTail int
}

// DefaultOptions returns options with every non-secret field defaulted.
func DefaultOptions() Options {
	return Options{
		Project:       "stackdeploy",
		Roles:         DefaultRoles(),
		RequiredTools: []string{"docker"},
		DataPath:      "/var/lib/docker",
		MinFreeDisk:   preflight.DefaultMinFreeDisk,
		Database: DatabaseOptions{
			RootUser:    "root",
			MonitorUser: "exporter",
			Tuning:      database.DefaultTuning(),
		},
		HealthURL: "http://localhost/health",
		AppCheck:  []string{"php-fpm", "-t"},
		Readiness: sequencer.DefaultReadinessPolicy(),
		Monitoring: MonitoringOptions{
			Settle:         10 * time.Second,
			PrometheusURL:  "http://localhost:9090",
			DataSourceURL:  "http://prometheus:9090",
			DataSourceName: "Prometheus",
		},
		PublicHost: "localhost",
		LogTail:    20,
	}
}

// Validate reports missing required values. Secret values are never echoed.
func (o Options) Validate() error {
	var missing []string
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	require("project", o.Project)
	for i, role := range []string{"database", "cache", "app", "proxy", "load balancer"} {
		require(role+" service", o.Roles.all()[i])
	}
	require("database root user", o.Database.RootUser)
	require("database root password", o.Database.RootPassword)
	require("database monitor user", o.Database.MonitorUser)
	require("database monitor password", o.Database.MonitorPassword)
	require("health URL", o.HealthURL)
	if len(o.AppCheck) == 0 {
		missing = append(missing, "app check command")
	}
	if o.Monitoring.Enabled {
		require("prometheus URL", o.Monitoring.PrometheusURL)
		require("data source URL", o.Monitoring.DataSourceURL)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidOptions, strings.Join(missing, ", "))
	}
	if o.Readiness.MaxAttempts < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, sequencer.ErrInvalidPolicy)
	}
	return nil
}
