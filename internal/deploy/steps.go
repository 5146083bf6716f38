package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/stackdeploy/internal/core/database"
	"github.com/artpar/stackdeploy/internal/core/preflight"
	"github.com/artpar/stackdeploy/internal/core/sequencer"
	"github.com/artpar/stackdeploy/internal/shell/docker"
	"github.com/artpar/stackdeploy/internal/shell/grafana"
)

// Step names, in pipeline order.
const (
	StepCheckDependencies = "checkDependencies"
	StepBuildImages       = "buildImages"
	StepStopOldServices   = "stopOldServices"
	StepStartCoreServices = "startCoreServices"
	StepOptimizeDatabase  = "optimizeDatabase"
	StepSetupMonitoring   = "setupMonitoring"
	StepHealthCheck       = "healthCheck"
	StepStartLoadBalancer = "startLoadBalancer"
)

// Task names referenced outside the step builders.
const (
	taskStartData = "database and cache"
	taskStartApp  = "application and proxy"
)

var (
	// ErrAdminCommand is wrapped when a database administration batch fails.
	ErrAdminCommand = errors.New("database administration command failed")

	// ErrHealthCheckFailed is wrapped by post-deploy health check failures.
	ErrHealthCheckFailed = errors.New("health check failed")
)

// Pipeline returns the eight deployment steps in execution order.
func (d *Deployer) Pipeline() sequencer.Pipeline {
	return sequencer.Pipeline{Steps: []sequencer.Step{
		d.checkDependencies(),
		d.buildImages(),
		d.stopOldServices(),
		d.startCoreServices(),
		d.optimizeDatabase(),
		d.setupMonitoring(),
		d.healthCheck(),
		d.startLoadBalancer(),
	}}
}

// =============================================================================
// 1. Preconditions
// =============================================================================

func (d *Deployer) checkDependencies() sequencer.Step {
	return sequencer.Step{
		Name:        StepCheckDependencies,
		Description: "checking host dependencies",
		Policy:      sequencer.FailFatal,
		Tasks: []sequencer.Task{
			{
				Name: "required tools",
				Kind: sequencer.KindPrecondition,
				Run: func(context.Context) error {
					found := d.deps.Host.FindTools(d.opts.RequiredTools)
					return preflight.CheckTools(d.opts.RequiredTools, found)
				},
			},
			{
				Name: "docker daemon",
				Kind: sequencer.KindPrecondition,
				Run: func(ctx context.Context) error {
					if err := d.deps.Daemon.Ping(ctx); err != nil {
						return fmt.Errorf("docker daemon not reachable: %w", err)
					}
					return nil
				},
			},
			{
				Name: "free disk",
				Kind: sequencer.KindPrecondition,
				Run: func(context.Context) error {
					usage, err := d.deps.Host.FreeDisk(d.opts.DataPath)
					if err != nil {
						return err
					}
					return preflight.CheckDisk(usage, d.opts.MinFreeDisk)
				},
			},
		},
	}
}

// =============================================================================
// 2. Images
// =============================================================================

func (d *Deployer) buildImages() sequencer.Step {
	build := func(service string) sequencer.Task {
		return sequencer.Task{
			Name: "build " + service,
			Kind: sequencer.KindBuild,
			Run: func(ctx context.Context) error {
				tag, err := d.deps.Stack.Build(ctx, service, d.deps.BuildOutput)
				if err != nil {
					return fmt.Errorf("build %s image: %w", service, err)
				}
				d.logger.Info("image built", "service", service, "image", tag)
				return nil
			},
		}
	}

	return sequencer.Step{
		Name:        StepBuildImages,
		Description: "building application and proxy images",
		Policy:      sequencer.FailFatal,
		Tasks: []sequencer.Task{
			build(d.opts.Roles.App),
			build(d.opts.Roles.Proxy),
		},
	}
}

// =============================================================================
// 3. Teardown
// =============================================================================

func (d *Deployer) stopOldServices() sequencer.Step {
	return sequencer.Step{
		Name:        StepStopOldServices,
		Description: "stopping previous deployment",
		Policy:      sequencer.FailWarn,
		Tasks: []sequencer.Task{{
			Name: "teardown",
			Kind: sequencer.KindRuntime,
			Run: func(ctx context.Context) error {
				var errs []error
				if err := d.deps.Stack.Down(ctx); err != nil {
					d.logger.Warn("could not fully remove previous stack", "error", err)
					errs = append(errs, err)
				}
				// Monitoring leftovers go too, even when monitoring is now off.
				if d.deps.Monitoring != nil {
					if err := d.deps.Monitoring.Down(ctx); err != nil {
						d.logger.Warn("could not fully remove previous monitoring stack", "error", err)
						errs = append(errs, err)
					}
				}
				return errors.Join(errs...)
			},
		}},
	}
}

// =============================================================================
// 4. Core Services
// =============================================================================

func (d *Deployer) startCoreServices() sequencer.Step {
	roles := d.opts.Roles
	return sequencer.Step{
		Name:        StepStartCoreServices,
		Description: "starting core services",
		Policy:      sequencer.FailFatal,
		Tasks: []sequencer.Task{
			{
				Name:  taskStartData,
				Kind:  sequencer.KindRuntime,
				Run:   d.up(roles.Database, roles.Cache),
				Ready: d.databaseReady,
				Retry: d.opts.Readiness,
			},
			{
				Name:  taskStartApp,
				Kind:  sequencer.KindRuntime,
				Run:   d.up(roles.App, roles.Proxy),
				Ready: d.serviceRunning(roles.App),
				Retry: d.opts.Readiness,
			},
		},
	}
}

// databaseReady pings the database server from inside its container.
func (d *Deployer) databaseReady(ctx context.Context) (bool, error) {
	cmd := database.PingCommand(d.opts.Database.RootUser, d.opts.Database.RootPassword)
	res, err := d.deps.Stack.Exec(ctx, d.opts.Roles.Database, docker.ExecSpec{Cmd: cmd.Cmd, Env: cmd.Env})
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

// serviceRunning is ready once the service's container runs and, when it
// declares a healthcheck, reports healthy.
func (d *Deployer) serviceRunning(service string) sequencer.Probe {
	return func(ctx context.Context) (bool, error) {
		statuses, err := d.deps.Stack.Status(ctx)
		if err != nil {
			return false, err
		}
		for _, s := range statuses {
			if s.Service != service {
				continue
			}
			if s.State != string(docker.ContainerStatusRunning) {
				return false, fmt.Errorf("%s is %s", service, s.State)
			}
			return s.Health == "" || s.Health == "healthy", nil
		}
		return false, fmt.Errorf("%s has no container", service)
	}
}

// =============================================================================
// 5. Database Administration
// =============================================================================

func (d *Deployer) optimizeDatabase() sequencer.Step {
	db := d.opts.Database
	return sequencer.Step{
		Name:        StepOptimizeDatabase,
		Description: "configuring database",
		Policy:      sequencer.FailFatal,
		Tasks: []sequencer.Task{
			{
				Name: "monitoring account",
				Kind: sequencer.KindAdminCommand,
				Run: func(ctx context.Context) error {
					sql, err := database.MonitorAccountBatch(database.MonitorAccount{
						User:     db.MonitorUser,
						Password: db.MonitorPassword,
					})
					if err != nil {
						return err
					}
					return d.execSQL(ctx, "monitoring account", sql)
				},
			},
			{
				Name: "runtime tuning",
				Kind: sequencer.KindAdminCommand,
				Run: func(ctx context.Context) error {
					return d.execSQL(ctx, "runtime tuning", database.TuningBatch(db.Tuning))
				},
			},
		},
	}
}

// execSQL runs a batch through the database client. The batch may carry
// credentials and is never logged.
func (d *Deployer) execSQL(ctx context.Context, what, sql string) error {
	cmd := database.BatchCommand(d.opts.Database.RootUser, d.opts.Database.RootPassword, sql)
	res, err := d.deps.Stack.Exec(ctx, d.opts.Roles.Database, docker.ExecSpec{Cmd: cmd.Cmd, Env: cmd.Env})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAdminCommand, what, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: %s exited %d: %s", ErrAdminCommand, what, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	d.logger.Info("database batch applied", "batch", what)
	return nil
}

// =============================================================================
// 6. Monitoring
// =============================================================================

func (d *Deployer) setupMonitoring() sequencer.Step {
	mon := d.opts.Monitoring
	return sequencer.Step{
		Name:        StepSetupMonitoring,
		Description: "starting monitoring stack",
		Policy:      sequencer.FailWarn,
		Skip:        !mon.Enabled,
		Tasks: []sequencer.Task{
			{
				Name: "monitoring stack",
				Kind: sequencer.KindMonitoring,
				Run: func(ctx context.Context) error {
					return d.deps.Monitoring.Up(ctx)
				},
				Settle: mon.Settle,
			},
			{
				Name: "prometheus",
				Kind: sequencer.KindMonitoring,
				Run: func(ctx context.Context) error {
					version, err := d.deps.Prometheus.Ready(ctx)
					if err != nil {
						return err
					}
					d.logger.Info("prometheus serving", "version", version)
					return nil
				},
			},
			{
				Name: "grafana",
				Kind: sequencer.KindMonitoring,
				Run: func(ctx context.Context) error {
					health, err := d.deps.Grafana.Health(ctx)
					if err != nil {
						return fmt.Errorf("grafana health: %w", err)
					}
					d.logger.Info("grafana serving", "version", health.Version)
					return nil
				},
			},
			{
				Name: "grafana data source",
				Kind: sequencer.KindMonitoring,
				Run: func(ctx context.Context) error {
					id, err := d.deps.Grafana.EnsureDataSource(ctx, grafana.PrometheusDataSource(mon.DataSourceName, mon.DataSourceURL))
					if err != nil {
						return fmt.Errorf("register grafana data source: %w", err)
					}
					d.logger.Info("grafana data source registered", "name", mon.DataSourceName, "id", id)
					return nil
				},
			},
		},
	}
}

// =============================================================================
// 7. Health Checks
// =============================================================================

func (d *Deployer) healthCheck() sequencer.Step {
	roles := d.opts.Roles
	return sequencer.Step{
		Name:        StepHealthCheck,
		Description: "running health checks",
		Policy:      sequencer.FailFatal,
		Tasks: []sequencer.Task{
			{
				Name: "proxy",
				Kind: sequencer.KindHealthCheck,
				Run: func(ctx context.Context) error {
					if err := d.deps.Health.Check(ctx, d.opts.HealthURL); err != nil {
						return fmt.Errorf("%w: %s: %w", ErrHealthCheckFailed, roles.Proxy, err)
					}
					return nil
				},
			},
			{
				Name: "application runtime",
				Kind: sequencer.KindHealthCheck,
				Run: func(ctx context.Context) error {
					res, err := d.deps.Stack.Exec(ctx, roles.App, docker.ExecSpec{Cmd: d.opts.AppCheck})
					if err != nil {
						return fmt.Errorf("%w: %s: %w", ErrHealthCheckFailed, roles.App, err)
					}
					if res.ExitCode != 0 {
						return fmt.Errorf("%w: %s self-check exited %d: %s", ErrHealthCheckFailed, roles.App, res.ExitCode, strings.TrimSpace(res.Stderr))
					}
					return nil
				},
			},
			{
				Name: "cache",
				Kind: sequencer.KindHealthCheck,
				Run: func(ctx context.Context) error {
					res, err := d.deps.Stack.Exec(ctx, roles.Cache, cachePing(d.opts.CachePassword))
					if err != nil {
						return fmt.Errorf("%w: %s: %w", ErrHealthCheckFailed, roles.Cache, err)
					}
					if reply := strings.TrimSpace(res.Stdout); res.ExitCode != 0 || reply != "PONG" {
						return fmt.Errorf("%w: %s ping answered %q", ErrHealthCheckFailed, roles.Cache, reply)
					}
					return nil
				},
			},
		},
	}
}

// cachePing is redis-cli ping with the password passed through the
// environment so it stays out of the process list.
func cachePing(password string) docker.ExecSpec {
	spec := docker.ExecSpec{Cmd: []string{"redis-cli", "--no-auth-warning", "ping"}}
	if password != "" {
		spec.Env = []string{"REDISCLI_AUTH=" + password}
	}
	return spec
}

// =============================================================================
// 8. Load Balancer
// =============================================================================

func (d *Deployer) startLoadBalancer() sequencer.Step {
	return sequencer.Step{
		Name:        StepStartLoadBalancer,
		Description: "starting load balancer",
		Policy:      sequencer.FailFatal,
		Tasks: []sequencer.Task{{
			Name: "load balancer",
			Kind: sequencer.KindRuntime,
			Run:  d.up(d.opts.Roles.LoadBalancer),
		}},
	}
}

func (d *Deployer) up(services ...string) sequencer.Action {
	return func(ctx context.Context) error {
		return d.deps.Stack.Up(ctx, services...)
	}
}
