// Package deploy assembles the stack deployment pipeline from options and
// collaborators and runs it with the sequencer.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/artpar/stackdeploy/internal/core/compose"
	"github.com/artpar/stackdeploy/internal/core/deployment"
	"github.com/artpar/stackdeploy/internal/core/health"
	"github.com/artpar/stackdeploy/internal/core/preflight"
	"github.com/artpar/stackdeploy/internal/core/sequencer"
	"github.com/artpar/stackdeploy/internal/shell/console"
	"github.com/artpar/stackdeploy/internal/shell/docker"
	"github.com/artpar/stackdeploy/internal/shell/grafana"
)

// =============================================================================
// Collaborators
// =============================================================================

// Stack is a compose project on the Docker host.
type Stack interface {
	Build(ctx context.Context, service string, out io.Writer) (string, error)
	Up(ctx context.Context, services ...string) error
	Down(ctx context.Context) error
	Exec(ctx context.Context, service string, spec docker.ExecSpec) (*docker.ExecResult, error)
	Logs(ctx context.Context, service string, tail string) (string, error)
	Status(ctx context.Context) ([]docker.ServiceStatus, error)
}

// Daemon is the Docker engine connection.
type Daemon interface {
	Ping(ctx context.Context) error
}

// Host reports facts about the local machine.
type Host interface {
	FreeDisk(path string) (preflight.DiskUsage, error)
	FindTools(names []string) map[string]bool
}

// HealthChecker probes an HTTP health endpoint.
type HealthChecker interface {
	Check(ctx context.Context, url string) error
}

// Prometheus reports whether the metrics server is serving.
type Prometheus interface {
	Ready(ctx context.Context) (string, error)
}

// Grafana registers data sources.
type Grafana interface {
	Health(ctx context.Context) (*grafana.HealthResponse, error)
	EnsureDataSource(ctx context.Context, ds grafana.DataSource) (int64, error)
}

// Deps are the collaborators a Deployer drives. Monitoring, Prometheus and
// Grafana may be nil when monitoring is disabled.
type Deps struct {
	Daemon     Daemon
	Host       Host
	Stack      Stack
	Monitoring Stack
	Health     HealthChecker
	Prometheus Prometheus
	Grafana    Grafana

	// MonitoringSpec lists the monitoring services whose ports are shown
	// in the summary. Optional.
	MonitoringSpec *compose.ParsedSpec

	// BuildOutput receives image build progress; nil discards it.
	BuildOutput io.Writer
	Clock       sequencer.Clock
	Logger      *slog.Logger
}

// =============================================================================
// Deployer
// =============================================================================

// Deployer runs the eight-step deployment of one stack.
type Deployer struct {
	opts   Options
	deps   Deps
	spec   *compose.ParsedSpec
	logger *slog.Logger
}

// New validates opts against the parsed compose file and returns a Deployer.
func New(opts Options, spec *compose.ParsedSpec, deps Deps) (*Deployer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if spec == nil {
		return nil, fmt.Errorf("%w: no compose file", ErrInvalidOptions)
	}
	if _, err := spec.Select(opts.Roles.all()...); err != nil {
		return nil, err
	}
	for _, svc := range []string{opts.Roles.App, opts.Roles.Proxy} {
		if s, _ := spec.Service(svc); s.Build == nil {
			return nil, fmt.Errorf("%w: service %s", compose.ErrServiceNoBuild, svc)
		}
	}

	if deps.Daemon == nil || deps.Host == nil || deps.Stack == nil || deps.Health == nil {
		return nil, fmt.Errorf("%w: daemon, host, stack and health checker are required", ErrInvalidOptions)
	}
	if opts.Monitoring.Enabled && (deps.Monitoring == nil || deps.Prometheus == nil || deps.Grafana == nil) {
		return nil, fmt.Errorf("%w: monitoring enabled without monitoring collaborators", ErrInvalidOptions)
	}
	if deps.Clock == nil {
		deps.Clock = sequencer.RealClock{}
	}
	if deps.BuildOutput == nil {
		deps.BuildOutput = io.Discard
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Deployer{
		opts:   opts,
		deps:   deps,
		spec:   spec,
		logger: logger.With("component", "deploy", "project", opts.Project),
	}, nil
}

// Run executes the pipeline. The report is always returned; the error is a
// *sequencer.DeployError when a fatal step failed.
func (d *Deployer) Run(ctx context.Context) (*sequencer.Report, error) {
	seq := sequencer.New(d.deps.Clock, d.logger)
	report, err := seq.Run(ctx, d.Pipeline())

	var dErr *sequencer.DeployError
	if errors.As(err, &dErr) && dErr.Kind == sequencer.KindReadinessTimeout {
		d.logServiceTail(ctx, dErr.Task)
	}
	return report, err
}

// Summary collects the endpoints and service states printed after a run.
func (d *Deployer) Summary(ctx context.Context, runID string, report *sequencer.Report) console.Summary {
	published := d.spec.Services
	if d.opts.Monitoring.Enabled && d.deps.MonitoringSpec != nil {
		published = append(append([]compose.Service(nil), published...), d.deps.MonitoringSpec.Services...)
	}
	summary := console.Summary{
		Project:   d.opts.Project,
		RunID:     runID,
		Report:    report,
		Endpoints: deployment.Endpoints(d.opts.PublicHost, published),
	}

	statuses, err := d.deps.Stack.Status(ctx)
	if err != nil {
		d.logger.Warn("could not read service status", "error", err)
	}
	if d.opts.Monitoring.Enabled && d.deps.Monitoring != nil {
		monitoring, err := d.deps.Monitoring.Status(ctx)
		if err != nil {
			d.logger.Warn("could not read monitoring status", "error", err)
		}
		statuses = append(statuses, monitoring...)
	}
	rollup := make([]health.Status, 0, len(statuses))
	for _, s := range statuses {
		summary.Services = append(summary.Services, console.ServiceRow{
			Service: s.Service,
			State:   s.State,
			Health:  s.Health,
		})
		rollup = append(rollup, health.ServiceHealth(s.State, s.Health))
	}
	summary.Overall = health.Aggregate(rollup)
	return summary
}

// logServiceTail prints the last log lines of the services behind a
// readiness task, which usually say why they never came up.
func (d *Deployer) logServiceTail(ctx context.Context, task string) {
	var services []string
	switch task {
	case taskStartData:
		services = []string{d.opts.Roles.Database}
	case taskStartApp:
		services = []string{d.opts.Roles.App}
	default:
		return
	}

	tail := strconv.Itoa(d.opts.LogTail)
	for _, svc := range services {
		logs, err := d.deps.Stack.Logs(context.WithoutCancel(ctx), svc, tail)
		if err != nil {
			d.logger.Warn("could not read service logs", "service", svc, "error", err)
			continue
		}
		d.logger.Error("last log lines", "service", svc, "logs", logs)
	}
}
