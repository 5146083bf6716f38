package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/stackdeploy/internal/core/compose"
	"github.com/artpar/stackdeploy/internal/deploy"
	"github.com/artpar/stackdeploy/internal/shell/console"
	"github.com/artpar/stackdeploy/internal/shell/docker"
	"github.com/artpar/stackdeploy/internal/shell/grafana"
	"github.com/artpar/stackdeploy/internal/shell/host"
	"github.com/artpar/stackdeploy/internal/shell/probe"
	"github.com/artpar/stackdeploy/internal/shell/prometheus"
)

// healthTimeout bounds a single HTTP health probe.
const healthTimeout = 5 * time.Second

// deployStack loads configuration, wires the collaborators and runs one
// deployment. Failures before the pipeline starts are returned as errors;
// a failed pipeline is logged and reported as errDeployFailed.
func deployStack(ctx context.Context, f flags, stdout, stderr io.Writer) error {
	cfg, err := LoadConfig(f.envFile)
	if err != nil {
		return err
	}
	opts, err := cfg.DeployOptions()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	runID := uuid.NewString()
	logger := SetupLogger(cfg, stderr, f.noColor).With("run_id", runID)
	logger.Info("starting stackdeploy", "version", Version, "project", opts.Project)

	spec, dir, err := loadCompose(f.composeFile, opts.Project, cfg.Env)
	if err != nil {
		return err
	}

	dockerClient, err := docker.NewDockerClient(ctx, cfg.DockerHost)
	if err != nil {
		return err
	}
	defer dockerClient.Close()

	monitoringProject := docker.Project{Name: opts.Project + "-monitoring", RunID: runID}
	if opts.Monitoring.Enabled {
		monitoringProject.Spec, monitoringProject.Dir, err = loadCompose(f.monitoringComposeFile, monitoringProject.Name, cfg.Env)
		if err != nil {
			return err
		}
	}

	deps := deploy.Deps{
		Daemon: dockerClient,
		Host:   host.NewInspector(),
		Stack: docker.NewOrchestrator(dockerClient, logger, docker.Project{
			Name:  opts.Project,
			Dir:   dir,
			RunID: runID,
			Spec:  spec,
		}),
		Monitoring:     docker.NewOrchestrator(dockerClient, logger, monitoringProject),
		MonitoringSpec: monitoringProject.Spec,
		Health:         probe.NewHTTPChecker(healthTimeout),
		BuildOutput:    stdout,
		Logger:         logger,
	}
	if opts.Monitoring.Enabled {
		prom, err := prometheus.NewClient(prometheus.Config{Address: opts.Monitoring.PrometheusURL}, logger)
		if err != nil {
			return err
		}
		deps.Prometheus = prom
		deps.Grafana = grafana.NewClient(grafana.Config{
			BaseURL:  cfg.GrafanaURL,
			User:     cfg.GrafanaUser,
			Password: cfg.GrafanaPassword,
		}, logger)
	}

	deployer, err := deploy.New(opts, spec, deps)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	report, runErr := deployer.Run(ctx)

	if cfg.MetricsTextfile != "" {
		metrics := prometheus.NewRunMetrics(opts.Project)
		metrics.Observe(report)
		if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Warn("could not write run metrics", "path", cfg.MetricsTextfile, "error", err)
		}
	}

	summary := deployer.Summary(context.WithoutCancel(ctx), runID, report)
	if err := console.NewSummaryWriter(stdout, f.noColor).Write(summary); err != nil {
		logger.Warn("could not print summary", "error", err)
	}

	if runErr != nil {
		logger.Error("deployment failed", "error", runErr)
		return errDeployFailed
	}
	logger.Info("deployment complete", "duration", report.FinishedAt.Sub(report.StartedAt))
	return nil
}

// loadCompose reads and parses a compose file, interpolating env. It returns
// the parsed file and the absolute directory holding it.
func loadCompose(path, project string, env map[string]string) (*compose.ParsedSpec, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read compose file: %w", err)
	}
	if missing := compose.MissingVariables(string(content), env); len(missing) > 0 {
		return nil, "", fmt.Errorf("%s references undefined variables: %s", path, strings.Join(missing, ", "))
	}

	spec, err := compose.ParseComposeSpec(string(content), compose.ParseOptions{
		ProjectName: project,
		Environment: env,
	})
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	return spec, filepath.Dir(abs), nil
}
