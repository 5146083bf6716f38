package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/artpar/stackdeploy/internal/core/compose"
	coredeployment "github.com/artpar/stackdeploy/internal/core/deployment"
)

// stopTimeout is how long a container gets to exit before it is killed.
const stopTimeout = 10 * time.Second

// =============================================================================
// Orchestrator - Manages a Compose Project
// =============================================================================

// Project identifies one compose project on the Docker host.
type Project struct {
	// Name prefixes every container, network and volume of the project.
	Name string
	// Dir is the directory build contexts and bind mounts resolve against.
	Dir string
	// RunID labels the containers created by this run.
	RunID string
	// Spec is the parsed compose file. Down and Status work without it.
	Spec *compose.ParsedSpec
}

// ServiceStatus is the observed state of one project container.
type ServiceStatus struct {
	Service   string
	Container string
	Image     string
	State     string
	Health    string
	Ports     []PortBinding
}

// Orchestrator runs the services of a single compose project.
type Orchestrator struct {
	docker  Client
	logger  *slog.Logger
	project Project
}

// NewOrchestrator creates an orchestrator for project.
func NewOrchestrator(docker Client, logger *slog.Logger, project Project) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		docker:  docker,
		logger:  logger.With("component", "orchestrator", "project", project.Name),
		project: project,
	}
}

// =============================================================================
// Build
// =============================================================================

// Build builds the image of a service that declares a build context and
// returns the tag it was built under.
func (o *Orchestrator) Build(ctx context.Context, service string, out io.Writer) (string, error) {
	svc, err := o.service(service)
	if err != nil {
		return "", err
	}
	if svc.Build == nil {
		return "", NewDockerError("Build", "service", service, "service has no build context", compose.ErrServiceNoBuild)
	}

	tag := o.imageFor(svc)
	contextDir := svc.Build.Context
	if !filepath.IsAbs(contextDir) {
		contextDir = filepath.Join(o.project.Dir, contextDir)
	}

	o.logger.Info("building image", "service", service, "image", tag, "context", contextDir)
	start := time.Now()

	err = o.docker.BuildImage(ctx, BuildSpec{
		ContextDir: contextDir,
		Dockerfile: svc.Build.Dockerfile,
		Tag:        tag,
		Args:       svc.Build.Args,
		Labels: map[string]string{
			coredeployment.LabelManaged: "true",
			coredeployment.LabelProject: o.project.Name,
			coredeployment.LabelService: service,
		},
		Output: out,
	})
	if err != nil {
		return "", err
	}

	o.logger.Debug("image built", "service", service, "image", tag, "duration", time.Since(start).Round(time.Millisecond))
	return tag, nil
}

// =============================================================================
// Up
// =============================================================================

// Up creates and starts the named services in dependency order. A container
// left over from an earlier run under the same name is replaced.
func (o *Orchestrator) Up(ctx context.Context, services ...string) error {
	selected, err := o.selectServices(services)
	if err != nil {
		return err
	}

	networkName := coredeployment.NetworkName(o.project.Name)
	if err := o.ensureNetwork(ctx, networkName); err != nil {
		return fmt.Errorf("failed to create network: %w", err)
	}

	if err := o.ensureVolumes(ctx, selected); err != nil {
		return err
	}

	for _, svc := range coredeployment.TopologicalSort(selected) {
		if err := o.startService(ctx, svc, networkName); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) startService(ctx context.Context, svc compose.Service, networkName string) error {
	image := o.imageFor(svc)
	if svc.Build == nil {
		o.ensureImage(ctx, image)
	}

	plan := coredeployment.BuildContainerPlan(coredeployment.BuildContainerPlanParams{
		Project:     o.project.Name,
		RunID:       o.project.RunID,
		Service:     svc,
		NetworkName: networkName,
		Image:       image,
		ProjectDir:  o.project.Dir,
	})

	// Replace, never reuse: the image or environment may have changed.
	if err := o.docker.RemoveContainer(ctx, plan.Name, RemoveOptions{Force: true}); err != nil && !errors.Is(err, ErrContainerNotFound) {
		return fmt.Errorf("failed to remove stale container %s: %w", plan.Name, err)
	}

	containerID, err := o.docker.CreateContainer(ctx, containerSpecFromPlan(plan))
	if err != nil {
		return fmt.Errorf("failed to create container %s: %w", svc.Name, err)
	}
	o.logger.Debug("created container", "service", svc.Name, "container_id", shortID(containerID))

	if err := o.docker.StartContainer(ctx, containerID); err != nil && !errors.Is(err, ErrContainerAlreadyRunning) {
		return fmt.Errorf("failed to start container %s: %w", svc.Name, err)
	}
	o.logger.Info("started service", "service", svc.Name, "container", plan.Name)
	return nil
}

// =============================================================================
// Down
// =============================================================================

// Down stops and removes every container labelled with the project, then the
// project network. Named volumes are kept. It does not stop at the first
// failure; all failures are returned joined.
func (o *Orchestrator) Down(ctx context.Context) error {
	containers, err := o.docker.ListContainers(ctx, ListOptions{
		All:     true,
		Filters: map[string]string{"label": o.projectLabel()},
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	var errs []error
	timeout := stopTimeout
	for _, c := range containers {
		if c.Status == ContainerStatusRunning {
			if err := o.docker.StopContainer(ctx, c.ID, &timeout); err != nil && !errors.Is(err, ErrContainerNotRunning) {
				errs = append(errs, err)
			}
		}
		if err := o.docker.RemoveContainer(ctx, c.ID, RemoveOptions{Force: true}); err != nil && !errors.Is(err, ErrContainerNotFound) {
			errs = append(errs, err)
			continue
		}
		o.logger.Debug("removed container", "name", c.Name, "container_id", shortID(c.ID))
	}

	networkName := coredeployment.NetworkName(o.project.Name)
	if err := o.docker.RemoveNetwork(ctx, networkName); err != nil && !errors.Is(err, ErrNetworkNotFound) {
		errs = append(errs, err)
	}

	o.logger.Info("project removed", "containers", len(containers))
	return errors.Join(errs...)
}

// =============================================================================
// Exec, Logs and Status
// =============================================================================

// Exec runs spec inside the container of service.
func (o *Orchestrator) Exec(ctx context.Context, service string, spec ExecSpec) (*ExecResult, error) {
	return o.docker.Exec(ctx, coredeployment.ContainerName(o.project.Name, service), spec)
}

// Logs returns the last tail lines of a service's output.
func (o *Orchestrator) Logs(ctx context.Context, service string, tail string) (string, error) {
	return o.docker.ContainerLogs(ctx, coredeployment.ContainerName(o.project.Name, service), LogOptions{
		Tail:       tail,
		Timestamps: true,
	})
}

// Status lists the project's containers, sorted by service name.
func (o *Orchestrator) Status(ctx context.Context) ([]ServiceStatus, error) {
	containers, err := o.docker.ListContainers(ctx, ListOptions{
		All:     true,
		Filters: map[string]string{"label": o.projectLabel()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]ServiceStatus, 0, len(containers))
	for _, c := range containers {
		status := ServiceStatus{
			Service:   c.Labels[coredeployment.LabelService],
			Container: c.Name,
			Image:     c.Image,
			State:     c.State,
			Ports:     c.Ports,
		}
		// The list endpoint does not carry health; inspect when running.
		if c.Status == ContainerStatusRunning {
			if info, err := o.docker.InspectContainer(ctx, c.ID); err == nil {
				status.Health = info.Health
			}
		}
		result = append(result, status)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Service < result[j].Service })
	return result, nil
}

// =============================================================================
// Helper Methods
// =============================================================================

func (o *Orchestrator) service(name string) (compose.Service, error) {
	if o.project.Spec == nil {
		return compose.Service{}, NewDockerError("Lookup", "service", name, "project has no compose file", compose.ErrServiceNotFound)
	}
	svc, ok := o.project.Spec.Service(name)
	if !ok {
		return compose.Service{}, NewDockerError("Lookup", "service", name, "service not defined", compose.ErrServiceNotFound)
	}
	return svc, nil
}

func (o *Orchestrator) selectServices(names []string) ([]compose.Service, error) {
	if o.project.Spec == nil {
		return nil, fmt.Errorf("project %s: %w", o.project.Name, compose.ErrServiceNotFound)
	}
	if len(names) == 0 {
		return o.project.Spec.Services, nil
	}
	return o.project.Spec.Select(names...)
}

// imageFor returns the image a service runs. A service with a build context
// and no explicit image runs the project-scoped tag produced by Build.
func (o *Orchestrator) imageFor(svc compose.Service) string {
	if svc.Build != nil && svc.Image == "" {
		return coredeployment.ImageName(o.project.Name, svc.Name)
	}
	return svc.Image
}

func (o *Orchestrator) projectLabel() string {
	return fmt.Sprintf("%s=%s", coredeployment.LabelProject, o.project.Name)
}

// ensureNetwork creates the project network or reuses an existing one.
func (o *Orchestrator) ensureNetwork(ctx context.Context, networkName string) error {
	_, err := o.docker.CreateNetwork(ctx, NetworkSpec{
		Name:   networkName,
		Driver: "bridge",
		Labels: map[string]string{
			coredeployment.LabelManaged: "true",
			coredeployment.LabelProject: o.project.Name,
		},
	})
	if err != nil {
		if errors.Is(err, ErrNetworkAlreadyExists) {
			o.logger.Debug("network already exists, reusing", "network_name", networkName)
			return nil
		}
		return err
	}
	o.logger.Debug("created network", "network_name", networkName)
	return nil
}

// ensureVolumes creates the non-external named volumes the services mount.
func (o *Orchestrator) ensureVolumes(ctx context.Context, services []compose.Service) error {
	external := make(map[string]bool)
	for _, vol := range o.project.Spec.Volumes {
		external[vol.Name] = vol.External
	}

	seen := make(map[string]bool)
	for _, svc := range services {
		for _, m := range svc.Volumes {
			if m.Type != compose.VolumeMountTypeVolume || m.Source == "" || seen[m.Source] || external[m.Source] {
				continue
			}
			seen[m.Source] = true

			volumeName := coredeployment.VolumeName(o.project.Name, m.Source)
			_, err := o.docker.CreateVolume(ctx, VolumeSpec{
				Name: volumeName,
				Labels: map[string]string{
					coredeployment.LabelManaged: "true",
					coredeployment.LabelProject: o.project.Name,
				},
			})
			if err != nil {
				return fmt.Errorf("failed to create volume %s: %w", m.Source, err)
			}
			o.logger.Debug("volume ready", "volume_name", volumeName)
		}
	}
	return nil
}

// ensureImage pulls image when it is not present locally. A failed pull is
// logged only; container creation reports the definitive error.
func (o *Orchestrator) ensureImage(ctx context.Context, image string) {
	exists, _ := o.docker.ImageExists(ctx, image)
	if exists {
		return
	}
	o.logger.Info("pulling image", "image", image)
	if err := o.docker.PullImage(ctx, image); err != nil {
		o.logger.Warn("failed to pull image, trying anyway", "image", image, "error", err)
	}
}

// containerSpecFromPlan converts a pure container plan to a client spec.
func containerSpecFromPlan(plan coredeployment.ContainerPlan) ContainerSpec {
	spec := ContainerSpec{
		Name:           plan.Name,
		Image:          plan.Image,
		Command:        plan.Command,
		Entrypoint:     plan.Entrypoint,
		Env:            plan.Env,
		Labels:         plan.Labels,
		Networks:       plan.Networks,
		NetworkAliases: plan.NetworkAliases,
		RestartPolicy: RestartPolicy{
			Name:              plan.RestartPolicy.Name,
			MaximumRetryCount: plan.RestartPolicy.MaximumRetryCount,
		},
		Resources: ResourceLimits{
			CPULimit:    plan.Resources.CPULimit,
			MemoryLimit: plan.Resources.MemoryLimit,
		},
	}

	for _, p := range plan.Ports {
		spec.Ports = append(spec.Ports, PortBinding{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}

	for _, v := range plan.Volumes {
		spec.Volumes = append(spec.Volumes, VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	if plan.HealthCheck != nil {
		spec.HealthCheck = &HealthCheck{
			Test:        plan.HealthCheck.Test,
			Interval:    plan.HealthCheck.Interval,
			Timeout:     plan.HealthCheck.Timeout,
			Retries:     plan.HealthCheck.Retries,
			StartPeriod: plan.HealthCheck.StartPeriod,
		}
	}

	return spec
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
