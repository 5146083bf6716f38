package deployment

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/artpar/stackdeploy/internal/core/compose"
)

// =============================================================================
// Container Plan Building Functions
// =============================================================================

// BuildContainerPlan builds a ContainerPlan from a compose service.
//
// The function:
//   - Generates the container name using ContainerName()
//   - Uses the built image when params.Image is set
//   - Prefixes named volumes with the project name
//   - Resolves relative bind mounts against params.ProjectDir
//   - Parses health check durations
//   - Maps restart policy to Docker format
//   - Adds stack labels, then copies service labels
//
// Example:
//
//	plan := BuildContainerPlan(BuildContainerPlanParams{
//	    Project:     "webstack",
//	    Service:     compose.Service{Name: "redis", Image: "redis:7-alpine"},
//	    NetworkName: NetworkName("webstack"),
//	})
//	// plan.Name == "webstack-redis-1"
func BuildContainerPlan(params BuildContainerPlanParams) ContainerPlan {
	svc := params.Service

	image := svc.Image
	if params.Image != "" {
		image = params.Image
	}

	plan := ContainerPlan{
		Name:       ContainerName(params.Project, svc.Name),
		Service:    svc.Name,
		Image:      image,
		Command:    svc.Command,
		Entrypoint: svc.Entrypoint,
		Env:        make(map[string]string, len(svc.Environment)),
		Labels: map[string]string{
			LabelManaged: "true",
			LabelProject: params.Project,
			LabelService: svc.Name,
		},
		Networks: []string{params.NetworkName},
		// The service name resolves on the project network, as with docker compose.
		NetworkAliases: map[string][]string{params.NetworkName: {svc.Name}},
	}
	if params.RunID != "" {
		plan.Labels[LabelRun] = params.RunID
	}

	for k, v := range svc.Environment {
		plan.Env[k] = v
	}

	for _, p := range svc.Ports {
		plan.Ports = append(plan.Ports, PortPlan{
			ContainerPort: int(p.Target),
			HostPort:      int(p.Published),
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}

	for _, v := range svc.Volumes {
		source := v.Source
		switch v.Type {
		case compose.VolumeMountTypeVolume:
			source = VolumeName(params.Project, v.Source)
		case compose.VolumeMountTypeBind:
			source = resolveBindSource(params.ProjectDir, v.Source)
		}
		plan.Volumes = append(plan.Volumes, VolumePlan{
			Source:   source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	if svc.HealthCheck != nil {
		plan.HealthCheck = &HealthCheckPlan{
			Test:        svc.HealthCheck.Test,
			Retries:     svc.HealthCheck.Retries,
			Interval:    parseDuration(svc.HealthCheck.Interval),
			Timeout:     parseDuration(svc.HealthCheck.Timeout),
			StartPeriod: parseDuration(svc.HealthCheck.StartPeriod),
		}
	}

	if svc.Resources.CPULimit > 0 {
		plan.Resources.CPULimit = svc.Resources.CPULimit
	}
	if svc.Resources.MemoryLimit > 0 {
		plan.Resources.MemoryLimit = svc.Resources.MemoryLimit
	}

	plan.RestartPolicy = mapRestartPolicy(svc.Restart)

	for k, v := range svc.Labels {
		plan.Labels[k] = v
	}

	return plan
}

// resolveBindSource makes a relative bind-mount source absolute.
func resolveBindSource(projectDir, source string) string {
	if filepath.IsAbs(source) || projectDir == "" {
		return source
	}
	if strings.HasPrefix(source, "~") {
		return source
	}
	return filepath.Join(projectDir, source)
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// mapRestartPolicy maps compose restart policy to Docker restart policy name.
func mapRestartPolicy(policy compose.RestartPolicy) RestartPolicyPlan {
	switch policy {
	case compose.RestartAlways:
		return RestartPolicyPlan{Name: "always"}
	case compose.RestartOnFailure:
		return RestartPolicyPlan{Name: "on-failure"}
	case compose.RestartUnlessStopped:
		return RestartPolicyPlan{Name: "unless-stopped"}
	default:
		return RestartPolicyPlan{Name: "no"}
	}
}
