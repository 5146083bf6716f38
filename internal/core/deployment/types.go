package deployment

import (
	"time"

	"github.com/artpar/stackdeploy/internal/core/compose"
)

// =============================================================================
// Container Plan Types
// =============================================================================

// ContainerPlan represents a planned container configuration.
// This is the pure output of planning, ready for the shell to execute.
type ContainerPlan struct {
	Name           string
	Service        string
	Image          string
	Command        []string
	Entrypoint     []string
	Env            map[string]string
	Labels         map[string]string
	Ports          []PortPlan
	Volumes        []VolumePlan
	Networks       []string
	NetworkAliases map[string][]string
	RestartPolicy  RestartPolicyPlan
	Resources      ResourcePlan
	HealthCheck    *HealthCheckPlan
}

// PortPlan represents a planned port binding.
type PortPlan struct {
	ContainerPort int
	HostPort      int
	Protocol      string
	HostIP        string
}

// VolumePlan represents a planned volume mount.
type VolumePlan struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RestartPolicyPlan represents a restart policy.
type RestartPolicyPlan struct {
	Name              string
	MaximumRetryCount int
}

// ResourcePlan represents resource limits.
type ResourcePlan struct {
	CPULimit    float64
	MemoryLimit int64
}

// HealthCheckPlan represents a health check configuration.
type HealthCheckPlan struct {
	Test        []string
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	StartPeriod time.Duration
}

// =============================================================================
// Builder Parameter Types
// =============================================================================

// BuildContainerPlanParams contains all inputs for building a container plan.
type BuildContainerPlanParams struct {
	Project     string
	RunID       string
	Service     compose.Service
	NetworkName string
	// Image overrides Service.Image, used for services built from a context.
	Image string
	// ProjectDir is the directory relative bind-mount sources resolve against.
	ProjectDir string
}

// =============================================================================
// Container Labels
// =============================================================================

// Label keys used to identify stack containers.
const (
	LabelManaged = "com.stackdeploy.managed"
	LabelProject = "com.stackdeploy.project"
	LabelService = "com.stackdeploy.service"
	LabelRun     = "com.stackdeploy.run"
)
