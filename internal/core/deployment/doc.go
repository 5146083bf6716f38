// Package deployment provides pure functions for planning a stack deployment.
//
// # Functions
//
//   - Naming: consistent resource names scoped by project (NetworkName, VolumeName, ContainerName, ImageName)
//   - Ordering: sort services by depends_on (TopologicalSort)
//   - Container: turn a compose service into a ContainerPlan (BuildContainerPlan)
//   - Endpoints: list host-reachable URLs for published ports (Endpoints)
//
// The shell (internal/shell/docker) executes the plans via the Docker API.
//
//	network := deployment.NetworkName(project)
//	ordered := deployment.TopologicalSort(services)
//	plan := deployment.BuildContainerPlan(params)
package deployment
