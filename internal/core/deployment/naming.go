package deployment

import "fmt"

// =============================================================================
// Resource Naming Functions
// =============================================================================

// NetworkName generates the default network name for a project.
// Pattern: {project}_default
//
// Example:
//
//	NetworkName("webstack") // returns "webstack_default"
func NetworkName(project string) string {
	return fmt.Sprintf("%s_default", project)
}

// VolumeName generates a named volume for a project.
// Pattern: {project}_{volumeName}
//
// Example:
//
//	VolumeName("webstack", "mysql_data") // returns "webstack_mysql_data"
func VolumeName(project, volumeName string) string {
	return fmt.Sprintf("%s_%s", project, volumeName)
}

// ContainerName generates the container name for a service.
// Pattern: {project}-{serviceName}-1
//
// Example:
//
//	ContainerName("webstack", "nginx") // returns "webstack-nginx-1"
func ContainerName(project, serviceName string) string {
	return fmt.Sprintf("%s-%s-1", project, serviceName)
}

// ImageName generates the tag for an image built from a service's build context.
// Pattern: {project}-{serviceName}:latest
//
// Example:
//
//	ImageName("webstack", "app") // returns "webstack-app:latest"
func ImageName(project, serviceName string) string {
	return fmt.Sprintf("%s-%s:latest", project, serviceName)
}
