// Package health rolls container states up into service and stack health.
// This package contains NO I/O.
package health

// Status is the health of a service or of the whole stack.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// =============================================================================
// Health Aggregation (Pure Functions)
// =============================================================================

// ServiceHealth maps a container's state and Docker healthcheck result to a
// Status. check is empty when the container declares no healthcheck.
func ServiceHealth(state, check string) Status {
	// Non-running containers are unhealthy
	if state != "running" {
		return StatusUnhealthy
	}

	switch check {
	case "unhealthy":
		return StatusUnhealthy
	case "starting":
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Aggregate determines overall stack health from per-service health.
func Aggregate(services []Status) Status {
	if len(services) == 0 {
		return StatusUnknown
	}

	unhealthy := 0
	degraded := 0

	for _, s := range services {
		switch s {
		case StatusUnhealthy:
			unhealthy++
		case StatusDegraded, StatusUnknown:
			degraded++
		}
	}

	// All unhealthy = unhealthy
	if unhealthy == len(services) {
		return StatusUnhealthy
	}
	// Any unhealthy or degraded = degraded
	if unhealthy > 0 || degraded > 0 {
		return StatusDegraded
	}
	return StatusHealthy
}
