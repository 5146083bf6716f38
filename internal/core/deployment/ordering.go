package deployment

import (
	"sort"

	"github.com/artpar/stackdeploy/internal/core/compose"
)

// =============================================================================
// Service Ordering
// =============================================================================

// TopologicalSort orders services so each one starts after the services it
// depends on (Kahn's algorithm). Dependencies outside the given slice are
// ignored, so one start group (say app and nginx) can be ordered on its own
// while mysql and redis were started by an earlier group. Ties are broken by
// name for a stable start order.
//
// Cycles are rejected by the compose parser; if one still reaches here the
// services caught in it are appended in their input order.
//
//	sorted := TopologicalSort([]compose.Service{
//	    {Name: "haproxy", DependsOn: []string{"nginx"}},
//	    {Name: "nginx", DependsOn: []string{"app"}},
//	    {Name: "app", DependsOn: []string{"mysql", "redis"}},
//	})
//	// app, nginx, haproxy
func TopologicalSort(services []compose.Service) []compose.Service {
	if len(services) == 0 {
		return services
	}

	byName := make(map[string]compose.Service, len(services))
	for _, svc := range services {
		byName[svc.Name] = svc
	}

	inDegree := make(map[string]int, len(services))
	dependents := make(map[string][]string)
	for _, svc := range services {
		inDegree[svc.Name] = 0
		for _, dep := range svc.DependsOn {
			if _, ok := byName[dep]; !ok {
				continue
			}
			inDegree[svc.Name]++
			dependents[dep] = append(dependents[dep], svc.Name)
		}
	}
	for name := range dependents {
		sort.Strings(dependents[name])
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	result := make([]compose.Service, 0, len(services))
	placed := make(map[string]bool, len(services))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		result = append(result, byName[name])
		placed[name] = true

		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	for _, svc := range services {
		if !placed[svc.Name] {
			result = append(result, svc)
			placed[svc.Name] = true
		}
	}
	return result
}
