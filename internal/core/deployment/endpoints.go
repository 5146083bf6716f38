package deployment

import (
	"fmt"
	"sort"

	"github.com/artpar/stackdeploy/internal/core/compose"
)

// Endpoint is a host-reachable address of a published service port.
type Endpoint struct {
	Service string
	URL     string
}

// Endpoints lists the published TCP ports of services as URLs on host.
// Ports with no published host port are not reachable and are left out.
// The result is sorted by service name, then URL.
func Endpoints(host string, services []compose.Service) []Endpoint {
	if host == "" {
		host = "localhost"
	}

	var result []Endpoint
	for _, svc := range services {
		for _, p := range svc.Ports {
			if p.Published == 0 {
				continue
			}
			if p.Protocol != "" && p.Protocol != "tcp" {
				continue
			}
			bindHost := host
			if p.HostIP != "" && p.HostIP != "0.0.0.0" {
				bindHost = p.HostIP
			}
			result = append(result, Endpoint{
				Service: svc.Name,
				URL:     formatURL(bindHost, p.Published),
			})
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Service != result[j].Service {
			return result[i].Service < result[j].Service
		}
		return result[i].URL < result[j].URL
	})
	return result
}

func formatURL(host string, port uint32) string {
	switch port {
	case 80:
		return fmt.Sprintf("http://%s", host)
	case 443:
		return fmt.Sprintf("https://%s", host)
	default:
		return fmt.Sprintf("http://%s:%d", host, port)
	}
}
