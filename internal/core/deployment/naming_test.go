package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Naming Tests
// =============================================================================

func TestNetworkName(t *testing.T) {
	assert.Equal(t, "webstack_default", NetworkName("webstack"))
}

func TestVolumeName(t *testing.T) {
	assert.Equal(t, "webstack_mysql_data", VolumeName("webstack", "mysql_data"))
}

func TestContainerName_TableDriven(t *testing.T) {
	tests := []struct {
		project string
		service string
		want    string
	}{
		{"webstack", "mysql", "webstack-mysql-1"},
		{"webstack", "nginx", "webstack-nginx-1"},
		{"webstack-monitoring", "grafana", "webstack-monitoring-grafana-1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContainerName(tt.project, tt.service))
	}
}

func TestImageName(t *testing.T) {
	assert.Equal(t, "webstack-app:latest", ImageName("webstack", "app"))
}
