package console

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/stackdeploy/internal/core/deployment"
	"github.com/artpar/stackdeploy/internal/core/health"
	"github.com/artpar/stackdeploy/internal/core/sequencer"
)

func TestSummaryWriter_Write(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	summary := Summary{
		Project: "webstack",
		RunID:   "3f1c",
		Report: &sequencer.Report{
			StartedAt:  start,
			FinishedAt: start.Add(95 * time.Second),
			Steps: []sequencer.StepResult{
				{Name: "checkDependencies", Status: sequencer.StepSucceeded, Duration: 120 * time.Millisecond},
				{Name: "setupMonitoring", Status: sequencer.StepSkipped},
			},
		},
		Endpoints: []deployment.Endpoint{
			{Service: "haproxy", URL: "http://localhost:8080"},
			{Service: "nginx", URL: "http://localhost"},
		},
		Services: []ServiceRow{
			{Service: "mysql", State: "running", Health: "healthy"},
			{Service: "redis", State: "exited"},
		},
		Overall: health.StatusDegraded,
	}

	var buf bytes.Buffer
	require.NoError(t, NewSummaryWriter(&buf, true).Write(summary))
	out := buf.String()

	assert.Contains(t, out, "Deployment summary: webstack (run 3f1c)")
	assert.Contains(t, out, "Completed in 1m35s")
	assert.Contains(t, out, "  checkDependencies  succeeded  120ms\n")
	assert.Contains(t, out, "  setupMonitoring    skipped    0s\n")
	assert.Contains(t, out, "  haproxy  http://localhost:8080\n")
	assert.Contains(t, out, "  nginx    http://localhost\n")
	assert.Contains(t, out, "  mysql  running  healthy\n")
	assert.Contains(t, out, "  redis  exited   -\n")
	assert.Contains(t, out, "\nStack health: degraded\n")
}

func TestSummaryWriter_EmptySections(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewSummaryWriter(&buf, true).Write(Summary{Project: "webstack"}))

	assert.Equal(t, "\nDeployment summary: webstack\n", buf.String())
}
