package console

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gookit/color"

	"github.com/artpar/stackdeploy/internal/core/deployment"
	"github.com/artpar/stackdeploy/internal/core/health"
	"github.com/artpar/stackdeploy/internal/core/sequencer"
)

// ServiceRow is one line of the service status table.
type ServiceRow struct {
	Service string
	State   string
	Health  string
}

// Summary is everything printed once a run completes.
type Summary struct {
	Project   string
	RunID     string
	Report    *sequencer.Report
	Endpoints []deployment.Endpoint
	Services  []ServiceRow
	// Overall is the rolled-up health of Services; empty omits the line.
	Overall health.Status
}

// SummaryWriter prints a Summary as aligned text tables.
type SummaryWriter struct {
	w       io.Writer
	noColor bool
}

// NewSummaryWriter creates a SummaryWriter on w.
func NewSummaryWriter(w io.Writer, noColor bool) *SummaryWriter {
	return &SummaryWriter{w: w, noColor: noColor}
}

// Write renders s.
func (sw *SummaryWriter) Write(s Summary) error {
	var b strings.Builder

	fmt.Fprintf(&b, "\nDeployment summary: %s", s.Project)
	if s.RunID != "" {
		fmt.Fprintf(&b, " (run %s)", s.RunID)
	}
	b.WriteByte('\n')

	if s.Report != nil {
		elapsed := s.Report.FinishedAt.Sub(s.Report.StartedAt).Round(time.Second)
		fmt.Fprintf(&b, "Completed in %s\n\nSteps:\n", elapsed)
		tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		for _, step := range s.Report.Steps {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", step.Name, sw.stepStatus(step.Status), step.Duration.Round(time.Millisecond))
		}
		tw.Flush()
	}

	if len(s.Endpoints) > 0 {
		b.WriteString("\nEndpoints:\n")
		tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		for _, e := range s.Endpoints {
			fmt.Fprintf(tw, "  %s\t%s\n", e.Service, e.URL)
		}
		tw.Flush()
	}

	if len(s.Services) > 0 {
		b.WriteString("\nServices:\n")
		tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		for _, svc := range s.Services {
			health := svc.Health
			if health == "" {
				health = "-"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", svc.Service, sw.serviceState(svc.State), health)
		}
		tw.Flush()
	}

	if s.Overall != "" {
		fmt.Fprintf(&b, "\nStack health: %s\n", sw.overall(s.Overall))
	}

	_, err := io.WriteString(sw.w, b.String())
	return err
}

func (sw *SummaryWriter) stepStatus(status sequencer.StepStatus) string {
	s := string(status)
	if sw.noColor {
		return s
	}
	switch status {
	case sequencer.StepSucceeded:
		return color.Green.Sprint(s)
	case sequencer.StepWarned:
		return color.Yellow.Sprint(s)
	case sequencer.StepFailed:
		return color.Red.Sprint(s)
	default:
		return color.Gray.Sprint(s)
	}
}

func (sw *SummaryWriter) serviceState(state string) string {
	if sw.noColor {
		return state
	}
	if state == "running" {
		return color.Green.Sprint(state)
	}
	return color.Red.Sprint(state)
}

func (sw *SummaryWriter) overall(status health.Status) string {
	s := string(status)
	if sw.noColor {
		return s
	}
	switch status {
	case health.StatusHealthy:
		return color.Green.Sprint(s)
	case health.StatusDegraded:
		return color.Yellow.Sprint(s)
	default:
		return color.Red.Sprint(s)
	}
}
