package sequencer

import (
	"context"
	"time"
)

// =============================================================================
// Step Classification
// =============================================================================

// FailurePolicy decides what a failed step does to the rest of the run.
type FailurePolicy string

const (
	// FailFatal aborts the pipeline.
	FailFatal FailurePolicy = "fatal"
	// FailWarn logs a warning and continues with the next step.
	FailWarn FailurePolicy = "warn"
)

// ErrorKind classifies the cause of a step failure.
type ErrorKind string

const (
	KindPrecondition     ErrorKind = "precondition"
	KindBuild            ErrorKind = "build"
	KindReadinessTimeout ErrorKind = "readiness-timeout"
	KindAdminCommand     ErrorKind = "admin-command"
	KindMonitoring       ErrorKind = "monitoring"
	KindHealthCheck      ErrorKind = "health-check"
	KindRuntime          ErrorKind = "runtime"
)

// =============================================================================
// Step Definitions
// =============================================================================

// Action performs a unit of work against an external system.
type Action func(ctx context.Context) error

// Probe reports whether a dependent service is ready to accept traffic.
// An error is treated as "not ready" by the poller.
type Probe func(ctx context.Context) (bool, error)

// RetryPolicy is a fixed attempt budget with a fixed interval between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultReadinessPolicy is the policy used for service readiness polls.
func DefaultReadinessPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 30,
		Interval:    2 * time.Second,
	}
}

// Task is one action inside a step.
//
// Run executes first. If Settle is non-zero the task then waits that long.
// If Ready is set it is polled with Retry until it reports ready or the
// attempt budget is spent.
type Task struct {
	Name   string
	Kind   ErrorKind // classification used when this task fails
	Run    Action
	Settle time.Duration
	Ready  Probe
	Retry  RetryPolicy
}

// Step is a named, classified group of tasks.
type Step struct {
	Name        string
	Description string
	Policy      FailurePolicy
	// Skip disables the step for this run. Its tasks are never invoked.
	Skip  bool
	Tasks []Task
}

// Pipeline is an ordered sequence of steps.
type Pipeline struct {
	Steps []Step
}

// =============================================================================
// Run Report
// =============================================================================

// StepStatus is the outcome of a single step.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepWarned    StepStatus = "warned"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
	StepNotRun    StepStatus = "not-run"
)

// StepResult records what happened to one step.
type StepResult struct {
	Name     string
	Status   StepStatus
	Attempts int // readiness probe invocations across the step's tasks
	Duration time.Duration
	Err      error
}

// Report summarises a pipeline run, one entry per step in pipeline order.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Steps      []StepResult
}

// Step returns the result for the named step.
func (r *Report) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// Succeeded reports whether no step failed.
func (r *Report) Succeeded() bool {
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			return false
		}
	}
	return true
}
