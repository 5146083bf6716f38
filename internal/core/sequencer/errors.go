package sequencer

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrReadinessTimeout is returned when a readiness poll exhausts its attempts.
	ErrReadinessTimeout = errors.New("service did not become ready")

	// ErrInvalidPolicy is returned for a retry policy with no attempts.
	ErrInvalidPolicy = errors.New("retry policy must allow at least one attempt")
)

// PollError describes an exhausted readiness poll.
type PollError struct {
	Target   string
	Attempts int
	Last     error // last probe error, nil if the probe just kept answering "not ready"
}

func (e *PollError) Error() string {
	msg := fmt.Sprintf("%s not ready after %d attempts", e.Target, e.Attempts)
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *PollError) Unwrap() []error {
	if e.Last != nil {
		return []error{ErrReadinessTimeout, e.Last}
	}
	return []error{ErrReadinessTimeout}
}

// DeployError is returned by Sequencer.Run when a fatal step fails.
type DeployError struct {
	Step string    // name of the failing step
	Task string    // name of the failing task within the step
	Kind ErrorKind // failure classification
	At   time.Time // when the failure was observed
	Err  error
}

func (e *DeployError) Error() string {
	if e.Task != "" && e.Task != e.Step {
		return fmt.Sprintf("step %s (%s) failed [%s]: %v", e.Step, e.Task, e.Kind, e.Err)
	}
	return fmt.Sprintf("step %s failed [%s]: %v", e.Step, e.Kind, e.Err)
}

func (e *DeployError) Unwrap() error {
	return e.Err
}
