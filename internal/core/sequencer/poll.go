package sequencer

import (
	"context"
	"fmt"
)

// PollUntilReady calls probe until it reports ready or policy.MaxAttempts
// probes have been made. It sleeps policy.Interval between attempts, never
// after a successful or final attempt, so a target that becomes ready on
// attempt k costs exactly k probes and k-1 sleeps.
//
// A probe error counts as "not ready". On exhaustion a *PollError matching
// ErrReadinessTimeout is returned together with the number of attempts made.
func PollUntilReady(ctx context.Context, clock Clock, target string, probe Probe, policy RetryPolicy) (int, error) {
	if policy.MaxAttempts < 1 {
		return 0, fmt.Errorf("poll %s: %w", target, ErrInvalidPolicy)
	}

	var last error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		ready, err := probe(ctx)
		if err == nil && ready {
			return attempt, nil
		}
		last = err

		if attempt == policy.MaxAttempts {
			break
		}
		if err := clock.Sleep(ctx, policy.Interval); err != nil {
			return attempt, err
		}
	}

	return policy.MaxAttempts, &PollError{
		Target:   target,
		Attempts: policy.MaxAttempts,
		Last:     last,
	}
}
