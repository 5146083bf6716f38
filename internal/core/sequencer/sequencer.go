package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Sequencer executes pipelines one step at a time.
type Sequencer struct {
	clock  Clock
	logger *slog.Logger
}

// New creates a sequencer. A nil clock uses the wall clock.
func New(clock Clock, logger *slog.Logger) *Sequencer {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		clock:  clock,
		logger: logger.With("component", "sequencer"),
	}
}

// Run executes the pipeline in order.
//
// A fatal step failure stops the run: every later step is recorded as
// StepNotRun and the returned error is a *DeployError. A warn step failure
// is logged and recorded as StepWarned. The report is always returned.
func (s *Sequencer) Run(ctx context.Context, p Pipeline) (*Report, error) {
	report := &Report{
		StartedAt: s.clock.Now(),
		Steps:     make([]StepResult, 0, len(p.Steps)),
	}
	total := len(p.Steps)

	var fatal *DeployError
	for i, step := range p.Steps {
		if fatal != nil {
			report.Steps = append(report.Steps, StepResult{Name: step.Name, Status: StepNotRun})
			continue
		}

		log := s.logger.With("step", step.Name, "position", fmt.Sprintf("%d/%d", i+1, total))

		if step.Skip {
			log.Info("step skipped")
			report.Steps = append(report.Steps, StepResult{Name: step.Name, Status: StepSkipped})
			continue
		}

		if step.Description != "" {
			log.Info(step.Description)
		} else {
			log.Info("step started")
		}

		started := s.clock.Now()
		attempts, task, err := s.runStep(ctx, step)
		result := StepResult{
			Name:     step.Name,
			Attempts: attempts,
			Duration: s.clock.Now().Sub(started),
			Err:      err,
		}

		switch {
		case err == nil:
			result.Status = StepSucceeded
			log.Info("step completed", "duration", result.Duration)
		case step.Policy == FailWarn && ctx.Err() == nil:
			result.Status = StepWarned
			log.Warn("step failed, continuing", "task", task.Name, "error", err)
		default:
			result.Status = StepFailed
			fatal = &DeployError{
				Step: step.Name,
				Task: task.Name,
				Kind: classify(task, err),
				At:   s.clock.Now(),
				Err:  err,
			}
			log.Error("step failed", "task", task.Name, "kind", fatal.Kind, "error", err)
		}
		report.Steps = append(report.Steps, result)
	}

	report.FinishedAt = s.clock.Now()
	if fatal != nil {
		return report, fatal
	}
	return report, nil
}

// runStep executes a step's tasks in order and stops at the first failure.
// It returns the readiness attempts spent and the task that failed.
func (s *Sequencer) runStep(ctx context.Context, step Step) (int, Task, error) {
	attempts := 0
	for _, task := range step.Tasks {
		n, err := s.runTask(ctx, task)
		attempts += n
		if err != nil {
			return attempts, task, err
		}
	}
	return attempts, Task{}, nil
}

func (s *Sequencer) runTask(ctx context.Context, task Task) (int, error) {
	if task.Run != nil {
		if err := task.Run(ctx); err != nil {
			return 0, err
		}
	}

	if task.Settle > 0 {
		s.logger.Debug("waiting for service to settle", "task", task.Name, "delay", task.Settle)
		if err := s.clock.Sleep(ctx, task.Settle); err != nil {
			return 0, err
		}
	}

	if task.Ready == nil {
		return 0, nil
	}

	s.logger.Info("waiting for readiness",
		"task", task.Name,
		"max_attempts", task.Retry.MaxAttempts,
		"interval", task.Retry.Interval,
	)
	n, err := PollUntilReady(ctx, s.clock, task.Name, task.Ready, task.Retry)
	if err != nil {
		return n, err
	}
	s.logger.Info("service ready", "task", task.Name, "attempts", n)
	return n, nil
}

func classify(task Task, err error) ErrorKind {
	if errors.Is(err, ErrReadinessTimeout) {
		return KindReadinessTimeout
	}
	if task.Kind != "" {
		return task.Kind
	}
	return KindRuntime
}
