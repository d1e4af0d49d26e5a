package agents

import (
	"context"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"

	"steward/internal/model"
	"steward/internal/policy"
)

type RetryConfig struct {
	Attempts uint
	Backoff  time.Duration
}

func RetryConfigFromPolicy(cfg policy.Config) RetryConfig {
	return RetryConfig{
		Attempts: uint(cfg.Retry.Attempts),
		Backoff:  time.Duration(cfg.Retry.BackoffMS) * time.Millisecond,
	}
}

// retryCall retries transient and validation failures with exponential
// backoff, then wraps exhaustion as a TransientError.
func retryCall(agent string, rc RetryConfig, call func() error) error {
	attempts := rc.Attempts
	if attempts == 0 {
		attempts = 3
	}
	wait := rc.Backoff
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}
	err := retry.Retry(
		func(attempt uint) error { return call() },
		strategy.Limit(attempts),
		strategy.Backoff(backoff.Exponential(wait, 2)),
	)
	if err != nil {
		return &TransientError{Agent: agent, Err: err}
	}
	return nil
}

type RetryingDecider struct {
	Next  Decider
	Retry RetryConfig
}

func (d RetryingDecider) Decide(ctx context.Context, project model.ProjectState, summary model.RepoSummary, direction string) (model.Decision, error) {
	var out model.Decision
	err := retryCall("decision", d.Retry, func() error {
		decision, err := d.Next.Decide(ctx, project, summary, direction)
		if err != nil {
			return err
		}
		out = decision
		return nil
	})
	if err != nil {
		return model.Decision{}, err
	}
	return out, nil
}

type RetryingExecutor struct {
	Next  Executor
	Retry RetryConfig
}

func (e RetryingExecutor) Execute(ctx context.Context, task model.TaskProposal, project model.ProjectState) (model.ExecutionResult, error) {
	var out model.ExecutionResult
	err := retryCall("execution", e.Retry, func() error {
		result, err := e.Next.Execute(ctx, task, project)
		if err != nil {
			return err
		}
		out = result
		return nil
	})
	if err != nil {
		return model.ExecutionResult{}, err
	}
	return out, nil
}

func (e RetryingExecutor) Revise(ctx context.Context, review model.Review, originalTask model.TaskProposal, project model.ProjectState) (model.ExecutionResult, error) {
	var out model.ExecutionResult
	err := retryCall("execution", e.Retry, func() error {
		result, err := e.Next.Revise(ctx, review, originalTask, project)
		if err != nil {
			return err
		}
		out = result
		return nil
	})
	if err != nil {
		return model.ExecutionResult{}, err
	}
	return out, nil
}

type RetryingReviewer struct {
	Next  Reviewer
	Retry RetryConfig
}

func (r RetryingReviewer) Review(ctx context.Context, project model.ProjectState, taskDescription string, commit model.CommitInfo, history []model.Review) (model.Review, error) {
	var out model.Review
	err := retryCall("review", r.Retry, func() error {
		review, err := r.Next.Review(ctx, project, taskDescription, commit, history)
		if err != nil {
			return err
		}
		out = review
		return nil
	})
	if err != nil {
		return model.Review{}, err
	}
	return out, nil
}
