package agents

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"steward/internal/model"
)

type flakyDecider struct {
	failures int
	calls    int
}

func (d *flakyDecider) Decide(context.Context, model.ProjectState, model.RepoSummary, string) (model.Decision, error) {
	d.calls++
	if d.calls <= d.failures {
		return model.Decision{}, fmt.Errorf("agent unavailable")
	}
	return model.Decision{
		Task:       model.TaskProposal{Description: "recovered"},
		Confidence: model.ConfidenceHigh,
	}, nil
}

func TestRetryingDeciderRecovers(t *testing.T) {
	inner := &flakyDecider{failures: 2}
	decider := RetryingDecider{Next: inner, Retry: RetryConfig{Attempts: 3, Backoff: time.Millisecond}}

	decision, err := decider.Decide(context.Background(), model.ProjectState{}, model.RepoSummary{}, "")
	if err != nil {
		t.Fatalf("expected recovery within retry budget: %v", err)
	}
	if decision.Task.Description != "recovered" {
		t.Fatalf("unexpected decision %+v", decision)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryingDeciderExhaustsBudget(t *testing.T) {
	inner := &flakyDecider{failures: 10}
	decider := RetryingDecider{Next: inner, Retry: RetryConfig{Attempts: 3, Backoff: time.Millisecond}}

	_, err := decider.Decide(context.Background(), model.ProjectState{}, model.RepoSummary{}, "")
	var transientErr *TransientError
	if !errors.As(err, &transientErr) {
		t.Fatalf("expected TransientError after exhaustion, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", inner.calls)
	}
}

type countingReviewer struct {
	calls int
}

func (r *countingReviewer) Review(context.Context, model.ProjectState, string, model.CommitInfo, []model.Review) (model.Review, error) {
	r.calls++
	return model.Review{}, &ValidationError{Agent: "reviewer", Reason: "bad shape"}
}

func TestValidationErrorsAreRetried(t *testing.T) {
	inner := &countingReviewer{}
	reviewer := RetryingReviewer{Next: inner, Retry: RetryConfig{Attempts: 3, Backoff: time.Millisecond}}

	_, err := reviewer.Review(context.Background(), model.ProjectState{}, "task", model.CommitInfo{}, nil)
	if err == nil {
		t.Fatalf("expected error after repeated validation failures")
	}
	if inner.calls != 3 {
		t.Fatalf("validation failures should be retried, got %d calls", inner.calls)
	}
}
