package agents

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"steward/internal/model"
	"steward/internal/policy"
)

func fakeRunner(stdout string, err error) CommandRunner {
	return func(_ context.Context, _ string, _ string) (string, string, error) {
		return stdout, "", err
	}
}

func testAgent(name string) policy.Agent {
	return policy.Agent{Name: name, Role: policy.AgentRoleDecide, Command: "true", TimeoutSeconds: 5}
}

func TestDeciderParsesResponse(t *testing.T) {
	out := `thinking...
{"task":{"description":"add caching","rationale":"hot path"},"confidence":"high","needs_human":false}
done`
	decider := NewCommandDecider(testAgent("decider"), fakeRunner(out, nil))

	decision, err := decider.Decide(context.Background(), model.ProjectState{ProjectID: "p1"}, model.RepoSummary{}, "")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.Task.Description != "add caching" {
		t.Fatalf("expected task description, got %q", decision.Task.Description)
	}
	if decision.Confidence != model.ConfidenceHigh {
		t.Fatalf("expected high confidence, got %s", decision.Confidence)
	}
}

func TestDeciderDefaultsMissingConfidence(t *testing.T) {
	decider := NewCommandDecider(testAgent("decider"), fakeRunner(`{"task":{"description":"tidy"}}`, nil))
	decision, err := decider.Decide(context.Background(), model.ProjectState{}, model.RepoSummary{}, "")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.Confidence != model.ConfidenceMedium {
		t.Fatalf("expected medium default, got %s", decision.Confidence)
	}
}

func TestDeciderRejectsEmptyResponse(t *testing.T) {
	decider := NewCommandDecider(testAgent("decider"), fakeRunner(`{"confidence":"high"}`, nil))
	_, err := decider.Decide(context.Background(), model.ProjectState{}, model.RepoSummary{}, "")
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for empty decision, got %v", err)
	}
}

func TestDeciderRejectsNonJSONOutput(t *testing.T) {
	decider := NewCommandDecider(testAgent("decider"), fakeRunner("no structured output here", nil))
	_, err := decider.Decide(context.Background(), model.ProjectState{}, model.RepoSummary{}, "")
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for non-JSON output, got %v", err)
	}
}

func TestExecutorRejectsUnknownStatus(t *testing.T) {
	executor := NewCommandExecutor(testAgent("executor"), fakeRunner(`{"status":"partial"}`, nil))
	_, err := executor.Execute(context.Background(), model.TaskProposal{Description: "x"}, model.ProjectState{})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for unknown status, got %v", err)
	}
}

func TestExecutorRequestCarriesRepoPath(t *testing.T) {
	var captured string
	runner := func(_ context.Context, _ string, stdin string) (string, string, error) {
		captured = stdin
		return `{"status":"completed","commit_id":"abc"}`, "", nil
	}
	executor := NewCommandExecutor(testAgent("executor"), runner)

	result, err := executor.Execute(context.Background(), model.TaskProposal{Description: "x"}, model.ProjectState{RepoPath: "/work/demo"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.CommitID != "abc" {
		t.Fatalf("expected commit id, got %q", result.CommitID)
	}

	var request map[string]any
	if err := json.Unmarshal([]byte(captured), &request); err != nil {
		t.Fatalf("request should be JSON: %v", err)
	}
	if request["repo_path"] != "/work/demo" {
		t.Fatalf("expected repo_path in request, got %v", request["repo_path"])
	}
}

func TestReviewerParsesRevisions(t *testing.T) {
	out := `{"decision":"revise","feedback":"handle errors","revisions":[{"target":"cache.go","issue":"missing error check","suggestion":"wrap and return"}]}`
	reviewer := NewCommandReviewer(testAgent("reviewer"), fakeRunner(out, nil))

	review, err := reviewer.Review(context.Background(), model.ProjectState{}, "add caching", model.CommitInfo{CommitID: "abc"}, nil)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if review.Decision != model.ReviewDecisionRevise {
		t.Fatalf("expected revise, got %s", review.Decision)
	}
	if len(review.Revisions) != 1 || review.Revisions[0].Target != "cache.go" {
		t.Fatalf("expected itemized revision, got %+v", review.Revisions)
	}
}

func TestExtractJSONObjectSkipsSurroundingNoise(t *testing.T) {
	raw, ok := extractJSONObject([]byte("log line {\"a\":1} trailing {}"))
	if !ok {
		t.Fatalf("expected to find a JSON object")
	}
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("extracted object should parse: %v", err)
	}
	if parsed["a"] != float64(1) {
		t.Fatalf("unexpected object %v", parsed)
	}
}
