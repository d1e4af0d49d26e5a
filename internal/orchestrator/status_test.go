package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"steward/internal/model"
)

func TestStatusRendersProjectReport(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	project := env.addProject(t, func(state *model.ProjectState) {
		state.TimeBudget = 90
		state.MaxIterations = 3
		state.InProgress = "write the parser"
		state.PendingDirection = "prefer streaming"
		state.Completed = []model.TaskRecord{
			{Description: "scaffold repo", CompletedAt: time.Now(), CommitID: "abc123", Revisions: 2},
			{Description: "add CI", CompletedAt: time.Now(), Iteration: 2},
		}
		state.Blockers = []model.Blocker{{Description: "waiting on API key", CreatedAt: time.Now()}}
	})
	if err := env.store.AddEvent(project.ProjectID, "project", project.ProjectID, "status_change", "active", "waiting_input", "escalated"); err != nil {
		t.Fatalf("add event: %v", err)
	}

	report, err := env.service.Status(ctx, project.ProjectID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{
		"Project proj-test (demo) status=active",
		"Goal: ship the demo",
		"Budget: 90m, max iterations: 3",
		"Working on: write the parser",
		"Pending direction: prefer streaming",
		"Completed tasks: 2",
		"[01] scaffold repo commit=abc123 revisions=2",
		"[02] add CI iteration=2",
		"waiting on API key",
		"status_change active -> waiting_input escalated",
	} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
}

func TestStatusUnboundedBudget(t *testing.T) {
	env := newTestEnv(t, nil)
	project := env.addProject(t, nil)

	report, err := env.service.Status(context.Background(), project.ProjectID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(report, "Budget: unbounded") {
		t.Fatalf("expected unbounded budget line:\n%s", report)
	}
}

func TestStatusUnknownProject(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.service.Status(context.Background(), "proj-missing"); err == nil {
		t.Fatalf("expected an error for an unknown project")
	}
}
