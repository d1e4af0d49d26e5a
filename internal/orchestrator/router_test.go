package orchestrator

import (
	"context"
	"testing"
	"time"

	"steward/internal/model"
)

func TestReplyResumesWaitingProject(t *testing.T) {
	env := newTestEnv(t, nil)
	project := env.addProject(t, func(p *model.ProjectState) {
		p.Status = model.ProjectStatusWaitingInput
	})

	var kicked bool
	env.service.SetKick(func() { kicked = true })

	route, projectID, err := env.service.HandleReply(context.Background(), "go with the simpler design")
	if err != nil {
		t.Fatalf("handle reply: %v", err)
	}
	if route != ReplyRouteResumed || projectID != project.ProjectID {
		t.Fatalf("expected resume of %s, got %s/%s", project.ProjectID, route, projectID)
	}

	state := env.project(t, project.ProjectID)
	if state.Status != model.ProjectStatusActive {
		t.Fatalf("expected active, got %s", state.Status)
	}
	if state.PendingDirection != "go with the simpler design" {
		t.Fatalf("reply should become pending direction, got %q", state.PendingDirection)
	}
	if !kicked {
		t.Fatalf("routing must request an immediate pass")
	}
}

func TestReplyPrefersWaitingOverActive(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addProject(t, func(p *model.ProjectState) {
		p.ProjectID = "proj-active"
	})
	waiting := env.addProject(t, func(p *model.ProjectState) {
		p.ProjectID = "proj-waiting"
		p.Status = model.ProjectStatusWaitingInput
	})

	route, projectID, err := env.service.HandleReply(context.Background(), "answer")
	if err != nil {
		t.Fatalf("handle reply: %v", err)
	}
	if route != ReplyRouteResumed || projectID != waiting.ProjectID {
		t.Fatalf("waiting projects take priority, got %s/%s", route, projectID)
	}
}

func TestReplyPicksMostRecentlyActiveWaiting(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addProject(t, func(p *model.ProjectState) {
		p.ProjectID = "proj-old"
		p.Status = model.ProjectStatusWaitingInput
	})
	// Second write lands later, so it is the most recently updated.
	time.Sleep(1100 * time.Millisecond)
	recent := env.addProject(t, func(p *model.ProjectState) {
		p.ProjectID = "proj-recent"
		p.Status = model.ProjectStatusWaitingInput
	})

	_, projectID, err := env.service.HandleReply(context.Background(), "answer")
	if err != nil {
		t.Fatalf("handle reply: %v", err)
	}
	if projectID != recent.ProjectID {
		t.Fatalf("expected the most recently active project, got %s", projectID)
	}
}

func TestReplySteersActiveProject(t *testing.T) {
	env := newTestEnv(t, nil)
	project := env.addProject(t, nil)

	route, projectID, err := env.service.HandleReply(context.Background(), "prioritize the API")
	if err != nil {
		t.Fatalf("handle reply: %v", err)
	}
	if route != ReplyRouteDirected || projectID != project.ProjectID {
		t.Fatalf("expected direction on %s, got %s/%s", project.ProjectID, route, projectID)
	}
	state := env.project(t, project.ProjectID)
	if state.Status != model.ProjectStatusActive {
		t.Fatalf("steering must not change status, got %s", state.Status)
	}
	if state.PendingDirection != "prioritize the API" {
		t.Fatalf("expected pending direction, got %q", state.PendingDirection)
	}
}

func TestReplyWithNoProjectsStartsOnboarding(t *testing.T) {
	env := newTestEnv(t, nil)

	route, _, err := env.service.HandleReply(context.Background(), "build a todo app in ./todo")
	if err != nil {
		t.Fatalf("handle reply: %v", err)
	}
	if route != ReplyRouteOnboarding {
		t.Fatalf("expected onboarding route, got %s", route)
	}
	// The stashed goal is consumed by the next onboarding pass without
	// asking again.
	if goal := env.service.takeOnboardingGoal(); goal != "build a todo app in ./todo" {
		t.Fatalf("expected stashed goal, got %q", goal)
	}
}

func TestEmptyReplyRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, _, err := env.service.HandleReply(context.Background(), "   "); err == nil {
		t.Fatalf("empty replies should be rejected")
	}
}
