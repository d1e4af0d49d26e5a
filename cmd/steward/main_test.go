package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"steward/internal/model"
	"steward/internal/orchestrator"
)

func TestFormatProjectSummary(t *testing.T) {
	project := model.ProjectState{
		ProjectID:   "proj-abc",
		Name:        "demo",
		Status:      model.ProjectStatusActive,
		CurrentGoal: "ship v1",
		Completed: []model.TaskRecord{
			{Description: "scaffold", CompletedAt: time.Now()},
		},
		InProgress: "write tests",
	}

	summary := formatProjectSummary(project)
	for _, want := range []string{"proj-abc", "active", "demo", "ship v1", "1 done", `working on "write tests"`} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary missing %q: %s", want, summary)
		}
	}
}

func TestDescribeReplyRoute(t *testing.T) {
	var buf bytes.Buffer
	describeReplyRoute(&buf, orchestrator.ReplyRouteResumed, "proj-abc")
	if !strings.Contains(buf.String(), "Resumed project proj-abc") {
		t.Fatalf("unexpected output %q", buf.String())
	}

	buf.Reset()
	describeReplyRoute(&buf, orchestrator.ReplyRouteOnboarding, "")
	if !strings.Contains(buf.String(), "onboarding") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestRootCommandRequiresSubcommand(t *testing.T) {
	if err := executeCLI(nil); err == nil {
		t.Fatalf("expected an error when no command is given")
	}
}
