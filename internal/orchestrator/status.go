package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const statusEventLimit = 10

// Status renders the report the status command prints for one project.
func (s *Service) Status(ctx context.Context, projectID string) (string, error) {
	_ = ctx
	project, err := s.store.GetProject(projectID)
	if err != nil {
		return "", err
	}
	events, err := s.store.ListEvents(projectID, statusEventLimit)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Project %s (%s) status=%s\n", project.ProjectID, project.Name, project.Status)
	fmt.Fprintf(&b, "Goal: %s\n", project.CurrentGoal)
	fmt.Fprintf(&b, "Repo: %s\n", project.RepoPath)
	if project.TimeBudget > 0 {
		fmt.Fprintf(&b, "Budget: %dm, max iterations: %d\n", project.TimeBudget, project.MaxIterations)
	} else {
		fmt.Fprintf(&b, "Budget: unbounded, max iterations: %d\n", project.MaxIterations)
	}
	if project.InProgress != "" {
		fmt.Fprintf(&b, "Working on: %s\n", project.InProgress)
	}
	if direction := strings.TrimSpace(project.PendingDirection); direction != "" {
		fmt.Fprintf(&b, "Pending direction: %s\n", direction)
	}
	fmt.Fprintf(&b, "Completed tasks: %d\n", len(project.Completed))
	for i, task := range project.Completed {
		fmt.Fprintf(&b, "  [%02d] %s", i+1, task.Description)
		if task.CommitID != "" {
			fmt.Fprintf(&b, " commit=%s", task.CommitID)
		}
		if task.Revisions > 0 {
			fmt.Fprintf(&b, " revisions=%d", task.Revisions)
		}
		if task.Iteration > 0 {
			fmt.Fprintf(&b, " iteration=%d", task.Iteration)
		}
		b.WriteString("\n")
	}
	if len(project.Blockers) > 0 {
		b.WriteString("Blockers:\n")
		for _, blocker := range project.Blockers {
			fmt.Fprintf(&b, "  - %s\n", blocker.Description)
		}
	}
	if len(events) > 0 {
		b.WriteString("Recent events:\n")
		for _, event := range events {
			fmt.Fprintf(&b, "  %s %s", event.CreatedAt.Format(time.RFC3339), event.EventType)
			if event.FromState != "" || event.ToState != "" {
				fmt.Fprintf(&b, " %s -> %s", event.FromState, event.ToState)
			}
			if event.Message != "" {
				fmt.Fprintf(&b, " %s", event.Message)
			}
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
