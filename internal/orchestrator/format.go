package orchestrator

import (
	"fmt"
	"strings"

	"steward/internal/model"
)

func synthesizeDecisionQuestion(project model.ProjectState, decision model.Decision) string {
	question := strings.TrimSpace(decision.Question)
	if question != "" {
		return question
	}
	if strings.TrimSpace(decision.Task.Description) != "" {
		return fmt.Sprintf(
			"Project %s: unsure whether to proceed with %q (confidence %s). Should I go ahead, or do you want a different direction?",
			project.Name, decision.Task.Description, decision.Confidence,
		)
	}
	return fmt.Sprintf(
		"Project %s: no clear next step toward %q. What should happen next?",
		project.Name, project.CurrentGoal,
	)
}

func formatAmbiguousCompletion(project model.ProjectState, task model.TaskProposal, result model.ExecutionResult) string {
	summary := strings.TrimSpace(result.Summary)
	if summary == "" {
		summary = "no summary was reported"
	}
	return fmt.Sprintf(
		"Project %s: the executor reported %q as completed but produced no commit (%s). Accept as done, retry, or redirect?",
		project.Name, task.Description, summary,
	)
}

func formatNeedsInput(project model.ProjectState, task model.TaskProposal, result model.ExecutionResult) string {
	if len(result.Questions) > 0 {
		return fmt.Sprintf("Project %s, task %q needs input:\n%s",
			project.Name, task.Description, bulletList(result.Questions))
	}
	summary := strings.TrimSpace(result.Summary)
	if summary == "" {
		summary = "the executor stopped and asked for input without details"
	}
	return fmt.Sprintf("Project %s, task %q needs input: %s", project.Name, task.Description, summary)
}

func formatExecutionFailure(project model.ProjectState, task model.TaskProposal, result model.ExecutionResult) string {
	parts := []string{fmt.Sprintf("Project %s: task %q failed", project.Name, task.Description)}
	if strings.TrimSpace(result.Summary) != "" {
		parts = append(parts, result.Summary)
	}
	if len(result.Issues) > 0 {
		parts = append(parts, "issues:\n"+bulletList(result.Issues))
	}
	return strings.Join(parts, ". ")
}

func formatTaskProgress(project model.ProjectState, record model.TaskRecord) string {
	msg := fmt.Sprintf("Project %s: completed %q", project.Name, record.Description)
	if record.CommitID != "" {
		msg += fmt.Sprintf(" (commit %s)", record.CommitID)
	}
	if record.Revisions > 0 {
		msg += fmt.Sprintf(" after %d revision rounds", record.Revisions)
	}
	return msg
}

func formatSessionSummary(project model.ProjectState, branches []model.IterationBranch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project %s: %d iteration attempts are preserved as branches for comparison:\n",
		project.Name, len(branches))
	for _, branch := range branches {
		fmt.Fprintf(&b, "- %s (%s): %s\n", branch.Branch, branch.CommitID, branch.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

// divergenceNote extends the direction handed to the decision agent with the
// prior attempts of this session so it can steer away from them.
func divergenceNote(direction string, branches []model.IterationBranch) string {
	var b strings.Builder
	if strings.TrimSpace(direction) != "" {
		b.WriteString(strings.TrimSpace(direction))
		b.WriteString("\n\n")
	}
	b.WriteString("Earlier iterations this session already tried:\n")
	for _, branch := range branches {
		fmt.Fprintf(&b, "- %s: %s\n", branch.Branch, branch.Summary)
	}
	b.WriteString("Propose an approach that diverges structurally from these attempts.")
	return b.String()
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return strings.TrimRight(b.String(), "\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func compactErrorText(err error) string {
	if err == nil {
		return ""
	}
	text := strings.TrimSpace(err.Error())
	return strings.ReplaceAll(text, "\n", " | ")
}
