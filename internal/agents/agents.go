// Package agents holds the collaborator contracts the orchestrator core
// consumes: repository inspection, decision making, task execution and
// review. Implementations run configured commands as subprocesses speaking
// JSON over stdin/stdout.
package agents

import (
	"context"

	"steward/internal/model"
)

type Inspector interface {
	Summarize(ctx context.Context, repoPath string) (model.RepoSummary, error)
	Diff(ctx context.Context, repoPath string, commitID string) (model.CommitInfo, error)
}

type Decider interface {
	Decide(ctx context.Context, project model.ProjectState, summary model.RepoSummary, direction string) (model.Decision, error)
}

type Executor interface {
	Execute(ctx context.Context, task model.TaskProposal, project model.ProjectState) (model.ExecutionResult, error)
	Revise(ctx context.Context, review model.Review, originalTask model.TaskProposal, project model.ProjectState) (model.ExecutionResult, error)
}

type Reviewer interface {
	Review(ctx context.Context, project model.ProjectState, taskDescription string, commit model.CommitInfo, history []model.Review) (model.Review, error)
}
