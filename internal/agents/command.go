package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"steward/internal/model"
	"steward/internal/policy"
)

// CommandRunner executes an agent command with a payload on stdin.
type CommandRunner func(ctx context.Context, command string, stdin string) (stdout string, stderr string, err error)

func RunShellCommand(ctx context.Context, command string, stdin string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if strings.TrimSpace(stdin) != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

type commandClient struct {
	agent  policy.Agent
	runner CommandRunner
}

func newCommandClient(agent policy.Agent, runner CommandRunner) commandClient {
	if runner == nil {
		runner = RunShellCommand
	}
	return commandClient{agent: agent, runner: runner}
}

func (c commandClient) invoke(ctx context.Context, request any, response any) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", c.agent.Name, err)
	}

	timeout := time.Duration(c.agent.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, err := c.runner(timeoutCtx, c.agent.Command, string(payload))
	if err != nil {
		return fmt.Errorf("%s agent command failed: %w: %s", c.agent.Name, err, strings.TrimSpace(stderr))
	}
	jsonObject, ok := extractJSONObject([]byte(stdout))
	if !ok {
		return &ValidationError{Agent: c.agent.Name, Reason: "no JSON object found in output"}
	}
	if err := json.Unmarshal(jsonObject, response); err != nil {
		return &ValidationError{Agent: c.agent.Name, Reason: fmt.Sprintf("parse response json: %v", err)}
	}
	return nil
}

type CommandDecider struct {
	client commandClient
}

func NewCommandDecider(agent policy.Agent, runner CommandRunner) *CommandDecider {
	return &CommandDecider{client: newCommandClient(agent, runner)}
}

type decideRequest struct {
	Project     model.ProjectState `json:"project"`
	RepoSummary model.RepoSummary  `json:"repo_summary"`
	Direction   string             `json:"direction,omitempty"`
}

func (d *CommandDecider) Decide(ctx context.Context, project model.ProjectState, summary model.RepoSummary, direction string) (model.Decision, error) {
	var decision model.Decision
	err := d.client.invoke(ctx, decideRequest{Project: project, RepoSummary: summary, Direction: direction}, &decision)
	if err != nil {
		return model.Decision{}, err
	}
	switch decision.Confidence {
	case model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow:
	case "":
		decision.Confidence = model.ConfidenceMedium
	default:
		return model.Decision{}, &ValidationError{Agent: d.client.agent.Name, Reason: fmt.Sprintf("unknown confidence %q", decision.Confidence)}
	}
	if strings.TrimSpace(decision.Task.Description) == "" && !decision.NeedsHuman {
		return model.Decision{}, &ValidationError{Agent: d.client.agent.Name, Reason: "decision has neither a task nor an escalation"}
	}
	return decision, nil
}

type CommandExecutor struct {
	client commandClient
}

func NewCommandExecutor(agent policy.Agent, runner CommandRunner) *CommandExecutor {
	return &CommandExecutor{client: newCommandClient(agent, runner)}
}

type executeRequest struct {
	Task     model.TaskProposal `json:"task"`
	Project  model.ProjectState `json:"project"`
	RepoPath string             `json:"repo_path"`
}

type reviseRequest struct {
	Review       model.Review       `json:"review"`
	OriginalTask model.TaskProposal `json:"original_task"`
	Project      model.ProjectState `json:"project"`
	RepoPath     string             `json:"repo_path"`
}

func (e *CommandExecutor) Execute(ctx context.Context, task model.TaskProposal, project model.ProjectState) (model.ExecutionResult, error) {
	var result model.ExecutionResult
	err := e.client.invoke(ctx, executeRequest{Task: task, Project: project, RepoPath: project.RepoPath}, &result)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	return result, e.validate(result)
}

func (e *CommandExecutor) Revise(ctx context.Context, review model.Review, originalTask model.TaskProposal, project model.ProjectState) (model.ExecutionResult, error) {
	var result model.ExecutionResult
	err := e.client.invoke(ctx, reviseRequest{Review: review, OriginalTask: originalTask, Project: project, RepoPath: project.RepoPath}, &result)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	return result, e.validate(result)
}

func (e *CommandExecutor) validate(result model.ExecutionResult) error {
	switch result.Status {
	case model.ExecutionStatusCompleted, model.ExecutionStatusNeedsInput, model.ExecutionStatusFailed:
		return nil
	default:
		return &ValidationError{Agent: e.client.agent.Name, Reason: fmt.Sprintf("unknown execution status %q", result.Status)}
	}
}

type CommandReviewer struct {
	client commandClient
}

func NewCommandReviewer(agent policy.Agent, runner CommandRunner) *CommandReviewer {
	return &CommandReviewer{client: newCommandClient(agent, runner)}
}

type reviewRequest struct {
	Project         model.ProjectState `json:"project"`
	TaskDescription string             `json:"task_description"`
	Commit          model.CommitInfo   `json:"commit"`
	History         []model.Review     `json:"history,omitempty"`
}

func (r *CommandReviewer) Review(ctx context.Context, project model.ProjectState, taskDescription string, commit model.CommitInfo, history []model.Review) (model.Review, error) {
	var review model.Review
	err := r.client.invoke(ctx, reviewRequest{Project: project, TaskDescription: taskDescription, Commit: commit, History: history}, &review)
	if err != nil {
		return model.Review{}, err
	}
	switch review.Decision {
	case model.ReviewDecisionApprove, model.ReviewDecisionRevise, model.ReviewDecisionEscalate:
	default:
		return model.Review{}, &ValidationError{Agent: r.client.agent.Name, Reason: fmt.Sprintf("unknown review decision %q", review.Decision)}
	}
	return review, nil
}

func extractJSONObject(output []byte) ([]byte, bool) {
	text := string(output)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return nil, false
	}
	for i := end; i > start; i-- {
		candidate := strings.TrimSpace(text[start : i+1])
		var tmp map[string]any
		if err := json.Unmarshal([]byte(candidate), &tmp); err == nil {
			return []byte(candidate), true
		}
	}
	return nil, false
}
