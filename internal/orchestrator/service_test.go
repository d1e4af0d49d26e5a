package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"steward/internal/channel"
	"steward/internal/model"
	"steward/internal/policy"
	"steward/internal/store"
)

type stubChannel struct {
	mu       sync.Mutex
	notices  []string
	asks     []string
	replies  []string
	replyErr error
}

func (c *stubChannel) Notify(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, text)
	return nil
}

func (c *stubChannel) Ask(_ context.Context, question string, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asks = append(c.asks, question)
	return nil
}

func (c *stubChannel) WaitForReply(_ context.Context, timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replyErr != nil {
		return "", c.replyErr
	}
	if len(c.replies) == 0 {
		return "", &channel.TimeoutError{Wait: timeout}
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

func (c *stubChannel) askCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.asks)
}

type stubInspector struct {
	summary model.RepoSummary
}

func (i *stubInspector) Summarize(context.Context, string) (model.RepoSummary, error) {
	return i.summary, nil
}

func (i *stubInspector) Diff(_ context.Context, _ string, commitID string) (model.CommitInfo, error) {
	return model.CommitInfo{CommitID: commitID, DiffText: "diff of " + commitID}, nil
}

type scriptedDecider struct {
	decisions  []model.Decision
	calls      int
	directions []string
}

func (d *scriptedDecider) Decide(_ context.Context, _ model.ProjectState, _ model.RepoSummary, direction string) (model.Decision, error) {
	d.calls++
	d.directions = append(d.directions, direction)
	if len(d.decisions) == 0 {
		return model.Decision{NeedsHuman: true, Question: "out of scripted decisions"}, nil
	}
	decision := d.decisions[0]
	d.decisions = d.decisions[1:]
	return decision, nil
}

type scriptedExecutor struct {
	results      []model.ExecutionResult
	executeCalls int
	reviseCalls  int
}

func (e *scriptedExecutor) next(kind string, count int) model.ExecutionResult {
	if len(e.results) == 0 {
		return model.ExecutionResult{
			Status:   model.ExecutionStatusCompleted,
			CommitID: fmt.Sprintf("%s-commit-%d", kind, count),
			Summary:  "scripted work",
		}
	}
	result := e.results[0]
	e.results = e.results[1:]
	return result
}

func (e *scriptedExecutor) Execute(context.Context, model.TaskProposal, model.ProjectState) (model.ExecutionResult, error) {
	e.executeCalls++
	return e.next("exec", e.executeCalls), nil
}

func (e *scriptedExecutor) Revise(context.Context, model.Review, model.TaskProposal, model.ProjectState) (model.ExecutionResult, error) {
	e.reviseCalls++
	return e.next("revise", e.reviseCalls), nil
}

type scriptedReviewer struct {
	reviews []model.Review
	err     error
	calls   int
}

func (r *scriptedReviewer) Review(context.Context, model.ProjectState, string, model.CommitInfo, []model.Review) (model.Review, error) {
	r.calls++
	if r.err != nil {
		return model.Review{}, r.err
	}
	if len(r.reviews) == 0 {
		return model.Review{Decision: model.ReviewDecisionApprove, Summary: "looks good"}, nil
	}
	review := r.reviews[0]
	r.reviews = r.reviews[1:]
	return review, nil
}

type stubVCS struct {
	head      string
	branches  []string
	checkouts []string
	resets    []string
}

func (v *stubVCS) Head(context.Context, string) (string, error) {
	if v.head == "" {
		return "head-0", nil
	}
	return v.head, nil
}

func (v *stubVCS) CurrentBranch(context.Context, string) (string, error) {
	return "main", nil
}

func (v *stubVCS) Branch(_ context.Context, _ string, name string) error {
	v.branches = append(v.branches, name)
	return nil
}

func (v *stubVCS) Checkout(_ context.Context, _ string, ref string) error {
	v.checkouts = append(v.checkouts, ref)
	return nil
}

func (v *stubVCS) ResetHardTo(_ context.Context, _ string, commitID string) error {
	v.resets = append(v.resets, commitID)
	return nil
}

type testEnv struct {
	service  *Service
	store    *store.SQLiteStore
	channel  *stubChannel
	decider  *scriptedDecider
	executor *scriptedExecutor
	reviewer *scriptedReviewer
	vcs      *stubVCS
}

func newTestEnv(t *testing.T, mutate func(*policy.Config)) *testEnv {
	t.Helper()
	cfg := policy.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	sqliteStore, err := store.Open(filepath.Join(t.TempDir(), "steward.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = sqliteStore.Close() })

	env := &testEnv{
		store:    sqliteStore,
		channel:  &stubChannel{},
		decider:  &scriptedDecider{},
		executor: &scriptedExecutor{},
		reviewer: &scriptedReviewer{},
		vcs:      &stubVCS{},
	}
	env.service = NewServiceWith(Dependencies{
		Store:     sqliteStore,
		Channel:   env.channel,
		Inspector: &stubInspector{summary: model.RepoSummary{Branch: "main"}},
		Decider:   env.decider,
		Executor:  env.executor,
		Reviewer:  env.reviewer,
		VCS:       env.vcs,
		Config:    cfg,
		Logger:    log.New(io.Discard, "", 0),
	})
	return env
}

func (e *testEnv) addProject(t *testing.T, mutate func(*model.ProjectState)) model.ProjectState {
	t.Helper()
	now := time.Now()
	state := model.ProjectState{
		ProjectID:     "proj-test",
		Name:          "demo",
		RepoPath:      t.TempDir(),
		CurrentGoal:   "ship the demo",
		Status:        model.ProjectStatusActive,
		MaxIterations: 1,
		LastChecked:   now,
		LastActivity:  now,
	}
	if mutate != nil {
		mutate(&state)
	}
	if err := e.store.CreateProject(state); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return state
}

func (e *testEnv) project(t *testing.T, projectID string) model.ProjectState {
	t.Helper()
	state, err := e.store.GetProject(projectID)
	if err != nil {
		t.Fatalf("get project %s: %v", projectID, err)
	}
	return state
}

func TestAddProjectValidates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.service.AddProject(ctx, AddProjectOptions{RepoPath: "/tmp/x", Goal: "g"}); err == nil {
		t.Fatalf("expected missing name to fail")
	}
	if _, err := env.service.AddProject(ctx, AddProjectOptions{Name: "x", RepoPath: "/tmp/x"}); err == nil {
		t.Fatalf("expected missing goal to fail")
	}

	result, err := env.service.AddProject(ctx, AddProjectOptions{Name: "x", RepoPath: "/tmp/x", Goal: "build it"})
	if err != nil {
		t.Fatalf("add project: %v", err)
	}
	state := env.project(t, result.ProjectID)
	if state.Status != model.ProjectStatusActive {
		t.Fatalf("new project should be active, got %s", state.Status)
	}
	if state.MaxIterations != 1 {
		t.Fatalf("expected default max iterations 1, got %d", state.MaxIterations)
	}
}

func TestPauseAndResume(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	project := env.addProject(t, nil)

	if err := env.service.Pause(ctx, project.ProjectID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if got := env.project(t, project.ProjectID).Status; got != model.ProjectStatusPaused {
		t.Fatalf("expected paused, got %s", got)
	}

	if err := env.service.Resume(ctx, project.ProjectID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := env.project(t, project.ProjectID).Status; got != model.ProjectStatusActive {
		t.Fatalf("expected active, got %s", got)
	}
}

func TestPauseCompletedProjectRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	project := env.addProject(t, func(p *model.ProjectState) {
		p.Status = model.ProjectStatusCompleted
	})

	if err := env.service.Pause(context.Background(), project.ProjectID); err == nil {
		t.Fatalf("pausing a completed project should be rejected")
	}
}
