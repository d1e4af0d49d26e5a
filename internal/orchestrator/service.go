// Package orchestrator contains the per-project processing state machine,
// the revision loop and the cycle scheduler that drive tracked projects
// toward their goals.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v3"

	"steward/internal/agents"
	"steward/internal/channel"
	"steward/internal/hsm"
	"steward/internal/model"
	"steward/internal/policy"
	"steward/internal/store"
	"steward/internal/vcs"
)

// VersionControl is the command surface the state machine issues to the
// repository when it preserves iteration attempts as branches.
type VersionControl interface {
	Head(ctx context.Context, repoPath string) (string, error)
	CurrentBranch(ctx context.Context, repoPath string) (string, error)
	Branch(ctx context.Context, repoPath string, name string) error
	Checkout(ctx context.Context, repoPath string, ref string) error
	ResetHardTo(ctx context.Context, repoPath string, commitID string) error
}

type Service struct {
	store     *store.SQLiteStore
	channel   channel.Channel
	inspector agents.Inspector
	decider   agents.Decider
	executor  agents.Executor
	reviewer  agents.Reviewer
	vcs       VersionControl
	cfg       policy.Config
	logger    *log.Logger

	mu          sync.Mutex
	kick        func()
	pendingGoal string
}

// Dependencies carries the collaborator set for tests and embedders that
// wire their own implementations instead of the policy-configured ones.
type Dependencies struct {
	Store     *store.SQLiteStore
	Channel   channel.Channel
	Inspector agents.Inspector
	Decider   agents.Decider
	Executor  agents.Executor
	Reviewer  agents.Reviewer
	VCS       VersionControl
	Config    policy.Config
	Logger    *log.Logger
}

func NewServiceWith(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:     deps.Store,
		channel:   deps.Channel,
		inspector: deps.Inspector,
		decider:   deps.Decider,
		executor:  deps.Executor,
		reviewer:  deps.Reviewer,
		vcs:       deps.VCS,
		cfg:       deps.Config,
		logger:    logger,
	}
}

// NewService wires the command-backed agents and the bus channel described
// by the policy file. The returned bus must be started by the caller; the
// CLI does this in serve.
func NewService(dbPath string, policyPath string) (*Service, *channel.Bus, error) {
	cfg, _, err := policy.Load(policyPath)
	if err != nil {
		return nil, nil, err
	}
	sqliteStore, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}

	logger := log.New(os.Stderr, "steward ", log.LstdFlags)
	bus, err := channel.NewFromRedisURL(cfg.Channel.RedisURL, cfg.Channel.TopicPrefix, logger)
	if err != nil {
		_ = sqliteStore.Close()
		return nil, nil, err
	}

	retryCfg := agents.RetryConfigFromPolicy(cfg)
	decideAgent, ok := policy.AgentForRole(cfg, policy.AgentRoleDecide)
	if !ok {
		_ = sqliteStore.Close()
		return nil, nil, fmt.Errorf("policy configures no decide agent")
	}
	executeAgent, ok := policy.AgentForRole(cfg, policy.AgentRoleExecute)
	if !ok {
		_ = sqliteStore.Close()
		return nil, nil, fmt.Errorf("policy configures no execute agent")
	}
	reviewAgent, ok := policy.AgentForRole(cfg, policy.AgentRoleReview)
	if !ok {
		_ = sqliteStore.Close()
		return nil, nil, fmt.Errorf("policy configures no review agent")
	}

	git := vcs.NewGit()
	service := NewServiceWith(Dependencies{
		Store:     sqliteStore,
		Channel:   bus,
		Inspector: git,
		Decider:   agents.RetryingDecider{Next: agents.NewCommandDecider(decideAgent, nil), Retry: retryCfg},
		Executor:  agents.RetryingExecutor{Next: agents.NewCommandExecutor(executeAgent, nil), Retry: retryCfg},
		Reviewer:  agents.RetryingReviewer{Next: agents.NewCommandReviewer(reviewAgent, nil), Retry: retryCfg},
		VCS:       git,
		Config:    cfg,
		Logger:    logger,
	})
	bus.SetReplyHandler(func(ctx context.Context, text string) {
		if _, _, err := service.HandleReply(ctx, text); err != nil {
			logger.Printf("reply routing failed: %v", err)
		}
	})
	return service, bus, nil
}

func (s *Service) Config() policy.Config {
	return s.cfg
}

func (s *Service) Close() error {
	return s.store.Close()
}

// SetKick installs the scheduler's pass-request hook. The reply router uses
// it to request an immediate cycle.
func (s *Service) SetKick(kick func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kick = kick
}

func (s *Service) requestPass() {
	s.mu.Lock()
	kick := s.kick
	s.mu.Unlock()
	if kick != nil {
		kick()
	}
}

type AddProjectOptions struct {
	Name              string
	RepoPath          string
	Goal              string
	TimeBudgetMinutes int
	MaxIterations     int
}

type AddProjectResult struct {
	ProjectID string
}

func (s *Service) AddProject(ctx context.Context, options AddProjectOptions) (AddProjectResult, error) {
	_ = ctx
	name := strings.TrimSpace(options.Name)
	if name == "" {
		return AddProjectResult{}, fmt.Errorf("project name is required")
	}
	if strings.TrimSpace(options.Goal) == "" {
		return AddProjectResult{}, fmt.Errorf("project goal is required")
	}
	repoPath := strings.TrimSpace(options.RepoPath)
	if repoPath == "" {
		return AddProjectResult{}, fmt.Errorf("project repo path is required")
	}
	maxIterations := options.MaxIterations
	if maxIterations < 1 {
		maxIterations = s.cfg.Budget.MaxIterations
	}
	if maxIterations < 1 {
		maxIterations = 1
	}
	timeBudget := options.TimeBudgetMinutes
	if timeBudget < 0 {
		timeBudget = 0
	}

	now := time.Now()
	state := model.ProjectState{
		ProjectID:     newProjectID(),
		Name:          name,
		RepoPath:      repoPath,
		CurrentGoal:   strings.TrimSpace(options.Goal),
		Status:        model.ProjectStatusActive,
		TimeBudget:    timeBudget,
		MaxIterations: maxIterations,
		LastChecked:   now,
		LastActivity:  now,
	}
	if err := s.store.CreateProject(state); err != nil {
		return AddProjectResult{}, err
	}
	s.recordEvent(state.ProjectID, "created", "", string(state.Status), "project added: "+state.CurrentGoal)
	return AddProjectResult{ProjectID: state.ProjectID}, nil
}

func (s *Service) Pause(ctx context.Context, projectID string) error {
	_ = ctx
	project, err := s.store.GetProject(projectID)
	if err != nil {
		return err
	}
	if err := s.transitionProject(&project, model.ProjectStatusPaused, "paused by operator"); err != nil {
		return err
	}
	project.InProgress = ""
	return s.store.SaveProject(project)
}

func (s *Service) Resume(ctx context.Context, projectID string) error {
	_ = ctx
	project, err := s.store.GetProject(projectID)
	if err != nil {
		return err
	}
	if err := s.transitionProject(&project, model.ProjectStatusActive, "resumed by operator"); err != nil {
		return err
	}
	if err := s.store.SaveProject(project); err != nil {
		return err
	}
	s.requestPass()
	return nil
}

func (s *Service) Project(projectID string) (model.ProjectState, error) {
	return s.store.GetProject(projectID)
}

func (s *Service) Projects() ([]model.ProjectState, error) {
	return s.store.ListProjects()
}

func (s *Service) Events(projectID string, limit int) ([]model.Event, error) {
	return s.store.ListEvents(projectID, limit)
}

// transitionProject moves a project along a documented edge and records an
// event row. The caller persists.
func (s *Service) transitionProject(project *model.ProjectState, to model.ProjectStatus, message string) error {
	from := project.Status
	if from == to {
		return nil
	}
	if !hsm.CanTransitionProject(from, to) {
		return fmt.Errorf("invalid project transition %s -> %s", from, to)
	}
	project.Status = to
	s.recordEvent(project.ProjectID, "status_change", string(from), string(to), message)
	return nil
}

func (s *Service) recordEvent(projectID, eventType, fromState, toState, message string) {
	if err := s.store.AddEvent(projectID, "project", projectID, eventType, fromState, toState, message); err != nil {
		s.logger.Printf("record event %s for %s: %v", eventType, projectID, err)
	}
}

func (s *Service) replyTimeout() time.Duration {
	hours := s.cfg.Channel.ReplyTimeoutHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func newProjectID() string {
	return "proj-" + strings.ToLower(shortuuid.New())
}
