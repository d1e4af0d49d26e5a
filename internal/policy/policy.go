package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const DefaultPolicyPath = ".steward/policy.json"

const (
	AgentRoleInspect = "inspect"
	AgentRoleDecide  = "decide"
	AgentRoleExecute = "execute"
	AgentRoleReview  = "review"
)

const (
	ReviewFailureModeApprove  = "approve"
	ReviewFailureModeEscalate = "escalate"
)

type Config struct {
	Version   int `json:"version"`
	Scheduler struct {
		IntervalSeconds int `json:"interval_seconds"`
	} `json:"scheduler"`
	Budget struct {
		MaxIterations     int `json:"max_iterations"`
		TimeBudgetMinutes int `json:"time_budget_minutes"`
	} `json:"budget"`
	Revision struct {
		MaxRounds         int    `json:"max_rounds"`
		ReviewFailureMode string `json:"review_failure_mode"`
	} `json:"revision"`
	Retry struct {
		Attempts  int `json:"attempts"`
		BackoffMS int `json:"backoff_ms"`
	} `json:"retry"`
	Channel struct {
		RedisURL          string `json:"redis_url"`
		TopicPrefix       string `json:"topic_prefix"`
		ReplyTimeoutHours int    `json:"reply_timeout_hours"`
	} `json:"channel"`
	Projects struct {
		Dir string `json:"dir"`
	} `json:"projects"`
	Agents []Agent `json:"agents"`
}

type Agent struct {
	Name           string `json:"name"`
	Role           string `json:"role"`
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func Default() Config {
	cfg := Config{
		Version: 1,
	}
	cfg.Scheduler.IntervalSeconds = 300
	cfg.Budget.MaxIterations = 1
	cfg.Budget.TimeBudgetMinutes = 0
	cfg.Revision.MaxRounds = 6
	cfg.Revision.ReviewFailureMode = ReviewFailureModeApprove
	cfg.Retry.Attempts = 3
	cfg.Retry.BackoffMS = 500
	cfg.Channel.TopicPrefix = "steward"
	cfg.Channel.ReplyTimeoutHours = 24
	cfg.Projects.Dir = ".steward/projects"
	cfg.Agents = []Agent{
		{Name: "decider", Role: AgentRoleDecide, Command: "steward-decide", TimeoutSeconds: 120},
		{Name: "executor", Role: AgentRoleExecute, Command: "steward-execute", TimeoutSeconds: 1800},
		{Name: "reviewer", Role: AgentRoleReview, Command: "steward-review", TimeoutSeconds: 300},
	}
	return cfg
}

func Load(path string) (Config, string, error) {
	cfg := Default()
	finalPath := path
	if strings.TrimSpace(finalPath) == "" {
		finalPath = DefaultPolicyPath
	}
	if _, err := os.Stat(finalPath); os.IsNotExist(err) {
		return cfg, finalPath, nil
	}

	b, err := os.ReadFile(finalPath)
	if err != nil {
		return cfg, finalPath, fmt.Errorf("read policy %s: %w", finalPath, err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, finalPath, fmt.Errorf("parse policy %s: %w", finalPath, err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, finalPath, fmt.Errorf("validate policy %s: %w", finalPath, err)
	}
	return cfg, finalPath, nil
}

func SaveDefault(path string) error {
	cfg := Default()
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func Validate(cfg Config) error {
	if cfg.Version <= 0 {
		return fmt.Errorf("version must be positive")
	}
	if cfg.Scheduler.IntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.interval_seconds must be > 0")
	}
	if cfg.Budget.MaxIterations < 1 {
		return fmt.Errorf("budget.max_iterations must be >= 1")
	}
	if cfg.Budget.TimeBudgetMinutes < 0 {
		return fmt.Errorf("budget.time_budget_minutes must be >= 0")
	}
	if cfg.Revision.MaxRounds <= 0 {
		return fmt.Errorf("revision.max_rounds must be > 0")
	}
	switch cfg.Revision.ReviewFailureMode {
	case ReviewFailureModeApprove, ReviewFailureModeEscalate:
	default:
		return fmt.Errorf("revision.review_failure_mode must be approve|escalate")
	}
	if cfg.Retry.Attempts <= 0 {
		return fmt.Errorf("retry.attempts must be > 0")
	}
	if cfg.Retry.BackoffMS <= 0 {
		return fmt.Errorf("retry.backoff_ms must be > 0")
	}
	if strings.TrimSpace(cfg.Channel.TopicPrefix) == "" {
		return fmt.Errorf("channel.topic_prefix cannot be empty")
	}
	if cfg.Channel.ReplyTimeoutHours <= 0 {
		return fmt.Errorf("channel.reply_timeout_hours must be > 0")
	}
	if strings.TrimSpace(cfg.Projects.Dir) == "" {
		return fmt.Errorf("projects.dir cannot be empty")
	}
	if len(cfg.Agents) == 0 {
		return fmt.Errorf("agents must contain at least one entry")
	}
	for _, agent := range cfg.Agents {
		if strings.TrimSpace(agent.Name) == "" {
			return fmt.Errorf("agent.name cannot be empty")
		}
		switch agent.Role {
		case AgentRoleInspect, AgentRoleDecide, AgentRoleExecute, AgentRoleReview:
		default:
			return fmt.Errorf("agent %q role must be inspect|decide|execute|review", agent.Name)
		}
		if strings.TrimSpace(agent.Command) == "" {
			return fmt.Errorf("agent %q command cannot be empty", agent.Name)
		}
		if agent.TimeoutSeconds < 0 {
			return fmt.Errorf("agent %q timeout_seconds must be >= 0", agent.Name)
		}
	}
	return nil
}

// AgentForRole returns the first configured agent carrying the role.
func AgentForRole(cfg Config, role string) (Agent, bool) {
	for _, agent := range cfg.Agents {
		if agent.Role == role {
			return agent, true
		}
	}
	return Agent{}, false
}
