package model

import (
	"strings"
	"time"
)

type ProjectStatus string

const (
	ProjectStatusActive       ProjectStatus = "active"
	ProjectStatusPaused       ProjectStatus = "paused"
	ProjectStatusCompleted    ProjectStatus = "completed"
	ProjectStatusWaitingInput ProjectStatus = "waiting_input"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type ExecutionStatus string

const (
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusNeedsInput ExecutionStatus = "needs_input"
	ExecutionStatusFailed     ExecutionStatus = "failed"
)

type ReviewDecision string

const (
	ReviewDecisionApprove  ReviewDecision = "approve"
	ReviewDecisionRevise   ReviewDecision = "revise"
	ReviewDecisionEscalate ReviewDecision = "escalate"
)

type TaskRecord struct {
	Description string    `json:"description"`
	CompletedAt time.Time `json:"completed_at"`
	CommitID    string    `json:"commit_id,omitempty"`
	Revisions   int       `json:"revisions"`
	Iteration   int       `json:"iteration,omitempty"`
}

type Blocker struct {
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type ProjectContext struct {
	TechStack    []string `json:"tech_stack,omitempty"`
	Preferences  []string `json:"preferences,omitempty"`
	Availability string   `json:"availability,omitempty"`
}

type ProjectState struct {
	ProjectID        string         `json:"project_id"`
	Name             string         `json:"name"`
	RepoPath         string         `json:"repo_path"`
	CurrentGoal      string         `json:"current_goal"`
	Status           ProjectStatus  `json:"status"`
	Completed        []TaskRecord   `json:"completed,omitempty"`
	InProgress       string         `json:"in_progress,omitempty"`
	Blockers         []Blocker      `json:"blockers,omitempty"`
	Context          ProjectContext `json:"context"`
	TimeBudget       int            `json:"time_budget_minutes"`
	MaxIterations    int            `json:"max_iterations"`
	PendingDirection string         `json:"pending_direction,omitempty"`
	LastChecked      time.Time      `json:"last_checked"`
	LastActivity     time.Time      `json:"last_activity"`
}

// ConsumeDirection empties the single-slot direction mailbox. Pending human
// direction is consumed by exactly one decision request.
func (p *ProjectState) ConsumeDirection() string {
	direction := strings.TrimSpace(p.PendingDirection)
	p.PendingDirection = ""
	return direction
}

type TaskProposal struct {
	Description    string `json:"description"`
	Rationale      string `json:"rationale,omitempty"`
	Implementation string `json:"implementation,omitempty"`
	IsPrerequisite bool   `json:"is_prerequisite,omitempty"`
}

type Decision struct {
	Task       TaskProposal `json:"task"`
	Confidence Confidence   `json:"confidence"`
	NeedsHuman bool         `json:"needs_human"`
	Question   string       `json:"question,omitempty"`
}

type ExecutionResult struct {
	Status       ExecutionStatus `json:"status"`
	CommitID     string          `json:"commit_id,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	ChangedFiles []string        `json:"changed_files,omitempty"`
	Issues       []string        `json:"issues,omitempty"`
	Questions    []string        `json:"questions,omitempty"`
}

type RevisionItem struct {
	Target     string `json:"target"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion,omitempty"`
}

type Review struct {
	Decision  ReviewDecision `json:"decision"`
	Summary   string         `json:"summary,omitempty"`
	Revisions []RevisionItem `json:"revisions,omitempty"`
	Feedback  string         `json:"feedback,omitempty"`
	Question  string         `json:"question,omitempty"`
}

type IterationBranch struct {
	Branch   string `json:"branch"`
	Summary  string `json:"summary"`
	CommitID string `json:"commit_id"`
}

type RepoSummary struct {
	Branch        string   `json:"branch"`
	RecentCommits []string `json:"recent_commits,omitempty"`
	ChangedFiles  []string `json:"changed_files,omitempty"`
	Dirty         bool     `json:"dirty"`
	Summary       string   `json:"summary,omitempty"`
}

type CommitInfo struct {
	CommitID     string            `json:"commit_id"`
	DiffText     string            `json:"diff_text,omitempty"`
	ChangedFiles []string          `json:"changed_files,omitempty"`
	FileContents map[string]string `json:"file_contents,omitempty"`
}

type Event struct {
	ID         int64     `json:"id"`
	ProjectID  string    `json:"project_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	EventType  string    `json:"event_type"`
	FromState  string    `json:"from_state,omitempty"`
	ToState    string    `json:"to_state,omitempty"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
