package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"steward/internal/model"
)

type projectDefinition struct {
	Name string
	Repo string
	Goal string
}

// runOnboarding asks the human for a new goal when nothing is tracked,
// creates the project directory and persists the new active project. A
// goal stashed by the reply router is consumed instead of asking.
func (s *Service) runOnboarding(ctx context.Context) (string, error) {
	text := s.takeOnboardingGoal()
	if text == "" {
		if err := s.channel.Ask(ctx, "No projects are in flight. What should be worked on next? (optionally: name: ..., repo: ..., goal: ...)", ""); err != nil {
			return "", err
		}
		reply, err := s.channel.WaitForReply(ctx, s.replyTimeout())
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(reply)
	}
	if text == "" {
		return "", fmt.Errorf("empty onboarding reply")
	}

	def := parseProjectDefinition(text)
	repoPath := def.Repo
	if repoPath == "" {
		repoPath = filepath.Join(s.cfg.Projects.Dir, slugify(def.Name))
	}
	if err := os.MkdirAll(repoPath, 0o755); err != nil {
		return "", fmt.Errorf("create project dir %s: %w", repoPath, err)
	}

	now := time.Now()
	state := model.ProjectState{
		ProjectID:     newProjectID(),
		Name:          def.Name,
		RepoPath:      repoPath,
		CurrentGoal:   def.Goal,
		Status:        model.ProjectStatusActive,
		TimeBudget:    s.cfg.Budget.TimeBudgetMinutes,
		MaxIterations: s.cfg.Budget.MaxIterations,
		LastChecked:   now,
		LastActivity:  now,
	}
	if err := s.store.CreateProject(state); err != nil {
		return "", err
	}
	s.recordEvent(state.ProjectID, "created", "", string(state.Status), "onboarded: "+state.CurrentGoal)
	s.notify(ctx, fmt.Sprintf("Started project %s (%s): %s", state.Name, state.ProjectID, state.CurrentGoal))
	return state.ProjectID, nil
}

// parseProjectDefinition reads an onboarding reply. Lines of the form
// "name:", "repo:" and "goal:" are structured fields; everything else
// becomes the goal, with the name derived from its first words.
func parseProjectDefinition(text string) projectDefinition {
	var def projectDefinition
	var freeText []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "name:"):
			def.Name = strings.TrimSpace(line[len("name:"):])
		case strings.HasPrefix(lower, "repo:"):
			def.Repo = strings.TrimSpace(line[len("repo:"):])
		case strings.HasPrefix(lower, "goal:"):
			def.Goal = strings.TrimSpace(line[len("goal:"):])
		default:
			freeText = append(freeText, line)
		}
	}
	if def.Goal == "" {
		def.Goal = strings.Join(freeText, " ")
	}
	if def.Goal == "" {
		def.Goal = strings.TrimSpace(text)
	}
	if def.Name == "" {
		words := strings.Fields(def.Goal)
		if len(words) > 5 {
			words = words[:5]
		}
		def.Name = strings.Join(words, " ")
	}
	return def
}

func slugify(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	if len(slug) > 40 {
		slug = strings.Trim(slug[:40], "-")
	}
	if slug == "" {
		slug = "project"
	}
	return slug
}
